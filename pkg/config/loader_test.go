package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testConf = `
client:
  debug: true
  tag: test
transport:
  address: localhost:9000
  secure: false
  heartbeatinterval: 10s
  retries: 5
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, configFile), []byte(testConf), 0644); err != nil {
		t.Fatal(err)
	}

	var out ClientConfig
	if err := LoadConfig(&out, dir); err != nil {
		t.Fatal(err)
	}
	out.fixValues()

	if !out.Client.Debug || out.Client.Tag != "test" {
		t.Errorf("unexpected client section: %+v", out.Client)
	}
	if out.Transport.Address != "localhost:9000" {
		t.Errorf("unexpected address: %v", out.Transport.Address)
	}
	if out.Transport.HeartbeatInterval != 10*time.Second {
		t.Errorf("unexpected heartbeat: %v", out.Transport.HeartbeatInterval)
	}
	if out.Transport.Retries != 5 {
		t.Errorf("unexpected retries: %v", out.Transport.Retries)
	}
}

func TestFixValues(t *testing.T) {
	var c ClientConfig
	c.fixValues()

	if c.Transport.HeartbeatInterval != 30*time.Second {
		t.Errorf("heartbeat default = %v", c.Transport.HeartbeatInterval)
	}
	if c.Transport.Retries != 3 {
		t.Errorf("retries default = %v", c.Transport.Retries)
	}
	if c.Call.QualityInterval != 5*time.Second {
		t.Errorf("quality interval default = %v", c.Call.QualityInterval)
	}
	if c.Transport.Endpoint != "/rt" {
		t.Errorf("endpoint default = %v", c.Transport.Endpoint)
	}
}

func TestConfigEnv(t *testing.T) {
	_ = os.Setenv("VIBGYOR_RTC_TRANSPORT_RETRIES", "7")
	defer func() { _ = os.Unsetenv("VIBGYOR_RTC_TRANSPORT_RETRIES") }()

	var out ClientConfig
	if err := LoadConfigEnv(&out); err != nil {
		t.Fatal(err)
	}
	if out.Transport.Retries != 7 {
		t.Errorf("%v is not 7", out.Transport.Retries)
	}
}
