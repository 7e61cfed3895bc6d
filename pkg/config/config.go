package config

import (
	"flag"
	"time"
)

// ClientConfig is the root configuration of the rtc client.
type ClientConfig struct {
	Client    Client
	Transport Transport
	Call      Call
	Webrtc    Webrtc
	Version   int
}

type Client struct {
	Debug      bool
	Tag        string
	Monitoring Monitoring
	// directory for downloaded attachments, {user} expands to the home dir
	DownloadDir string
	// path of the single-instance lock file, empty for the system default
	LockFile string
}

type Transport struct {
	// address of the realtime gateway, e.g. chat.example.com:443
	Address  string
	Endpoint string
	Secure   bool
	// app-level liveness ping period
	HeartbeatInterval time.Duration
	// automatic reconnection policy
	Retries    int
	RetryDelay time.Duration
	// http call-control API root, e.g. https://chat.example.com/api
	ApiAddress string
	ApiTimeout time.Duration
}

type Call struct {
	// period of the connection quality sampling
	QualityInterval time.Duration
	// how long a typing indicator stays on without a refresh
	TypingExpiry time.Duration
}

type Webrtc struct {
	DisableDefaultInterceptors bool
	IceServers                 []IceServer
	LogLevel                   int
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

type Monitoring struct {
	Port             int
	URLPrefix        string
	MetricEnabled    bool `json:"metric_enabled"`
	ProfilingEnabled bool `json:"profiling_enabled"`
}

func (c *Monitoring) IsEnabled() bool { return c.MetricEnabled || c.ProfilingEnabled }

// allows custom config path
var clientConfigPath string

// CustomPath returns the config dir passed with the -conf flag.
func CustomPath() string { return clientConfigPath }

func NewClientConfig() (conf ClientConfig) {
	err := LoadConfig(&conf, clientConfigPath)
	if err != nil {
		panic(err)
	}
	conf.fixValues()
	return
}

// ParseFlags updates config values from passed runtime flags.
// Define own flags with default value set to the current config param.
// Don't forget to call flag.Parse().
func (c *ClientConfig) ParseFlags() {
	flag.BoolVar(&c.Client.Debug, "debug", c.Client.Debug, "Enable debug logging")
	flag.IntVar(&c.Client.Monitoring.Port, "monitoring.port", c.Client.Monitoring.Port, "Monitoring server port")
	flag.StringVar(&c.Transport.Address, "gateway", c.Transport.Address, "Realtime gateway address to connect")
	flag.StringVar(&c.Transport.ApiAddress, "api", c.Transport.ApiAddress, "Call-control API root URL")
	flag.StringVar(&clientConfigPath, "conf", clientConfigPath, "Set custom configuration file path")
	flag.Parse()
}

// fixValues sets sane values for params hard to default externally.
func (c *ClientConfig) fixValues() {
	if c.Transport.HeartbeatInterval <= 0 {
		c.Transport.HeartbeatInterval = 30 * time.Second
	}
	if c.Transport.Retries <= 0 {
		c.Transport.Retries = 3
	}
	if c.Transport.RetryDelay <= 0 {
		c.Transport.RetryDelay = 2 * time.Second
	}
	if c.Transport.ApiTimeout <= 0 {
		c.Transport.ApiTimeout = 10 * time.Second
	}
	if c.Call.QualityInterval <= 0 {
		c.Call.QualityInterval = 5 * time.Second
	}
	if c.Call.TypingExpiry <= 0 {
		c.Call.TypingExpiry = 5 * time.Second
	}
	if c.Transport.Endpoint == "" {
		c.Transport.Endpoint = "/rt"
	}
}
