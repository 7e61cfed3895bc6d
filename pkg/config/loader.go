package config

import (
	"os"
	"path/filepath"

	"github.com/kkyr/fig"
)

const EnvPrefix = "VIBGYOR_RTC"

const configFile = "rtc.yaml"

// LoadConfig loads a configuration file into the given struct.
// The path param specifies a custom path to the configuration file.
// Reads and puts environment variables with the prefix VIBGYOR_RTC_.
// Params from the config should be in uppercase separated with _.
func LoadConfig(config any, path string) error {
	dirs := []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs", "../../../configs")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, home+"/.vibgyor")
		}
	}
	return fig.Load(config, fig.File(configFile), fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
}

// FilePath resolves the location of the active config file the same
// way LoadConfig does. Used by the runtime watcher.
func FilePath(path string) (string, bool) {
	dirs := []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs", "../../../configs")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, home+"/.vibgyor")
		}
	}
	for _, dir := range dirs {
		p := filepath.Join(dir, configFile)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

func LoadConfigEnv(config any) error {
	return fig.Load(config, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
}
