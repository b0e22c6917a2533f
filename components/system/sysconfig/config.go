package sysconfig

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/open-control-systems/card-detector/components/action/actexec"
	"github.com/open-control-systems/card-detector/components/core"
	"github.com/open-control-systems/card-detector/components/status"
)

const envPrefix = "CARD_DETECTOR"

// Config is the application configuration.
type Config struct {
	// Actions - commands launched on the card events.
	Actions actexec.Commands

	// LogLevel - minimum verbosity of the loggers.
	LogLevel core.LogLevel

	// LogPath - log file path, empty to log to stderr.
	LogPath string

	// RecoveryInterval - how often to restart the faulted reader monitor,
	// zero disables recovery.
	RecoveryInterval time.Duration

	// PollInterval - how often to re-list readers if the reader list change
	// notification isn't delivered.
	PollInterval time.Duration
}

// Loader reads the configuration from the file and the environment.
//
// Remarks:
//   - Environment variables have the CARD_DETECTOR_ prefix, dots in the keys
//     are replaced with underscores, e.g. CARD_DETECTOR_ACTIONS_INSERT_COMMAND.
//   - File format is selected by the file extension.
type Loader struct {
	path string

	mu sync.Mutex
	v  *viper.Viper
}

// NewLoader is an initialization of Loader.
//
// Parameters:
//   - path - configuration file path, empty to use only defaults and environment.
func NewLoader(path string) *Loader {
	v := viper.New()

	v.SetDefault("actions.insert.command", "")
	v.SetDefault("actions.insert.args", "")
	v.SetDefault("actions.remove.command", "")
	v.SetDefault("actions.remove.args", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("monitor.recovery_interval", "5s")
	v.SetDefault("monitor.poll_interval", "1s")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	}

	return &Loader{
		path: path,
		v:    v,
	}
}

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.path != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: path=%s err=%w", l.path, err)
		}
	}

	return l.decode()
}

// Watch reloads the configuration each time the file is changed.
//
// Remarks:
//   - handler is called from the standalone goroutine.
//   - Invalid configuration is logged and ignored.
func (l *Loader) Watch(handler func(cfg *Config)) error {
	if l.path == "" {
		return status.StatusInvalidState
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()

		if err != nil {
			core.LogErr.Printf("config: failed to reload: path=%s err=%v\n", l.path, err)

			return
		}

		core.LogInf.Printf("config: reloaded: path=%s\n", l.path)

		handler(cfg)
	})

	l.v.WatchConfig()

	return nil
}

func (l *Loader) decode() (*Config, error) {
	level, err := core.ParseLogLevel(l.v.GetString("log.level"))
	if err != nil {
		return nil, err
	}

	recoveryInterval, err := parseDuration(l.v, "monitor.recovery_interval")
	if err != nil {
		return nil, err
	}

	pollInterval, err := parseDuration(l.v, "monitor.poll_interval")
	if err != nil {
		return nil, err
	}

	if pollInterval <= 0 {
		return nil, fmt.Errorf("monitor.poll_interval should be positive: %s", pollInterval)
	}

	return &Config{
		Actions: actexec.Commands{
			Insert: actexec.Command{
				Command: l.v.GetString("actions.insert.command"),
				Args:    l.v.GetString("actions.insert.args"),
			},
			Remove: actexec.Command{
				Command: l.v.GetString("actions.remove.command"),
				Args:    l.v.GetString("actions.remove.args"),
			},
		},
		LogLevel:         level,
		LogPath:          l.v.GetString("log.path"),
		RecoveryInterval: recoveryInterval,
		PollInterval:     pollInterval,
	}, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration: key=%s err=%w", key, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("%s should not be negative: %s", key, d)
	}

	return d, nil
}
