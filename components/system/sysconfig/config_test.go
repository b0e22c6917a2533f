package sysconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-control-systems/card-detector/components/core"
	"github.com/open-control-systems/card-detector/components/status"
)

func writeConfig(t *testing.T, path string, content string) {
	require.Nil(t, os.WriteFile(path, []byte(content), 0600))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.Nil(t, err)

	require.Empty(t, cfg.Actions.Insert.Command)
	require.Empty(t, cfg.Actions.Remove.Command)
	require.Equal(t, core.LogLevelInfo, cfg.LogLevel)
	require.Empty(t, cfg.LogPath)
	require.Equal(t, time.Second*5, cfg.RecoveryInterval)
	require.Equal(t, time.Second, cfg.PollInterval)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	writeConfig(t, path, `
actions:
  insert:
    command: /usr/bin/lock-off
    args: --user "card holder"
  remove:
    command: /usr/bin/lock-on
log:
  level: debug
  path: /tmp/card-detector.log
monitor:
  recovery_interval: 0s
  poll_interval: 250ms
`)

	cfg, err := NewLoader(path).Load()
	require.Nil(t, err)

	require.Equal(t, "/usr/bin/lock-off", cfg.Actions.Insert.Command)
	require.Equal(t, `--user "card holder"`, cfg.Actions.Insert.Args)
	require.Equal(t, "/usr/bin/lock-on", cfg.Actions.Remove.Command)
	require.Empty(t, cfg.Actions.Remove.Args)
	require.Equal(t, core.LogLevelDebug, cfg.LogLevel)
	require.Equal(t, "/tmp/card-detector.log", cfg.LogPath)
	require.Equal(t, time.Duration(0), cfg.RecoveryInterval)
	require.Equal(t, time.Millisecond*250, cfg.PollInterval)
}

func TestLoadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	writeConfig(t, path, `{"actions": {"remove": {"command": "logout"}}}`)

	cfg, err := NewLoader(path).Load()
	require.Nil(t, err)
	require.Equal(t, "logout", cfg.Actions.Remove.Command)
	require.Empty(t, cfg.Actions.Insert.Command)
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	writeConfig(t, path, `
actions:
  insert:
    command: from-file
`)

	t.Setenv("CARD_DETECTOR_ACTIONS_INSERT_COMMAND", "from-env")
	t.Setenv("CARD_DETECTOR_LOG_LEVEL", "warning")

	cfg, err := NewLoader(path).Load()
	require.Nil(t, err)
	require.Equal(t, "from-env", cfg.Actions.Insert.Command)
	require.Equal(t, core.LogLevelWarning, cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	require.NotNil(t, err)
}

func TestLoadInvalidValues(t *testing.T) {
	for _, content := range []string{
		"log:\n  level: verbose\n",
		"monitor:\n  poll_interval: 0s\n",
		"monitor:\n  recovery_interval: -1s\n",
		"monitor:\n  recovery_interval: often\n",
	} {
		path := filepath.Join(t.TempDir(), "config.yaml")
		writeConfig(t, path, content)

		_, err := NewLoader(path).Load()
		require.NotNil(t, err, content)
	}
}

func TestWatchWithoutFile(t *testing.T) {
	require.Equal(t, status.StatusInvalidState, NewLoader("").Watch(func(*Config) {}))
}

func TestWatchReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	writeConfig(t, path, "actions:\n  insert:\n    command: first\n")

	loader := NewLoader(path)

	cfg, err := loader.Load()
	require.Nil(t, err)
	require.Equal(t, "first", cfg.Actions.Insert.Command)

	cfgCh := make(chan *Config, 16)

	require.Nil(t, loader.Watch(func(cfg *Config) {
		cfgCh <- cfg
	}))

	writeConfig(t, path, "actions:\n  insert:\n    command: second\n")

	for {
		select {
		case cfg := <-cfgCh:
			if cfg.Actions.Insert.Command == "second" {
				return
			}

		case <-time.After(time.Second * 5):
			t.Fatal("timeout waiting for config reload")
		}
	}
}
