package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tollbooth/backend/services/toll-controller/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, "transaction_history.json", cfg.Ledger.Path)
	assert.Equal(t, []string{"-o", "{path}", "-t", "1"}, cfg.Capture.Args)
	assert.Equal(t, ":8090", cfg.HTTPAddress())
	assert.Equal(t, 500*time.Millisecond, cfg.SerialReadTimeout())
	assert.Equal(t, 10*time.Second, cfg.CaptureTimeout())
	assert.False(t, cfg.AuthEnabled())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toll.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
serial:
  port: /dev/ttyUSB0
  baudRate: 115200
ledger:
  path: /var/lib/toll/history.json
capture:
  command: raspistill
  args: ["-o", "{path}"]
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TOLL_SERIAL_PORT", "/dev/ttyACM1")
	t.Setenv("TOLL_HTTP_PORT", "127.0.0.1:9000")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM1", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 5, cfg.Serial.ReconnectAttempts)
	assert.Equal(t, "/var/lib/toll/history.json", cfg.Ledger.Path)
	assert.Equal(t, "raspistill", cfg.Capture.Command)
	assert.Equal(t, []string{"-o", "{path}"}, cfg.Capture.Args)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddress())
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *config.Config){
		"zero baud":           func(c *config.Config) { c.Serial.BaudRate = 0 },
		"empty ledger path":   func(c *config.Config) { c.Ledger.Path = " " },
		"empty command":       func(c *config.Config) { c.Capture.Command = "" },
		"missing placeholder": func(c *config.Config) { c.Capture.Args = []string{"-o", "out.jpg"} },
		"secret without hash": func(c *config.Config) { c.Auth.Secret = "s3cret" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, config.Default().Validate())
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TOLL_SERIAL_BAUD", "fast")
	_, err := config.Load()
	assert.Error(t, err)
}
