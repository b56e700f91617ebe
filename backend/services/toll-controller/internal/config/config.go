package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "tollbooth/backend/libs/config"

	"tollbooth/backend/services/toll-controller/internal/capture"
)

// Serial is the controller link.
type Serial struct {
	Port                 string `yaml:"port" env:"TOLL_SERIAL_PORT"`
	BaudRate             int    `yaml:"baudRate" env:"TOLL_SERIAL_BAUD"`
	ReadTimeoutMillis    int    `yaml:"readTimeoutMillis" env:"TOLL_SERIAL_READ_TIMEOUT_MS"`
	ReconnectAttempts    int    `yaml:"reconnectAttempts" env:"TOLL_SERIAL_RECONNECT_ATTEMPTS"`
	ReconnectDelayMillis int    `yaml:"reconnectDelayMillis" env:"TOLL_SERIAL_RECONNECT_DELAY_MS"`
	MaxLineBytes         int    `yaml:"maxLineBytes" env:"TOLL_SERIAL_MAX_LINE"`
}

// Ledger is the transaction file.
type Ledger struct {
	Path                 string `yaml:"path" env:"TOLL_LEDGER_PATH"`
	FlushIntervalSeconds int    `yaml:"flushIntervalSeconds" env:"TOLL_LEDGER_FLUSH_INTERVAL"`
}

// Capture is the external camera command.
type Capture struct {
	Dir            string   `yaml:"dir" env:"TOLL_CAPTURE_DIR"`
	Extension      string   `yaml:"extension" env:"TOLL_CAPTURE_EXT"`
	Command        string   `yaml:"command" env:"TOLL_CAPTURE_COMMAND"`
	Args           []string `yaml:"args" env:"TOLL_CAPTURE_ARGS"`
	TimeoutSeconds int      `yaml:"timeoutSeconds" env:"TOLL_CAPTURE_TIMEOUT"`
}

// Config represents toll controller configuration loaded from YAML/env.
type Config struct {
	Serial  Serial  `yaml:"serial"`
	Ledger  Ledger  `yaml:"ledger"`
	Capture Capture `yaml:"capture"`
	HTTP    struct {
		Port string `yaml:"port" env:"TOLL_HTTP_PORT"`
	} `yaml:"http"`
	WebSocket struct {
		WriteTimeoutSeconds int `yaml:"writeTimeoutSeconds" env:"TOLL_WS_WRITE_TIMEOUT"`
	} `yaml:"websocket"`
	Database struct {
		DSN string `yaml:"dsn" env:"TOLL_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"TOLL_REDIS_ADDR"`
		Password string `yaml:"password" env:"TOLL_REDIS_PASSWORD"`
	} `yaml:"redis"`
	Auth struct {
		Secret           string `yaml:"secret" env:"TOLL_JWT_SECRET"`
		Operator         string `yaml:"operator" env:"TOLL_OPERATOR"`
		PasswordHash     string `yaml:"passwordHash" env:"TOLL_OPERATOR_PASSWORD_HASH"`
		ExpiresInMinutes int    `yaml:"expiresInMinutes" env:"TOLL_JWT_EXPIRES_MINUTES"`
	} `yaml:"auth"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg := &Config{
		Serial: Serial{
			Port:                 "/dev/ttyACM0",
			BaudRate:             9600,
			ReadTimeoutMillis:    500,
			ReconnectAttempts:    5,
			ReconnectDelayMillis: 1000,
			MaxLineBytes:         1024,
		},
		Ledger: Ledger{
			Path:                 "transaction_history.json",
			FlushIntervalSeconds: 30,
		},
		Capture: Capture{
			Dir:            "toll_images",
			Extension:      "jpg",
			Command:        "libcamera-still",
			Args:           []string{"-o", capture.PathPlaceholder, "-t", "1"},
			TimeoutSeconds: 10,
		},
	}
	cfg.HTTP.Port = "8090"
	cfg.WebSocket.WriteTimeoutSeconds = 5
	cfg.Auth.Operator = "operator"
	cfg.Auth.ExpiresInMinutes = 60
	return cfg
}

// Load applies CONFIG_FILE and environment overrides on top of Default and validates.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the controller cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Serial.Port) == "" {
		errs = append(errs, errors.New("config: serial port is required"))
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("config: serial baud rate must be positive, got %d", c.Serial.BaudRate))
	}
	if strings.TrimSpace(c.Ledger.Path) == "" {
		errs = append(errs, errors.New("config: ledger path is required"))
	}
	if strings.TrimSpace(c.Capture.Command) == "" {
		errs = append(errs, errors.New("config: capture command is required"))
	}
	if !hasPlaceholder(c.Capture.Args) {
		errs = append(errs, fmt.Errorf("config: capture args must contain %s", capture.PathPlaceholder))
	}
	if c.AuthEnabled() && strings.TrimSpace(c.Auth.PasswordHash) == "" {
		errs = append(errs, errors.New("config: operator password hash is required when jwt secret is set"))
	}
	return errors.Join(errs...)
}

func hasPlaceholder(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, capture.PathPlaceholder) {
			return true
		}
	}
	return false
}

// AuthEnabled reports whether the API requires tokens.
func (c *Config) AuthEnabled() bool {
	return strings.TrimSpace(c.Auth.Secret) != ""
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8090"
	}
	if strings.Contains(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// SerialReadTimeout converts the configured read timeout.
func (c *Config) SerialReadTimeout() time.Duration {
	if c.Serial.ReadTimeoutMillis <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.Serial.ReadTimeoutMillis) * time.Millisecond
}

// ReconnectDelay converts the configured delay between reopen attempts.
func (c *Config) ReconnectDelay() time.Duration {
	if c.Serial.ReconnectDelayMillis <= 0 {
		return time.Second
	}
	return time.Duration(c.Serial.ReconnectDelayMillis) * time.Millisecond
}

// FlushInterval is how often a dirty ledger is rewritten.
func (c *Config) FlushInterval() time.Duration {
	if c.Ledger.FlushIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Ledger.FlushIntervalSeconds) * time.Second
}

// CaptureTimeout bounds the external capture command.
func (c *Config) CaptureTimeout() time.Duration {
	if c.Capture.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Capture.TimeoutSeconds) * time.Second
}

// WSWriteTimeout bounds each WebSocket write.
func (c *Config) WSWriteTimeout() time.Duration {
	if c.WebSocket.WriteTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.WebSocket.WriteTimeoutSeconds) * time.Second
}

// JWTExpiration converts configured expiry to duration.
func (c *Config) JWTExpiration() time.Duration {
	if c.Auth.ExpiresInMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Auth.ExpiresInMinutes) * time.Minute
}
