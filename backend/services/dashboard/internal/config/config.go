package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	libconfig "parkdash/backend/libs/config"
)

const defaultStreamPath = "/ws/stats"

// Config defines dashboard configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"DASHBOARD_HTTP_PORT"`
	} `yaml:"http"`
	Backend struct {
		BaseURL   string        `yaml:"baseUrl" env:"PARKING_API_URL"`
		StreamURL string        `yaml:"streamUrl" env:"PARKING_STREAM_URL"`
		Timeout   time.Duration `yaml:"timeout" env:"PARKING_API_TIMEOUT"`
	} `yaml:"backend"`
	Stream struct {
		InitialBackoff time.Duration `yaml:"initialBackoff" env:"STREAM_INITIAL_BACKOFF"`
		MaxBackoff     time.Duration `yaml:"maxBackoff" env:"STREAM_MAX_BACKOFF"`
		PingInterval   time.Duration `yaml:"pingInterval" env:"STREAM_PING_INTERVAL"`
		WriteTimeout   time.Duration `yaml:"writeTimeout" env:"STREAM_WRITE_TIMEOUT"`
	} `yaml:"stream"`
	Roster struct {
		FetchTimeout time.Duration `yaml:"fetchTimeout" env:"ROSTER_FETCH_TIMEOUT"`
	} `yaml:"roster"`
	Payments struct {
		RecentLimit int `yaml:"recentLimit" env:"PAYMENTS_RECENT_LIMIT"`
	} `yaml:"payments"`
	Journal struct {
		Capacity int `yaml:"capacity" env:"JOURNAL_CAPACITY"`
	} `yaml:"journal"`
	Redis struct {
		Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
		Password string        `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int           `yaml:"db" env:"REDIS_DB"`
		TTL      time.Duration `yaml:"ttl" env:"JOURNAL_TTL"`
	} `yaml:"redis"`
	Audit struct {
		DSN string `yaml:"dsn" env:"AUDIT_POSTGRES_DSN"`
	} `yaml:"audit"`
	Console struct {
		PingInterval time.Duration `yaml:"pingInterval" env:"CONSOLE_PING_INTERVAL"`
		WriteTimeout time.Duration `yaml:"writeTimeout" env:"CONSOLE_WRITE_TIMEOUT"`
	} `yaml:"console"`
	Operator struct {
		Username string `yaml:"username" env:"OPERATOR_USERNAME"`
		Password string `yaml:"password" env:"OPERATOR_PASSWORD"`
	} `yaml:"operator"`
	DefaultCountry string `yaml:"defaultCountry" env:"DEFAULT_COUNTRY"`
}

// Default returns configuration with every optional value filled in.
func Default() *Config {
	cfg := &Config{DefaultCountry: "PL"}
	cfg.HTTP.Port = "8090"
	cfg.Backend.Timeout = 10 * time.Second
	cfg.Stream.InitialBackoff = time.Second
	cfg.Stream.MaxBackoff = 30 * time.Second
	cfg.Stream.PingInterval = 30 * time.Second
	cfg.Stream.WriteTimeout = 10 * time.Second
	cfg.Roster.FetchTimeout = 10 * time.Second
	cfg.Payments.RecentLimit = 50
	cfg.Journal.Capacity = 200
	cfg.Redis.TTL = 24 * time.Hour
	cfg.Console.PingInterval = 30 * time.Second
	cfg.Console.WriteTimeout = 10 * time.Second
	return cfg
}

// Load uses shared config loader and validates required fields.
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

// LoadFrom is Load with an explicit file path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfigFrom(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and normalizes the backend URLs.
func (c *Config) Validate() error {
	base := strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	if base == "" {
		return errors.New("config: parking api base url is required")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: invalid parking api base url %q", c.Backend.BaseURL)
	}
	c.Backend.BaseURL = base

	if strings.TrimSpace(c.Backend.StreamURL) == "" {
		c.Backend.StreamURL = deriveStreamURL(u)
	}
	if c.Stream.MaxBackoff < c.Stream.InitialBackoff {
		return errors.New("config: stream max backoff is below initial backoff")
	}
	if (c.Operator.Username == "") != (c.Operator.Password == "") {
		return errors.New("config: operator username and password must be set together")
	}
	c.DefaultCountry = strings.ToUpper(strings.TrimSpace(c.DefaultCountry))
	return nil
}

func deriveStreamURL(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + defaultStreamPath
	return u.String()
}

// HTTPAddress returns :port style address; a value that already names a host is kept.
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

// RedisEnabled reports whether the activity journal goes to Redis.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// AuditEnabled reports whether raw stream messages are stored in Postgres.
func (c *Config) AuditEnabled() bool {
	return strings.TrimSpace(c.Audit.DSN) != ""
}

// AutoLogin reports whether the operator is logged in at startup.
func (c *Config) AutoLogin() bool {
	return c.Operator.Username != ""
}
