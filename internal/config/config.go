// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for every environment override, e.g. NJUKA_ADDR.
const EnvPrefix = "njuka"

// Config is the runtime configuration for the njuka services.
// Values come from defaults, then an optional YAML file, then NJUKA_* environment variables.
type Config struct {
	Addr      string `yaml:"addr" envconfig:"addr"`
	LogLevel  string `yaml:"logLevel" envconfig:"log_level"`
	LogFormat string `yaml:"logFormat" envconfig:"log_format"`

	AllowedOrigins []string `yaml:"allowedOrigins" envconfig:"allowed_origins"`
	AdminUserIDs   []string `yaml:"adminUserIds" envconfig:"admin_user_ids"`

	Lobby struct {
		UnstartedTTL time.Duration `yaml:"unstartedTtl" envconfig:"unstarted_ttl"`
		StartedTTL   time.Duration `yaml:"startedTtl" envconfig:"started_ttl"`
	} `yaml:"lobby"`

	Ledger struct {
		// Backend is "memory" or "postgres".
		Backend      string  `yaml:"backend" envconfig:"backend"`
		HouseAccount string  `yaml:"houseAccount" envconfig:"house_account"`
		SeedBalance  float64 `yaml:"seedBalance" envconfig:"seed_balance"`
	} `yaml:"ledger"`

	Postgres struct {
		DSN         string `yaml:"dsn" envconfig:"dsn"`
		AutoMigrate bool   `yaml:"autoMigrate" envconfig:"auto_migrate"`
	} `yaml:"postgres"`

	Redis struct {
		Addr      string `yaml:"addr" envconfig:"addr"`
		DB        int    `yaml:"db" envconfig:"db"`
		QueueName string `yaml:"queueName" envconfig:"queue_name"`
	} `yaml:"redis"`

	Historian struct {
		BatchSize     int           `yaml:"batchSize" envconfig:"batch_size"`
		FlushInterval time.Duration `yaml:"flushInterval" envconfig:"flush_interval"`
		// Inactivity marks a game abandoned once no action arrived for this long.
		Inactivity time.Duration `yaml:"inactivity" envconfig:"inactivity"`
	} `yaml:"historian"`

	JWT struct {
		// PublicKeyPath points at the identity provider's raw ed25519 public key.
		PublicKeyPath string `yaml:"publicKeyPath" envconfig:"public_key_path"`
		Issuer        string `yaml:"issuer" envconfig:"issuer"`
	} `yaml:"jwt"`

	Lipila struct {
		BaseURL       string        `yaml:"baseUrl" envconfig:"base_url"`
		APIKey        string        `yaml:"apiKey" envconfig:"api_key"`
		WebhookSecret string        `yaml:"webhookSecret" envconfig:"webhook_secret"`
		CallbackURL   string        `yaml:"callbackUrl" envconfig:"callback_url"`
		Currency      string        `yaml:"currency" envconfig:"currency"`
		Timeout       time.Duration `yaml:"timeout" envconfig:"timeout"`
	} `yaml:"lipila"`
}

// Default returns a Config populated with development defaults.
func Default() Config {
	var c Config
	c.Addr = ":8080"
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.AllowedOrigins = []string{"*"}

	c.Lobby.UnstartedTTL = 30 * time.Minute
	c.Lobby.StartedTTL = 10 * time.Minute

	c.Ledger.Backend = "memory"
	c.Ledger.HouseAccount = "house"

	c.Redis.QueueName = "njuka_actions"

	c.Historian.BatchSize = 20
	c.Historian.FlushInterval = 500 * time.Millisecond
	c.Historian.Inactivity = 10 * time.Minute

	c.Lipila.BaseURL = "https://api.lipila.dev/api/v1"
	c.Lipila.Currency = "ZMW"
	c.Lipila.Timeout = 30 * time.Second
	return c
}

// Load builds the configuration. The YAML file named by NJUKA_CONFIG_FILE (default
// "config.yaml") is optional unless the variable is set explicitly.
func Load() (Config, error) {
	c := Default()

	path, explicit := os.LookupEnv("NJUKA_CONFIG_FILE")
	if !explicit {
		path = "config.yaml"
	}
	if err := c.loadFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings that would otherwise fail late at runtime.
func (c Config) Validate() error {
	switch c.Ledger.Backend {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres ledger requires NJUKA_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Ledger.HouseAccount == "" {
		return errors.New("house account must not be empty")
	}
	if c.Lobby.UnstartedTTL <= 0 || c.Lobby.StartedTTL <= 0 {
		return errors.New("lobby TTLs must be positive")
	}
	return nil
}

// IsAdmin reports whether userID is listed in AdminUserIDs.
func (c Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
