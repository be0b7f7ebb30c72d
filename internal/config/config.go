package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Azure    AzureConfig    `yaml:"azure"`
	Consent  ConsentConfig  `yaml:"consent"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AzureConfig represents the service's own Azure AD identity and the Graph
// permissions requested for customer app registrations
type AzureConfig struct {
	TenantID           string   `yaml:"tenant_id"`
	ClientID           string   `yaml:"client_id"`
	ClientSecret       string   `yaml:"client_secret"`
	RedirectURI        string   `yaml:"redirect_uri"`
	AppDisplayName     string   `yaml:"app_display_name"`
	DefaultPermissions []string `yaml:"default_permissions"`
}

// ConsentConfig represents consent state-token configuration
type ConsentConfig struct {
	StateSecret string        `yaml:"state_secret"`
	StateTTL    time.Duration `yaml:"state_ttl"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if tenantID := os.Getenv("AZURE_TENANT_ID"); tenantID != "" {
		c.Azure.TenantID = tenantID
	}

	if clientID := os.Getenv("AZURE_CLIENT_ID"); clientID != "" {
		c.Azure.ClientID = clientID
	}

	if clientSecret := os.Getenv("AZURE_CLIENT_SECRET"); clientSecret != "" {
		c.Azure.ClientSecret = clientSecret
	}

	if redirectURI := os.Getenv("CONSENT_REDIRECT_URI"); redirectURI != "" {
		c.Azure.RedirectURI = redirectURI
	}

	if stateSecret := os.Getenv("CONSENT_STATE_SECRET"); stateSecret != "" {
		c.Consent.StateSecret = stateSecret
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		c.Server.Environment = env
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

// applyDefaults fills in unset values
func (c *Config) applyDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "m365-assessment-server"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Consent.StateTTL == 0 {
		c.Consent.StateTTL = time.Hour
	}
	if c.Azure.AppDisplayName == "" {
		c.Azure.AppDisplayName = "M365 Security Assessment"
	}
	if len(c.Azure.DefaultPermissions) == 0 {
		c.Azure.DefaultPermissions = []string{
			"Organization.Read.All",
			"Directory.Read.All",
			"Reports.Read.All",
			"SecurityEvents.Read.All",
		}
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate rejects configurations the server cannot run with
func (c *Config) validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (or set DATABASE_URL)")
	}
	if c.Consent.StateSecret == "" {
		return fmt.Errorf("consent.state_secret is required (or set CONSENT_STATE_SECRET)")
	}
	return nil
}

// IsProduction reports whether the server runs in production. Internal error
// detail is withheld from responses in production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
