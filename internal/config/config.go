// Package config loads the service configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration
type Config struct {
	Server           ServerConfig           `yaml:"server"`
	Repository       RepositoryConfig       `yaml:"repository"`
	Solr             SolrConfig             `yaml:"solr"`
	CalDAV           CalDAVConfig           `yaml:"caldav"`
	ForeignPrincipal ForeignPrincipalConfig `yaml:"foreignPrincipal"`
	SMTP             SMTPConfig             `yaml:"smtp"`
	Notifications    NotificationsConfig    `yaml:"notifications"`
	Notices          NoticesConfig          `yaml:"notices"`
	Oracle           OracleConfig           `yaml:"oracle"`
	Provision        ProvisionConfig        `yaml:"provision"`
	Migrators        MigratorsConfig        `yaml:"migrators"`
	Root             RootConfig             `yaml:"root"`
	Log              LogConfig              `yaml:"log"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
	// CASHeader names the header a trusted CAS proxy sets to the user id.
	CASHeader string `yaml:"casHeader"`
	Realm     string `yaml:"realm"`
}

type RepositoryConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory badger"`
	Path    string `yaml:"path" validate:"required_if=Backend badger"`
}

type SolrConfig struct {
	// URL of the Solr core. Empty disables indexing and indexed search.
	URL     string        `yaml:"url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout"`
}

type CalDAVConfig struct {
	AdminUsername  string        `yaml:"adminUsername"`
	AdminPassword  string        `yaml:"adminPassword"`
	ServerRoot     string        `yaml:"serverRoot" validate:"omitempty,url"`
	Timeout        time.Duration `yaml:"timeout"`
	Embedded       bool          `yaml:"embedded"`
	EmbeddedSearch bool          `yaml:"embeddedSearch"`
	// MigrationWorkers and MigrationRate pace migrate-caldav.
	MigrationWorkers int     `yaml:"migrationWorkers" validate:"gte=0"`
	MigrationRate    float64 `yaml:"migrationRate" validate:"gte=0"`
}

type ForeignPrincipalConfig struct {
	Secret     string        `yaml:"secret" validate:"required"`
	TTL        time.Duration `yaml:"ttl"`
	CookieName string        `yaml:"cookieName"`
	Redirect   string        `yaml:"redirect"`
}

type SMTPConfig struct {
	Server        string        `yaml:"server" validate:"required"`
	Port          int           `yaml:"port" validate:"gt=0,lte=65535"`
	SendEmail     bool          `yaml:"sendEmail"`
	RetryInterval time.Duration `yaml:"retryInterval"`
	MaxRetries    int           `yaml:"maxRetries" validate:"gte=0"`
}

type NotificationsConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	EmailStyle   string        `yaml:"emailStyle" validate:"oneof=myb calcentral"`
	SendReceipts bool          `yaml:"sendReceipts"`
}

type NoticesConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	Environment  string        `yaml:"environment" validate:"oneof=prod dev"`
	AdvisorGroup string        `yaml:"advisorGroup" validate:"required"`
}

// OracleConfig points at the campus data warehouse. Either DSN or Server
// may be set; with neither the provisioning endpoints are disabled.
type OracleConfig struct {
	DSN      string `yaml:"dsn"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Service  string `yaml:"service" validate:"required_with=Server"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Enabled reports whether a connection is configured.
func (c OracleConfig) Enabled() bool {
	return c.DSN != "" || c.Server != ""
}

type ProvisionConfig struct {
	Workers int `yaml:"workers" validate:"gte=0"`
}

type MigratorsConfig struct {
	// PubspacePagesPerSecond paces the pubspace migrator. Zero disables pacing.
	PubspacePagesPerSecond float64 `yaml:"pubspacePagesPerSecond" validate:"gte=0"`
}

type RootConfig struct {
	Path          string `yaml:"path"`
	AdminPassword string `yaml:"adminPassword"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

var validate = validator.New()

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, fills in defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.Realm == "" {
		c.Server.Realm = "MyBerkeley"
	}
	if c.Repository.Backend == "" {
		c.Repository.Backend = "memory"
	}
	if c.Solr.Timeout == 0 {
		c.Solr.Timeout = 10 * time.Second
	}
	if c.CalDAV.AdminUsername == "" {
		c.CalDAV.AdminUsername = "admin"
	}
	if c.CalDAV.AdminPassword == "" {
		c.CalDAV.AdminPassword = "bedework"
	}
	if c.CalDAV.ServerRoot == "" && !c.CalDAV.Embedded {
		c.CalDAV.ServerRoot = "http://test.media.berkeley.edu:8080"
	}
	if c.CalDAV.Timeout == 0 {
		c.CalDAV.Timeout = 30 * time.Second
	}
	if c.ForeignPrincipal.TTL == 0 {
		c.ForeignPrincipal.TTL = 2 * time.Hour
	}
	if c.ForeignPrincipal.CookieName == "" {
		c.ForeignPrincipal.CookieName = "foreignprincipal"
	}
	if c.ForeignPrincipal.Redirect == "" {
		c.ForeignPrincipal.Redirect = "/index.html"
	}
	if c.SMTP.Server == "" {
		c.SMTP.Server = "localhost"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 25
	}
	if c.SMTP.RetryInterval == 0 {
		c.SMTP.RetryInterval = 30 * time.Minute
	}
	if c.SMTP.MaxRetries == 0 {
		c.SMTP.MaxRetries = 240
	}
	if c.Notifications.PollInterval == 0 {
		c.Notifications.PollInterval = 60 * time.Second
	}
	if c.Notifications.EmailStyle == "" {
		c.Notifications.EmailStyle = "myb"
	}
	if c.Notices.PollInterval == 0 {
		c.Notices.PollInterval = 30 * time.Second
	}
	if c.Notices.Environment == "" {
		c.Notices.Environment = "prod"
	}
	if c.Notices.AdvisorGroup == "" {
		c.Notices.AdvisorGroup = "g-ced-advisors"
	}
	if c.Oracle.Server != "" && c.Oracle.Port == 0 {
		c.Oracle.Port = 1521
	}
	if c.Provision.Workers == 0 {
		c.Provision.Workers = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}
