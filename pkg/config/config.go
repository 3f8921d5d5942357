package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Procedure sources for stored-procedure join analysis.
const (
	ProcedureSourceMetadata   = "metadata"
	ProcedureSourceDatasource = "datasource"
)

// Config holds all configuration for schemadoc-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Database configuration (PostgreSQL metadata store)
	Database DatabaseConfig `yaml:"database"`

	// Live datasource access (used when detection reads procedures from the source database)
	Datasource DatasourceConfig `yaml:"datasource"`

	// Logical FK detection
	Detection DetectionConfig `yaml:"detection"`

	// MCP server
	MCP MCPConfig `yaml:"mcp"`

	// Credential encryption key for datasource configs.
	// Must be a 32-byte key, base64 encoded. Generate with: openssl rand -base64 32
	ProjectCredentialsKey string `yaml:"-" env:"PROJECT_CREDENTIALS_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"schemadoc"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"schemadoc_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// DatasourceConfig holds live datasource connection settings.
type DatasourceConfig struct {
	// ConnectTimeout bounds opening a connection to a project's source database.
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"DATASOURCE_CONNECT_TIMEOUT" env-default:"10s"`
	// PoolMaxConns is the maximum number of connections per datasource pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"4"`
}

// DetectionConfig controls logical FK detection runs.
type DetectionConfig struct {
	// ProcedureSource is "metadata" (mirrored definitions) or "datasource" (read live).
	ProcedureSource string `yaml:"procedure_source" env:"DETECTION_PROCEDURE_SOURCE" env-default:"metadata"`

	// SPAnalysisTimeout bounds loading procedure definitions. On timeout the run
	// continues with naming-convention evidence only.
	SPAnalysisTimeout time.Duration `yaml:"sp_analysis_timeout" env:"DETECTION_SP_ANALYSIS_TIMEOUT" env-default:"30s"`

	// UseAdvisoryLock serializes persisting runs for the same project.
	UseAdvisoryLock bool `yaml:"use_advisory_lock" env:"DETECTION_USE_ADVISORY_LOCK" env-default:"true"`

	// IrregularPlurals lets naming-convention detection resolve irregular English
	// plurals (person_id → people) after the standard suffix attempts miss.
	IrregularPlurals bool `yaml:"irregular_plurals" env:"DETECTION_IRREGULAR_PLURALS" env-default:"false"`

	// LoadRetries is the number of attempts for bulk metadata reads.
	LoadRetries int `yaml:"load_retries" env:"DETECTION_LOAD_RETRIES" env-default:"3"`
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"MCP_PATH" env-default:"/mcp"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if err := cfg.Detection.validate(); err != nil {
		return nil, fmt.Errorf("invalid detection configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

func (d *DetectionConfig) validate() error {
	switch d.ProcedureSource {
	case ProcedureSourceMetadata, ProcedureSourceDatasource:
	default:
		return fmt.Errorf("procedure_source must be %q or %q, got %q",
			ProcedureSourceMetadata, ProcedureSourceDatasource, d.ProcedureSource)
	}
	if d.SPAnalysisTimeout <= 0 {
		return fmt.Errorf("sp_analysis_timeout must be positive")
	}
	if d.LoadRetries < 1 {
		d.LoadRetries = 1
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
