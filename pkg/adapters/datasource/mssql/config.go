package mssql

import (
	"fmt"
	"net/url"

	"github.com/schemadoc/schemadoc-engine/pkg/config"
)

// Auth methods supported for procedure reads.
const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod is "sql" or "service_principal".
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields
	TenantID     string
	ClientID     string
	ClientSecret string

	// Connection options
	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap creates a Config from a generic config map and auto-detects auth method.
func FromMap(m map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort(),
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
	}

	host, ok := m["host"].(string)
	if !ok || host == "" {
		return nil, fmt.Errorf("host is required")
	}
	cfg.Host = host

	cfg.Port = intValue(m["port"], cfg.Port)

	if database, ok := m["database"].(string); ok && database != "" {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	switch encrypt := m["encrypt"].(type) {
	case bool:
		cfg.Encrypt = encrypt
	case string:
		// "true", "false", "strict"
		cfg.Encrypt = encrypt == "true" || encrypt == "strict"
	}

	if trust, ok := m["trust_server_certificate"].(bool); ok {
		cfg.TrustServerCertificate = trust
	}
	cfg.ConnectionTimeout = intValue(m["connection_timeout"], cfg.ConnectionTimeout)

	if method, ok := m["auth_method"].(string); ok && method != "" {
		cfg.AuthMethod = method
	} else if _, hasClientID := m["client_id"].(string); hasClientID {
		cfg.AuthMethod = AuthServicePrincipal
	} else {
		cfg.AuthMethod = AuthSQL
	}

	switch cfg.AuthMethod {
	case AuthSQL:
		if username, ok := m["username"].(string); ok {
			cfg.Username = username
		} else if user, ok := m["user"].(string); ok {
			cfg.Username = user
		}
		if password, ok := m["password"].(string); ok {
			cfg.Password = password
		}
	case AuthServicePrincipal:
		cfg.TenantID, _ = m["tenant_id"].(string)
		cfg.ClientID, _ = m["client_id"].(string)
		cfg.ClientSecret, _ = m["client_secret"].(string)
	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", cfg.AuthMethod)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func intValue(v any, fallback int) int {
	switch n := v.(type) {
	case float64: // JSON numbers are float64
		return int(n)
	case int:
		return n
	}
	return fallback
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case AuthSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case AuthServicePrincipal:
		if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("tenant_id, client_id and client_secret are required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s", c.AuthMethod)
	}
	return nil
}

// DriverName returns the database/sql driver for the auth method.
func (c *Config) DriverName() string {
	if c.AuthMethod == AuthServicePrincipal {
		return "azuresql"
	}
	return "sqlserver"
}

// ConnectionString builds a sqlserver:// URL for the auth method.
func (c *Config) ConnectionString() string {
	query := url.Values{}
	query.Add("database", c.Database)
	if c.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", c.ConnectionTimeout))
	}

	host := config.DatasourceHost(c.Host)

	if c.AuthMethod == AuthServicePrincipal {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", c.ClientID+"@"+c.TenantID)
		query.Add("password", c.ClientSecret)
		return fmt.Sprintf("sqlserver://%s:%d?%s", host, c.Port, query.Encode())
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		host,
		c.Port,
		query.Encode(),
	)
}
