package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// writeConfig marshals values into a config.yaml in a temp dir and returns its path.
func writeConfig(t *testing.T, values map[string]any) string {
	t.Helper()
	data, err := yaml.Marshal(values)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
}

func TestLoadFile_EnvOverridesYAML(t *testing.T) {
	clearEnv(t, "PGHOST", "BASE_URL", "DETECTION_PROCEDURE_SOURCE")
	path := writeConfig(t, map[string]any{
		"port": "3443",
		"env":  "test",
		"database": map[string]any{
			"host":     "db.example.com",
			"port":     5432,
			"database": "testdb",
		},
		"detection": map[string]any{
			"procedure_source":    "datasource",
			"sp_analysis_timeout": "45s",
		},
	})

	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DETECTION_USE_ADVISORY_LOCK", "false")
	t.Setenv("DETECTION_IRREGULAR_PLURALS", "true")

	cfg, err := LoadFile(path, "test-version")
	require.NoError(t, err)

	assert.Equal(t, "4443", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "http://localhost:4443", cfg.BaseURL)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, ProcedureSourceDatasource, cfg.Detection.ProcedureSource)
	assert.Equal(t, 45*time.Second, cfg.Detection.SPAnalysisTimeout)
	assert.False(t, cfg.Detection.UseAdvisoryLock)
	assert.True(t, cfg.Detection.IrregularPlurals)
}

func TestLoadFile_Defaults(t *testing.T) {
	clearEnv(t, "PORT", "BASE_URL", "DETECTION_PROCEDURE_SOURCE", "DETECTION_USE_ADVISORY_LOCK", "DETECTION_IRREGULAR_PLURALS",
		"DETECTION_SP_ANALYSIS_TIMEOUT", "MCP_ENABLED", "MCP_PATH")
	path := writeConfig(t, map[string]any{"env": "test"})

	cfg, err := LoadFile(path, "v")
	require.NoError(t, err)

	assert.Equal(t, ProcedureSourceMetadata, cfg.Detection.ProcedureSource)
	assert.Equal(t, 30*time.Second, cfg.Detection.SPAnalysisTimeout)
	assert.True(t, cfg.Detection.UseAdvisoryLock)
	assert.Equal(t, 3, cfg.Detection.LoadRetries)
	assert.False(t, cfg.Detection.IrregularPlurals)
	assert.True(t, cfg.MCP.Enabled)
	assert.Equal(t, "/mcp", cfg.MCP.Path)
	assert.Equal(t, "http://localhost:3443", cfg.BaseURL)
}

func TestLoadFile_InvalidProcedureSource(t *testing.T) {
	clearEnv(t, "DETECTION_PROCEDURE_SOURCE")
	path := writeConfig(t, map[string]any{
		"detection": map[string]any{"procedure_source": "crawler"},
	})

	_, err := LoadFile(path, "v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "procedure_source")
}

func TestLoadFile_TLSRequiresBoth(t *testing.T) {
	clearEnv(t, "TLS_CERT_PATH", "TLS_KEY_PATH")
	path := writeConfig(t, map[string]any{"tls_cert_path": "/tmp/cert.pem"})

	_, err := LoadFile(path, "v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be provided together")
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), "v")
	assert.Error(t, err)
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "require"}
	assert.Equal(t, "host=h port=5433 user=u password=p dbname=d sslmode=require", c.ConnectionString())
}
