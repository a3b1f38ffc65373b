// Package config loads the application configuration from the environment,
// an optional .env file and an optional JSON config file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	kJson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults for unset keys.
const (
	DefaultRulesDBPath   = "db.json"
	DefaultGrabberDBPath = "grabber.db.json"
	DefaultExportDir     = "for-import"
	DefaultExportFormat  = "csv"
	DefaultBaseURL       = "https://bankaccountdata.gocardless.com/api/v2"
	DefaultRedirectURL   = "http://localhost:6767/"
)

// Config holds the application configuration.
type Config struct {
	// RulesDBPath is the JSON file holding accounts and auto-posting rules.
	// Environment variable: RULES_DB_PATH
	RulesDBPath string `koanf:"RULES_DB_PATH"`

	// GrabberDBPath is the JSON file holding banks and groups.
	// Environment variable: GRABBER_DB_PATH
	GrabberDBPath string `koanf:"GRABBER_DB_PATH"`

	// ExportDir is where exported files are written.
	// Environment variable: EXPORT_DIR
	ExportDir string `koanf:"EXPORT_DIR"`

	// ExportFormat names the writer plugin (csv, json, postgres).
	// Environment variable: EXPORT_FORMAT
	ExportFormat string `koanf:"EXPORT_FORMAT"`

	GoCardlessSecretID  string `koanf:"GOCARDLESS_SECRET_ID"`
	GoCardlessSecretKey string `koanf:"GOCARDLESS_SECRET_KEY"`
	GoCardlessBaseURL   string `koanf:"GOCARDLESS_BASE_URL"`
	GoCardlessRedirect  string `koanf:"GOCARDLESS_REDIRECT_URL"`

	PostgresDSN      string `koanf:"POSTGRES_DSN"`
	PostgresHost     string `koanf:"POSTGRES_HOST"`
	PostgresPort     int    `koanf:"POSTGRES_PORT"`
	PostgresDB       string `koanf:"POSTGRES_DB"`
	PostgresUser     string `koanf:"POSTGRES_USER"`
	PostgresPassword string `koanf:"POSTGRES_PASSWORD"`
	PostgresSSLMode  string `koanf:"POSTGRES_SSLMODE"`

	LogLevel  string `koanf:"LOG_LEVEL"`
	LogFormat string `koanf:"LOG_FORMAT"`
}

// Load reads configuration. A .env file in the working directory is loaded
// into the environment when present. When configFile is set it is read
// first; environment variables override its values.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), kJson.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configFile, err)
		}
	}

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.RulesDBPath, DefaultRulesDBPath)
	setDefault(&c.GrabberDBPath, DefaultGrabberDBPath)
	setDefault(&c.ExportDir, DefaultExportDir)
	setDefault(&c.ExportFormat, DefaultExportFormat)
	setDefault(&c.GoCardlessBaseURL, DefaultBaseURL)
	setDefault(&c.GoCardlessRedirect, DefaultRedirectURL)
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Validate reports every required key that has no value.
func (c *Config) Validate(required ...string) error {
	values := map[string]string{
		"RULES_DB_PATH":           c.RulesDBPath,
		"GRABBER_DB_PATH":         c.GrabberDBPath,
		"EXPORT_DIR":              c.ExportDir,
		"EXPORT_FORMAT":           c.ExportFormat,
		"GOCARDLESS_SECRET_ID":    c.GoCardlessSecretID,
		"GOCARDLESS_SECRET_KEY":   c.GoCardlessSecretKey,
		"GOCARDLESS_BASE_URL":     c.GoCardlessBaseURL,
		"GOCARDLESS_REDIRECT_URL": c.GoCardlessRedirect,
		"POSTGRES_DSN":            c.PostgresDSN,
		"POSTGRES_HOST":           c.PostgresHost,
		"POSTGRES_DB":             c.PostgresDB,
		"POSTGRES_USER":           c.PostgresUser,
	}

	var missing []string
	for _, key := range required {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// WriterConfig returns the JSON configuration for the export writer plugin.
// filePath is ignored by plugins that do not write files.
func (c *Config) WriterConfig(filePath string) (json.RawMessage, error) {
	var v any
	switch c.ExportFormat {
	case "postgres":
		v = map[string]any{
			"dsn":      c.PostgresDSN,
			"host":     c.PostgresHost,
			"port":     c.PostgresPort,
			"database": c.PostgresDB,
			"user":     c.PostgresUser,
			"password": c.PostgresPassword,
			"sslmode":  c.PostgresSSLMode,
		}
	default:
		v = map[string]any{"filePath": filePath}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling writer config: %w", err)
	}
	return data, nil
}
