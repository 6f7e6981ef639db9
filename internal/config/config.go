// Package config loads Command Center settings from an optional YAML file,
// a .env file and the process environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "commandcenter.yaml"

// Config is the full runtime configuration.
type Config struct {
	Host          string        `yaml:"host"`
	Port          string        `yaml:"port"`
	BaseURL       string        `yaml:"base_url"`
	DBPath        string        `yaml:"db_path"`
	AdminPassword string        `yaml:"admin_password"`
	DemoFallback  bool          `yaml:"demo_fallback"`
	Google        GoogleConfig  `yaml:"google"`
	Session       SessionConfig `yaml:"session"`
	Fetch         FetchConfig   `yaml:"fetch"`
	Discovery     Discovery     `yaml:"discovery"`
}

// GoogleConfig holds the OAuth client used for every connected account.
type GoogleConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// SessionConfig controls the browser session cookie.
type SessionConfig struct {
	Days          int  `yaml:"days"`
	RefreshDays   int  `yaml:"refresh_days"`
	SecureCookies bool `yaml:"secure_cookies"`
}

// FetchConfig bounds the per-request fan-out to Google.
type FetchConfig struct {
	Concurrency      int `yaml:"concurrency"`
	MaxResults       int `yaml:"max_results"`
	ContactsMaxPages int `yaml:"contacts_max_pages"`
}

// Discovery points at the JSON file an external agent job drops for the
// relationships importer.
type Discovery struct {
	File string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:    "127.0.0.1",
		Port:    "8080",
		BaseURL: "",
		DBPath:  "commandcenter.db",
		Session: SessionConfig{
			Days:        30,
			RefreshDays: 7,
		},
		Fetch: FetchConfig{
			Concurrency:      4,
			MaxResults:       20,
			ContactsMaxPages: 0,
		},
		Discovery: Discovery{
			File: "data/relationship_discovery.json",
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// $CC_CONFIG and then ./commandcenter.yaml are tried; a missing file is not an
// error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("⚠️  Failed to read .env: %v", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("CC_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		log.Printf("📄 Loaded config from %s", path)
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	setString(&c.Host, getenv("HOST"))
	setString(&c.Port, getenv("PORT"))
	setString(&c.BaseURL, getenv("CC_BASE_URL"))
	setString(&c.DBPath, getenv("CC_DB_PATH"))
	setString(&c.AdminPassword, getenv("CC_ADMIN_PASSWORD"))
	setString(&c.Google.ClientID, getenv("GOOGLE_CLIENT_ID"))
	setString(&c.Google.ClientSecret, getenv("GOOGLE_CLIENT_SECRET"))
	setString(&c.Discovery.File, getenv("CC_DISCOVERY_FILE"))
	setInt(&c.Session.Days, getenv("CC_SESSION_DAYS"))
	setInt(&c.Fetch.Concurrency, getenv("CC_FETCH_CONCURRENCY"))
	setInt(&c.Fetch.ContactsMaxPages, getenv("CC_CONTACTS_MAX_PAGES"))
	setBool(&c.DemoFallback, getenv("CC_DEMO_FALLBACK"))
	setBool(&c.Session.SecureCookies, getenv("CC_SECURE_COOKIES"))
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// ExternalURL is the base URL the browser uses; it falls back to the
// listen address.
func (c *Config) ExternalURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return "http://localhost:" + c.Port
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Google.ClientID) == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if strings.TrimSpace(c.Google.ClientSecret) == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Session.Days <= 0 {
		return fmt.Errorf("session days must be positive, got %d", c.Session.Days)
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️  Ignoring non-numeric value %q", v)
		return
	}
	*dst = n
}

func setBool(dst *bool, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("⚠️  Ignoring non-boolean value %q", v)
		return
	}
	*dst = b
}
