package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cc.yaml")
	yml := `
port: "9090"
demo_fallback: true
google:
  client_id: file-client
  client_secret: file-secret
fetch:
  concurrency: 2
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GOOGLE_CLIENT_ID", "env-client")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")
	t.Setenv("PORT", "")
	t.Setenv("CC_FETCH_CONCURRENCY", "")
	t.Setenv("CC_SESSION_DAYS", "")
	t.Setenv("CC_DEMO_FALLBACK", "")
	t.Setenv("CC_CONTACTS_MAX_PAGES", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.Google.ClientID != "env-client" {
		t.Errorf("ClientID = %q, env should override file", cfg.Google.ClientID)
	}
	if cfg.Google.ClientSecret != "file-secret" {
		t.Errorf("ClientSecret = %q", cfg.Google.ClientSecret)
	}
	if !cfg.DemoFallback {
		t.Error("DemoFallback should be read from file")
	}
	if cfg.Fetch.Concurrency != 2 || cfg.Fetch.ContactsMaxPages != 5 {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
	if cfg.Session.Days != 30 {
		t.Errorf("Session.Days default lost: %d", cfg.Session.Days)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for explicit missing config file")
	}
}

func TestApplyEnv_IgnoresGarbage(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"CC_FETCH_CONCURRENCY": "many",
		"CC_DEMO_FALLBACK":     "perhaps",
		"PORT":                 " 7000 ",
	}
	cfg.applyEnv(func(k string) string { return env[k] })

	if cfg.Fetch.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want default 4", cfg.Fetch.Concurrency)
	}
	if cfg.DemoFallback {
		t.Error("DemoFallback should stay false")
	}
	if cfg.Port != "7000" {
		t.Errorf("Port = %q, want trimmed 7000", cfg.Port)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing credential error")
	}
	cfg.Google.ClientID = "id"
	cfg.Google.ClientSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestExternalURL(t *testing.T) {
	cfg := Default()
	if got := cfg.ExternalURL(); got != "http://localhost:8080" {
		t.Errorf("ExternalURL() = %q", got)
	}
	cfg.BaseURL = "https://cc.example.com/"
	if got := cfg.ExternalURL(); got != "https://cc.example.com" {
		t.Errorf("ExternalURL() = %q", got)
	}
}
