package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  dsn: "postgres://localhost/marketauth"
token:
  issuer: "https://auth.example"
external_token:
  metadata_address: "https://login.example/.well-known/openid-configuration"
  issuer: "https://login.example/v2.0"
  audience: "backend-app-id"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.Server.Addr != ":8080" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
	if c.Cache.Kind != "memory" {
		t.Errorf("cache kind = %q", c.Cache.Kind)
	}
	if c.Token.KeyName != "marketauth-signing" {
		t.Errorf("key name = %q", c.Token.KeyName)
	}
	if c.TicketTTL() != 5*time.Minute {
		t.Errorf("ticket ttl = %v", c.TicketTTL())
	}
	if c.MetadataTTL() != 5*time.Minute {
		t.Errorf("metadata ttl = %v", c.MetadataTTL())
	}
	if c.ExternalToken.AllowAll {
		t.Error("allow_all debe arrancar deshabilitado")
	}
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
app:
  app_env: prod
  log_level: warn
server:
  addr: ":9000"
cache:
  kind: redis
  redis:
    addr: "redis:6379"
    db: 2
    prefix: "marketauth"
token:
  issuer: "https://auth.example"
  key_name: "custom-signing"
external_token:
  metadata_address: "https://login.example/meta"
  issuer: "https://login.example/v2.0"
  audience: "app-id"
  metadata_ttl: "90s"
ticket:
  ttl: "10m"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.App.Env != "prod" || c.App.LogLevel != "warn" {
		t.Errorf("app block = %+v", c.App)
	}
	if c.Server.Addr != ":9000" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
	if c.Cache.Kind != "redis" || c.Cache.Redis.Addr != "redis:6379" || c.Cache.Redis.DB != 2 {
		t.Errorf("cache block = %+v", c.Cache)
	}
	if c.Token.KeyName != "custom-signing" {
		t.Errorf("key name = %q", c.Token.KeyName)
	}
	if c.MetadataTTL() != 90*time.Second {
		t.Errorf("metadata ttl = %v", c.MetadataTTL())
	}
	if c.TicketTTL() != 10*time.Minute {
		t.Errorf("ticket ttl = %v", c.TicketTTL())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("STORAGE_DSN", "postgres://other/db")
	t.Setenv("TOKEN_ISSUER", "https://override.example")
	t.Setenv("EXTERNAL_TOKEN_ALLOW_ALL", "true")
	t.Setenv("TICKET_TTL", "30s")

	path := writeConfig(t, `
server:
  addr: ":8080"
storage:
  dsn: "postgres://localhost/marketauth"
token:
  issuer: "https://auth.example"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.Server.Addr != ":7070" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
	if c.Storage.DSN != "postgres://other/db" {
		t.Errorf("dsn = %q", c.Storage.DSN)
	}
	if c.Token.Issuer != "https://override.example" {
		t.Errorf("issuer = %q", c.Token.Issuer)
	}
	if !c.ExternalToken.AllowAll {
		t.Error("allow_all override no aplicado")
	}
	if c.TicketTTL() != 30*time.Second {
		t.Errorf("ticket ttl = %v", c.TicketTTL())
	}
}

func TestLoad_MalformedTTLFallsBack(t *testing.T) {
	path := writeConfig(t, `
ticket:
  ttl: "whenever"
external_token:
  metadata_ttl: "-1m"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.TicketTTL() != 5*time.Minute {
		t.Errorf("ticket ttl = %v, want default", c.TicketTTL())
	}
	if c.MetadataTTL() != 5*time.Minute {
		t.Errorf("metadata ttl = %v, want default", c.MetadataTTL())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
