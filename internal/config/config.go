package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env      string `yaml:"app_env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	// Token: emisión del token interno.
	Token struct {
		Issuer  string `yaml:"issuer"`   // issuer publicado en discovery
		KeyName string `yaml:"key_name"` // nombre lógico de la clave de firma
	} `yaml:"token"`

	// ExternalToken: validación del token del proveedor de identidad externo.
	ExternalToken struct {
		MetadataAddress string `yaml:"metadata_address"` // URL del documento OpenID del proveedor
		Issuer          string `yaml:"issuer"`
		Audience        string `yaml:"audience"`
		MetadataTTL     string `yaml:"metadata_ttl"` // cuánto retener metadata/JWKS entre refreshes

		// AllowAll cortocircuita la validación (solo test/integración).
		// Default false; no existe forma de activarlo en runtime.
		AllowAll bool `yaml:"allow_all"`
	} `yaml:"external_token"`

	Ticket struct {
		TTL string `yaml:"ttl"`
	} `yaml:"ticket"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Token.KeyName == "" {
		c.Token.KeyName = "marketauth-signing"
	}
	if c.ExternalToken.MetadataTTL == "" {
		c.ExternalToken.MetadataTTL = "5m"
	}
	if c.Ticket.TTL == "" {
		c.Ticket.TTL = "5m"
	}

	c.applyEnvOverrides()

	return &c, nil
}

// TicketTTL parsea el TTL de tickets; cae al default si está malformado.
func (c *Config) TicketTTL() time.Duration {
	if d, err := time.ParseDuration(c.Ticket.TTL); err == nil && d > 0 {
		return d
	}
	return 5 * time.Minute
}

// MetadataTTL parsea el TTL del cache de metadata OpenID.
func (c *Config) MetadataTTL() time.Duration {
	if d, err := time.ParseDuration(c.ExternalToken.MetadataTTL); err == nil && d > 0 {
		return d
	}
	return 5 * time.Minute
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("STORAGE_PG_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("STORAGE_PG_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}
	if v, ok := getEnvStr("STORAGE_PG_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("CACHE_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("CACHE_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("CACHE_REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// TOKEN
	if v, ok := getEnvStr("TOKEN_ISSUER"); ok {
		c.Token.Issuer = v
	}
	if v, ok := getEnvStr("TOKEN_KEY_NAME"); ok {
		c.Token.KeyName = v
	}

	// EXTERNAL TOKEN
	if v, ok := getEnvStr("EXTERNAL_TOKEN_METADATA_ADDRESS"); ok {
		c.ExternalToken.MetadataAddress = v
	}
	if v, ok := getEnvStr("EXTERNAL_TOKEN_ISSUER"); ok {
		c.ExternalToken.Issuer = v
	}
	if v, ok := getEnvStr("EXTERNAL_TOKEN_AUDIENCE"); ok {
		c.ExternalToken.Audience = v
	}
	if v, ok := getEnvStr("EXTERNAL_TOKEN_METADATA_TTL"); ok {
		c.ExternalToken.MetadataTTL = v
	}
	if v, ok := getEnvBool("EXTERNAL_TOKEN_ALLOW_ALL"); ok {
		c.ExternalToken.AllowAll = v
	}

	// TICKET
	if v, ok := getEnvStr("TICKET_TTL"); ok {
		c.Ticket.TTL = v
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
