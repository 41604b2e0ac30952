// Package cache provee un cache chico multi-backend (memory | redis).
// Lo usa el manager de metadata OpenID para retener el documento del
// proveedor y su JWKS entre refreshes.
package cache

import "time"

// Cache es la interfaz mínima que necesitan los consumidores.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// Config configuración para crear un cache.
type Config struct {
	Kind       string // "memory" | "redis"
	RedisAddr  string
	RedisDB    int
	Prefix     string
	DefaultTTL time.Duration
}

// New crea un cache según la configuración. Default: memory.
func New(cfg Config) Cache {
	switch cfg.Kind {
	case "redis":
		return NewRedis(cfg.RedisAddr, cfg.RedisDB, cfg.Prefix)
	default:
		ttl := cfg.DefaultTTL
		if ttl <= 0 {
			ttl = 2 * time.Minute
		}
		return NewMemory(ttl)
	}
}
