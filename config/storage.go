package config

import (
	"fmt"
	"strings"
	"time"
)

// StorageBackend selects where per-browser client storage lives.
type StorageBackend string

const (
	// StorageBackendMemory keeps client storage in process memory.
	StorageBackendMemory StorageBackend = "memory"
	// StorageBackendRedis keeps client storage in Redis so it survives restarts
	// and is shared between replicas.
	StorageBackendRedis StorageBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for StorageBackend.
func (s *StorageBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "memory", "redis":
		*s = StorageBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid StorageBackend: %q (valid options: memory, redis)", v)
	}
}

// StorageConfig contains browser client storage configuration.
type StorageConfig struct {
	Backend StorageBackend `env:"STORAGE_BACKEND" envDefault:"memory"`

	// TTL is how long stored tokens and intents survive without access.
	TTL time.Duration `env:"STORAGE_TTL" envDefault:"24h"`

	// Prefix namespaces Redis keys.
	Prefix string `env:"STORAGE_PREFIX" envDefault:"tracksys:browser:"`
}

// Sanitize applies guardrails to storage configuration values.
func (s *StorageConfig) Sanitize() {
	if s.TTL <= 0 {
		s.TTL = 24 * time.Hour
	}
	if strings.TrimSpace(s.Prefix) == "" {
		s.Prefix = "tracksys:browser:"
	}
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}
