package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type StoreConfig struct {
	Backend     string        `yaml:"backend"` // file, mongo or memory
	Dir         string        `yaml:"dir"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
	Mongo       MongoConfig   `yaml:"mongo"`
}

type LimitsConfig struct {
	MaxPayloadBytes int64 `yaml:"max_payload_bytes"`
	WritesPerMinute int   `yaml:"writes_per_minute"`
	WriteBurst      int   `yaml:"write_burst"`
	// TrustForwarded keys limits on X-Forwarded-For; only safe behind a proxy
	// that overwrites it.
	TrustForwarded bool `yaml:"trust_forwarded"`
}

type AdminConfig struct {
	PasswordHash string        `yaml:"password_hash"`
	Issuer       string        `yaml:"issuer"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Listen string       `yaml:"listen"`
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Limits LimitsConfig `yaml:"limits"`
	Admin  AdminConfig  `yaml:"admin"`
}

const (
	BackendFile   = "file"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

func (c *Config) setDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "./vaults"
	}
	if c.Store.LockTimeout <= 0 {
		c.Store.LockTimeout = 10 * time.Second
	}
	if c.Store.Mongo.Database == "" {
		c.Store.Mongo.Database = "vaultd"
	}
	if c.Store.Mongo.Collection == "" {
		c.Store.Mongo.Collection = "vaults"
	}
	if c.Limits.MaxPayloadBytes <= 0 {
		c.Limits.MaxPayloadBytes = 1 << 20
	}
	if c.Limits.WritesPerMinute <= 0 {
		c.Limits.WritesPerMinute = 60
	}
	if c.Limits.WriteBurst <= 0 {
		c.Limits.WriteBurst = 10
	}
	if c.Admin.Issuer == "" {
		c.Admin.Issuer = "vaultd"
	}
	if c.Admin.TokenTTL <= 0 {
		c.Admin.TokenTTL = 15 * time.Minute
	}
}

// Validate fills defaults and rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	c.setDefaults()
	switch c.Store.Backend {
	case BackendFile, BackendMemory:
	case BackendMongo:
		if c.Store.Mongo.URI == "" {
			return fmt.Errorf("config: store.mongo.uri required for mongo backend")
		}
	default:
		return fmt.Errorf("config: unknown store.backend %q", c.Store.Backend)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}

// LoadConfig reads path (if non-empty) and applies VAULTD_* environment
// overrides. Defaults are filled by Validate.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

const envPrefix = "VAULTD_"

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	var errs []string
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, envPrefix+name)
				return
			}
			*dst = d
		}
	}
	num := func(name string, dst *int64) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, envPrefix+name)
				return
			}
			*dst = n
		}
	}

	str("LISTEN", &c.Listen)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("STORE_BACKEND", &c.Store.Backend)
	str("STORE_DIR", &c.Store.Dir)
	dur("STORE_LOCK_TIMEOUT", &c.Store.LockTimeout)
	str("MONGO_URI", &c.Store.Mongo.URI)
	str("MONGO_DATABASE", &c.Store.Mongo.Database)
	str("MONGO_COLLECTION", &c.Store.Mongo.Collection)
	num("MAX_PAYLOAD_BYTES", &c.Limits.MaxPayloadBytes)
	var wpm, burst int64 = int64(c.Limits.WritesPerMinute), int64(c.Limits.WriteBurst)
	num("WRITES_PER_MINUTE", &wpm)
	num("WRITE_BURST", &burst)
	c.Limits.WritesPerMinute, c.Limits.WriteBurst = int(wpm), int(burst)
	str("ADMIN_PASSWORD_HASH", &c.Admin.PasswordHash)
	dur("ADMIN_TOKEN_TTL", &c.Admin.TokenTTL)

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid value for %s", strings.Join(errs, ", "))
	}
	return nil
}
