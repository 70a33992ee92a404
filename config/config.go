// Package config loads the daemon's YAML configuration and wires the
// resolution tiers, the write path and the service from it.
//
// Example:
//
//	listen: ":3000"
//	log_level: info
//	cache:
//	  backend: redis
//	  ttl: 1h
//	  fallback_to_memory: true
//	  redis: {addr: "localhost:6379"}
//	mirror:
//	  backend: sqlite
//	  sqlite_path: /var/lib/postledger/mirror.db
//	ledger:
//	  backend: sqlite
//	  sqlite_path: /var/lib/postledger/ledger.db
//	cas:
//	  read_attempts: 2
//	  backends:
//	    - name: localfs
//	      config: {localfs-dir: /var/lib/postledger/cas}
//	    - name: gateway
//	      id: cloudflare-ipfs.com
//	      config: {gateway-url: "https://cloudflare-ipfs.com"}
//	    - name: gateway
//	      id: ipfs.io
//	      config: {gateway-url: "https://ipfs.io"}
//
// CAS backends are casregistry plugins; the binary must link them.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"xdao.co/postledger/cache"
	"xdao.co/postledger/storage/casconfig"
)

type Config struct {
	Listen       string `yaml:"listen"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`

	Cache      CacheConfig      `yaml:"cache"`
	Mirror     MirrorConfig     `yaml:"mirror"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	CAS        casconfig.Config `yaml:"cas"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Authorizer AuthorizerConfig `yaml:"authorizer"`
}

type CacheConfig struct {
	// Backend is "memory", "redis" or "none".
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	// FallbackToMemory uses an in-process cache when redis is unreachable
	// at startup instead of failing.
	FallbackToMemory bool        `yaml:"fallback_to_memory"`
	Redis            RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type MirrorConfig struct {
	// Backend is "memory", "sqlite", "mongo" or "none".
	Backend    string      `yaml:"backend"`
	SQLitePath string      `yaml:"sqlite_path"`
	Mongo      MongoConfig `yaml:"mongo"`
}

type MongoConfig struct {
	URI        string        `yaml:"uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

type LedgerConfig struct {
	// Backend is "memory" or "sqlite".
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

type ResolverConfig struct {
	CacheTimeout  time.Duration `yaml:"cache_timeout"`
	MirrorTimeout time.Duration `yaml:"mirror_timeout"`
	StoreTimeout  time.Duration `yaml:"store_timeout"`
	LedgerTimeout time.Duration `yaml:"ledger_timeout"`
	RepairTimeout time.Duration `yaml:"repair_timeout"`
	Concurrency   int           `yaml:"concurrency"`
}

type AuthorizerConfig struct {
	StoreTimeout  time.Duration `yaml:"store_timeout"`
	LedgerTimeout time.Duration `yaml:"ledger_timeout"`
	RepairTimeout time.Duration `yaml:"repair_timeout"`
}

// Default is a single-process setup: memory cache, mirror and ledger. CAS
// backends have no default and must be configured.
func Default() Config {
	return Config{
		Listen:    ":3000",
		LogLevel:  "info",
		LogFormat: "json",
		Cache:     CacheConfig{Backend: "memory", TTL: cache.DefaultTTL},
		Mirror:    MirrorConfig{Backend: "memory"},
		Ledger:    LedgerConfig{Backend: "memory"},
	}
}

// Load reads and validates path over Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Read is Load without validation, for callers that fill in the rest of
// the config (CAS backends from flags, say) before validating.
func Read(path string) (Config, error) {
	if path == "" {
		return Default(), errors.New("config: empty path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Default(), err
	}
	return decode(b)
}

func Parse(b []byte) (Config, error) {
	cfg, err := decode(b)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decode(b []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return errors.New("config: cache.redis.addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Mirror.Backend {
	case "memory", "none":
	case "sqlite":
		if c.Mirror.SQLitePath == "" {
			return errors.New("config: mirror.sqlite_path is required for the sqlite mirror")
		}
	case "mongo":
		if c.Mirror.Mongo.URI == "" {
			return errors.New("config: mirror.mongo.uri is required for the mongo mirror")
		}
	default:
		return fmt.Errorf("config: unknown mirror backend %q", c.Mirror.Backend)
	}
	switch c.Ledger.Backend {
	case "memory":
	case "sqlite":
		if c.Ledger.SQLitePath == "" {
			return errors.New("config: ledger.sqlite_path is required for the sqlite ledger")
		}
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Resolver.Concurrency < 0 {
		return errors.New("config: resolver.concurrency must not be negative")
	}
	if c.MaxBodyBytes < 0 {
		return errors.New("config: max_body_bytes must not be negative")
	}
	if err := c.CAS.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
