package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"xdao.co/postledger/authorizer"
	"xdao.co/postledger/cache"
	memcache "xdao.co/postledger/cache/memory"
	rediscache "xdao.co/postledger/cache/redis"
	"xdao.co/postledger/keys"
	"xdao.co/postledger/ledger"
	memledger "xdao.co/postledger/ledger/memory"
	sqliteledger "xdao.co/postledger/ledger/sqlite"
	"xdao.co/postledger/mirror"
	memmirror "xdao.co/postledger/mirror/memory"
	mongomirror "xdao.co/postledger/mirror/mongo"
	sqlitemirror "xdao.co/postledger/mirror/sqlite"
	"xdao.co/postledger/resolver"
	"xdao.co/postledger/service"
	"xdao.co/postledger/storage"
	"xdao.co/postledger/storage/casregistry"
)

// Components is everything Open built. Close releases it in reverse order.
type Components struct {
	Cache      cache.Cache
	Mirror     mirror.Mirror
	Ledger     ledger.Ledger
	CAS        storage.CAS
	Authorizer *authorizer.Authorizer
	Resolver   *resolver.Pipeline
	Service    *service.Service

	closers []func() error
}

func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Components) onClose(fn func() error) {
	if fn != nil {
		c.closers = append(c.closers, fn)
	}
}

// Open builds the components described by cfg. On error everything opened
// so far is closed.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (_ *Components, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	comp := &Components{}
	defer func() {
		if err != nil {
			_ = comp.Close()
		}
	}()

	if comp.Cache, err = openCache(ctx, cfg.Cache, comp, logger); err != nil {
		return nil, err
	}
	if comp.Mirror, err = openMirror(ctx, cfg.Mirror, comp); err != nil {
		return nil, err
	}
	if comp.Ledger, err = openLedger(ctx, cfg.Ledger, comp); err != nil {
		return nil, err
	}
	cas, closeCAS, err := cfg.CAS.Open(casregistry.UsageDaemon, "")
	if err != nil {
		return nil, err
	}
	comp.CAS = cas
	comp.onClose(closeCAS)

	verifier := keys.NewVerifier()
	verifier.SetLogger(logger.With().Str("component", "verifier").Logger())

	comp.Authorizer, err = authorizer.New(comp.CAS, comp.Ledger, comp.Mirror, comp.Cache, verifier, authorizer.Options{
		StoreTimeout:  cfg.Authorizer.StoreTimeout,
		LedgerTimeout: cfg.Authorizer.LedgerTimeout,
		RepairTimeout: cfg.Authorizer.RepairTimeout,
		TTL:           cfg.Cache.TTL,
	})
	if err != nil {
		return nil, err
	}
	comp.Authorizer.SetLogger(logger.With().Str("component", "authorizer").Logger())

	comp.Resolver, err = resolver.New(comp.Cache, comp.Mirror, comp.Ledger, comp.CAS, resolver.Options{
		CacheTimeout:  cfg.Resolver.CacheTimeout,
		MirrorTimeout: cfg.Resolver.MirrorTimeout,
		StoreTimeout:  cfg.Resolver.StoreTimeout,
		LedgerTimeout: cfg.Resolver.LedgerTimeout,
		RepairTimeout: cfg.Resolver.RepairTimeout,
		TTL:           cfg.Cache.TTL,
		Concurrency:   cfg.Resolver.Concurrency,
	})
	if err != nil {
		return nil, err
	}
	comp.Resolver.SetLogger(logger.With().Str("component", "resolver").Logger())

	comp.Service, err = service.New(comp.Authorizer, comp.Resolver)
	if err != nil {
		return nil, err
	}
	comp.Service.SetLogger(logger.With().Str("component", "service").Logger())
	return comp, nil
}

func openCache(ctx context.Context, cfg CacheConfig, comp *Components, logger zerolog.Logger) (cache.Cache, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "memory":
		return memcache.New(cfg.TTL, 0), nil
	case "redis":
		dial := cfg.Redis.DialTimeout
		if dial <= 0 {
			dial = 2 * time.Second
		}
		pctx, cancel := context.WithTimeout(ctx, dial)
		defer cancel()
		rc, err := rediscache.Open(pctx, rediscache.Options{
			Addr:        cfg.Redis.Addr,
			Username:    cfg.Redis.Username,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: dial,
			TTL:         cfg.TTL,
		})
		if err != nil {
			if !cfg.FallbackToMemory {
				return nil, fmt.Errorf("config: %w", err)
			}
			logger.Warn().Err(err).Msg("redis unavailable, falling back to in-memory cache")
			return memcache.New(cfg.TTL, 0), nil
		}
		comp.onClose(rc.Close)
		return rc, nil
	}
	return nil, fmt.Errorf("config: unknown cache backend %q", cfg.Backend)
}

func openMirror(ctx context.Context, cfg MirrorConfig, comp *Components) (mirror.Mirror, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "memory":
		return memmirror.New(), nil
	case "sqlite":
		m, err := sqlitemirror.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		comp.onClose(m.Close)
		return m, nil
	case "mongo":
		m, err := mongomirror.Open(ctx, mongomirror.Options{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
			Timeout:    cfg.Mongo.Timeout,
		})
		if err != nil {
			return nil, err
		}
		comp.onClose(m.Close)
		return m, nil
	}
	return nil, fmt.Errorf("config: unknown mirror backend %q", cfg.Backend)
}

func openLedger(ctx context.Context, cfg LedgerConfig, comp *Components) (ledger.Ledger, error) {
	switch cfg.Backend {
	case "memory":
		return memledger.New(), nil
	case "sqlite":
		l, err := sqliteledger.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		comp.onClose(l.Close)
		return l, nil
	}
	return nil, fmt.Errorf("config: unknown ledger backend %q", cfg.Backend)
}
