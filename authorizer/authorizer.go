// Package authorizer is the write path: it stores a body, checks that the
// claimed owner signed its handle, and records the pair on the ledger.
//
// Ordering guarantees:
//   - Nothing reaches the ledger, mirror or cache unless the signature
//     verifies. The content store put happens first and is not rolled back;
//     unreferenced bytes are harmless.
//   - Mirror and cache writes happen only after the ledger confirms. Their
//     failure is logged and never fails the commit.
package authorizer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"xdao.co/postledger/cache"
	"xdao.co/postledger/keys"
	"xdao.co/postledger/ledger"
	"xdao.co/postledger/mirror"
	"xdao.co/postledger/model"
	"xdao.co/postledger/storage"
)

type Options struct {
	StoreTimeout  time.Duration
	LedgerTimeout time.Duration
	RepairTimeout time.Duration
	TTL           time.Duration
}

const (
	DefaultStoreTimeout  = 10 * time.Second
	DefaultLedgerTimeout = 30 * time.Second
	DefaultRepairTimeout = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	if o.LedgerTimeout <= 0 {
		o.LedgerTimeout = DefaultLedgerTimeout
	}
	if o.RepairTimeout <= 0 {
		o.RepairTimeout = DefaultRepairTimeout
	}
	if o.TTL <= 0 {
		o.TTL = cache.DefaultTTL
	}
	return o
}

type Authorizer struct {
	cas      storage.CAS
	ledger   ledger.Ledger
	mirror   mirror.Mirror
	cache    cache.Cache
	verifier *keys.Verifier
	opts     Options
	logger   zerolog.Logger
}

// New wires the write path. Mirror and cache may be nil.
func New(cas storage.CAS, l ledger.Ledger, m mirror.Mirror, c cache.Cache, v *keys.Verifier, opts Options) (*Authorizer, error) {
	if cas == nil {
		return nil, errors.New("authorizer: missing content store")
	}
	if l == nil {
		return nil, errors.New("authorizer: missing ledger")
	}
	if v == nil {
		v = keys.NewVerifier()
	}
	return &Authorizer{
		cas:      cas,
		ledger:   l,
		mirror:   m,
		cache:    c,
		verifier: v,
		opts:     opts.withDefaults(),
		logger:   zerolog.Nop(),
	}, nil
}

func (a *Authorizer) SetLogger(logger zerolog.Logger) {
	a.logger = logger
}

// Commit authorizes and records body for claimed. signature is the hex
// personal_sign signature over CommitMessage(handle).
//
// Errors: INVALID_REQUEST, CONTENT_UNAVAILABLE, UNAUTHORIZED,
// LEDGER_UNAVAILABLE. Commit is safe to retry after any of them.
func (a *Authorizer) Commit(ctx context.Context, body json.RawMessage, signature string, claimed string) (*model.Item, error) {
	if !keys.IsAddress(claimed) {
		return nil, model.NewError(model.ErrInvalidRequest, "address is not a hex address")
	}
	if signature == "" {
		return nil, model.NewError(model.ErrInvalidRequest, "signature is required")
	}
	owner := keys.NormalizeAddress(claimed)
	handle, canonical, err := model.HandleOf(body)
	if err != nil {
		return nil, model.WrapError(model.ErrInvalidRequest, "invalid content", err)
	}
	log := a.logger.With().Str("owner", owner).Logger()

	sctx, cancel := context.WithTimeout(ctx, a.opts.StoreTimeout)
	id, err := a.cas.Put(sctx, canonical)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("content store put failed")
		return nil, model.WrapError(model.ErrContentUnavailable, "content store unavailable", err)
	}
	log = log.With().Str("handle", handle).Logger()
	if id.String() != handle {
		log.Warn().Str("stored", id.String()).Msg("content store returned a different identifier")
		return nil, model.WrapError(model.ErrContentUnavailable, "content store returned a different identifier", storage.ErrCIDMismatch)
	}

	if !a.verifier.VerifyHex([]byte(model.CommitMessage(handle)), signature, owner) {
		log.Info().Msg("signature rejected")
		return nil, model.NewError(model.ErrUnauthorized, "signature does not match address")
	}

	lctx, cancel := context.WithTimeout(ctx, a.opts.LedgerTimeout)
	receipt, err := a.ledger.Append(lctx, owner, handle)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("ledger append failed")
		return nil, model.WrapError(model.ErrLedgerUnavailable, "ledger append failed", err)
	}

	item := &model.Item{
		Handle:    handle,
		Body:      json.RawMessage(canonical),
		Owner:     owner,
		CreatedAt: receipt.ConfirmedAt,
		TxRef:     receipt.TxRef,
	}
	a.repair(ctx, *item, log)
	log.Info().Str("tx", receipt.TxRef).Msg("content committed")
	return item, nil
}

func (a *Authorizer) repair(ctx context.Context, it model.Item, log zerolog.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.RepairTimeout)
	defer cancel()

	fail := func(tier string, err error) {
		log.Warn().Err(err).
			Str("code", string(model.ErrRepairFailure)).
			Str("tier", tier).
			Msg("repair failed")
	}
	if a.mirror != nil {
		if err := a.mirror.Upsert(rctx, it); err != nil {
			fail("mirror", err)
		}
	}
	if a.cache != nil {
		b, err := cache.EncodeItem(it)
		if err == nil {
			err = a.cache.Set(rctx, cache.PostKey(it.Handle), b, a.opts.TTL)
		}
		if err != nil {
			fail("cache", err)
		}
		// A new generation retires lists built from the index before this
		// append, including ones a concurrent resolve has yet to write.
		gen := []byte(uuid.NewString())
		if err := a.cache.Set(rctx, cache.PostsGenKey(it.Owner), gen, 2*a.opts.TTL); err != nil {
			fail("cache", err)
		}
		if err := a.cache.Delete(rctx, cache.PostsKey(it.Owner)); err != nil {
			fail("cache", err)
		}
	}
}
