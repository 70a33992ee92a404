// Package resolver assembles an owner's content list from the ledger index,
// reading each body through the cache, the mirror and finally the content
// store, and writing every miss back into the faster tiers.
//
// Invariants:
//   - Only handles present in the ledger index are returned, in ledger order.
//   - Owner, CreatedAt and TxRef always come from the ledger entry.
//   - A handle no tier can serve becomes a placeholder; it never fails the
//     whole list. Only a ledger failure does.
//   - Lists holding placeholders are not cached.
package resolver

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"xdao.co/postledger/cache"
	"xdao.co/postledger/keys"
	"xdao.co/postledger/ledger"
	"xdao.co/postledger/mirror"
	"xdao.co/postledger/model"
	"xdao.co/postledger/storage"
)

var (
	ErrMissingLedger = errors.New("resolver: missing ledger")
	ErrMissingCAS    = errors.New("resolver: missing content store")
)

// Resolution is the assembled list for one owner.
type Resolution struct {
	Owner  string
	Items  []model.Item
	Source model.Source
}

type Pipeline struct {
	cache  cache.Cache
	mirror mirror.Mirror
	ledger ledger.Ledger
	tiers  []tier
	opts   Options
	logger zerolog.Logger
}

// New builds a pipeline. The cache and mirror are optional; a nil one drops
// its tier. The ledger and content store are required.
func New(c cache.Cache, m mirror.Mirror, l ledger.Ledger, cas storage.CAS, opts Options) (*Pipeline, error) {
	if l == nil {
		return nil, ErrMissingLedger
	}
	if cas == nil {
		return nil, ErrMissingCAS
	}
	opts = opts.withDefaults()
	p := &Pipeline{cache: c, mirror: m, ledger: l, opts: opts, logger: zerolog.Nop()}
	if c != nil {
		p.tiers = append(p.tiers, &cacheTier{c: c, ttl: opts.TTL, d: opts.CacheTimeout})
	}
	if m != nil {
		p.tiers = append(p.tiers, &mirrorTier{m: m, d: opts.MirrorTimeout})
	}
	p.tiers = append(p.tiers, &storeTier{cas: cas, d: opts.StoreTimeout})
	return p, nil
}

func (p *Pipeline) SetLogger(logger zerolog.Logger) {
	p.logger = logger
}

func (p *Pipeline) Options() Options {
	return p.opts
}

// Resolve returns every committed item of owner in ledger order.
//
// Errors: INVALID_REQUEST for a malformed owner, LEDGER_UNAVAILABLE when the
// index cannot be read, or ctx.Err() if the caller gave up.
func (p *Pipeline) Resolve(ctx context.Context, owner string) (*Resolution, error) {
	if !keys.IsAddress(owner) {
		return nil, model.NewError(model.ErrInvalidRequest, "owner is not an address")
	}
	owner = keys.NormalizeAddress(owner)
	log := p.logger.With().Str("owner", owner).Logger()

	// The generation is read before the ledger so a commit landing while
	// this resolve runs retires whatever list it ends up caching.
	gen, genOK := p.generation(ctx, owner, log)
	if genOK {
		if items, ok := p.cachedList(ctx, owner, gen, log); ok {
			return &Resolution{Owner: owner, Items: items, Source: model.SourceCache}, nil
		}
	}

	index, err := p.queryLedger(ctx, owner)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn().Err(err).Msg("ledger query failed")
		return nil, model.WrapError(model.ErrLedgerUnavailable, "ledger query failed", err)
	}

	prefetched := p.prefetch(ctx, owner, index, log)

	items := make([]model.Item, len(index))
	touchedStore := make([]bool, len(index))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, e := range index {
		i, e := i, e
		g.Go(func() error {
			items[i], touchedStore[i] = p.resolveOne(gctx, &lookup{owner: owner, entry: e, prefetched: prefetched}, log)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source := model.SourceMirror
	complete := true
	for i := range items {
		if touchedStore[i] {
			source = model.SourceLedger
		}
		if items[i].Unavailable {
			complete = false
		}
	}
	if len(items) == 0 {
		source = model.SourceLedger
	}

	switch {
	case !complete:
		log.Debug().Msg("list has placeholders, not caching")
	case genOK:
		p.cacheList(ctx, owner, gen, items, log)
	}
	return &Resolution{Owner: owner, Items: items, Source: source}, nil
}

// generation returns the owner's current list generation, "" if none was
// ever written. ok is false when the cache cannot say.
func (p *Pipeline) generation(ctx context.Context, owner string, log zerolog.Logger) (string, bool) {
	if p.cache == nil {
		return "", false
	}
	cctx, cancel := context.WithTimeout(ctx, p.opts.CacheTimeout)
	defer cancel()
	b, err := p.cache.Get(cctx, cache.PostsGenKey(owner))
	switch {
	case err == nil:
		return string(b), true
	case cache.IsMiss(err):
		return "", true
	default:
		log.Debug().Err(err).Msg("list generation unavailable")
		return "", false
	}
}

func (p *Pipeline) cachedList(ctx context.Context, owner, gen string, log zerolog.Logger) ([]model.Item, bool) {
	cctx, cancel := context.WithTimeout(ctx, p.opts.CacheTimeout)
	defer cancel()
	b, err := p.cache.Get(cctx, cache.PostsKey(owner))
	if err != nil {
		if !cache.IsMiss(err) {
			log.Debug().Err(err).Msg("list cache unavailable")
		}
		return nil, false
	}
	l, err := cache.DecodeList(b)
	if err != nil {
		log.Debug().Err(err).Msg("list cache entry undecodable")
		return nil, false
	}
	if l.Generation != gen {
		log.Debug().Str("cached", l.Generation).Str("current", gen).Msg("list cache entry superseded")
		return nil, false
	}
	return l.Items, true
}

// queryLedger reads the index and drops repeated handles, keeping the first.
func (p *Pipeline) queryLedger(ctx context.Context, owner string) ([]model.IndexEntry, error) {
	lctx, cancel := context.WithTimeout(ctx, p.opts.LedgerTimeout)
	defer cancel()
	index, err := p.ledger.Query(lctx, owner)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(index))
	out := make([]model.IndexEntry, 0, len(index))
	for _, e := range index {
		if e.Handle == "" {
			continue
		}
		if _, dup := seen[e.Handle]; dup {
			continue
		}
		seen[e.Handle] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

// prefetch loads the owner's mirror rows in one call. Rows for handles the
// ledger does not list are ignored.
func (p *Pipeline) prefetch(ctx context.Context, owner string, index []model.IndexEntry, log zerolog.Logger) map[string]model.Item {
	if p.mirror == nil || len(index) == 0 {
		return nil
	}
	mctx, cancel := context.WithTimeout(ctx, p.opts.MirrorTimeout)
	defer cancel()
	rows, err := p.mirror.ByOwner(mctx, owner)
	if err != nil {
		log.Debug().Err(err).Msg("mirror prefetch failed")
		return nil
	}
	wanted := make(map[string]struct{}, len(index))
	for _, e := range index {
		wanted[e.Handle] = struct{}{}
	}
	out := make(map[string]model.Item, len(rows))
	for _, it := range rows {
		if _, ok := wanted[it.Handle]; ok {
			out[it.Handle] = it
		}
	}
	return out
}

// resolveOne walks the tiers for one handle. It reports whether the content
// store was consulted.
func (p *Pipeline) resolveOne(ctx context.Context, lk *lookup, log zerolog.Logger) (model.Item, bool) {
	h := lk.entry.Handle
	for i, t := range p.tiers {
		if ctx.Err() != nil {
			break
		}
		tctx, cancel := context.WithTimeout(ctx, t.timeout())
		it, err := t.fetch(tctx, lk)
		cancel()
		_, isStore := t.(*storeTier)
		if err != nil {
			log.Debug().Err(err).Str("handle", h).Str("tier", t.name()).Msg("tier miss")
			if isStore {
				log.Warn().Err(err).Str("handle", h).Msg("content unavailable, returning placeholder")
				return model.Placeholder(lk.owner, lk.entry), true
			}
			continue
		}
		it = withLedgerFields(it, lk.owner, lk.entry)
		p.repair(ctx, p.tiers[:i], it, log)
		return it, isStore
	}
	return model.Placeholder(lk.owner, lk.entry), false
}

// repair writes it back into every tier in tiers. It runs detached from the
// caller so a cancelled request still leaves the faster tiers warm.
func (p *Pipeline) repair(ctx context.Context, tiers []tier, it model.Item, log zerolog.Logger) {
	if len(tiers) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.RepairTimeout)
	defer cancel()
	for _, t := range tiers {
		if err := t.repair(rctx, it); err != nil {
			log.Warn().Err(err).
				Str("code", string(model.ErrRepairFailure)).
				Str("handle", it.Handle).
				Str("tier", t.name()).
				Msg("repair failed")
		}
	}
}

func (p *Pipeline) cacheList(ctx context.Context, owner, gen string, items []model.Item, log zerolog.Logger) {
	b, err := cache.EncodeList(gen, items)
	if err != nil {
		log.Warn().Err(err).Msg("encode list")
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.RepairTimeout)
	defer cancel()
	if err := p.cache.Set(rctx, cache.PostsKey(owner), b, p.opts.TTL); err != nil {
		log.Warn().Err(err).Str("code", string(model.ErrRepairFailure)).Msg("list cache write failed")
	}
}

func withLedgerFields(it model.Item, owner string, e model.IndexEntry) model.Item {
	it.Handle = e.Handle
	it.Owner = owner
	it.CreatedAt = e.ConfirmedAt
	it.TxRef = e.TxRef
	it.Unavailable = false
	return it
}
