// Package pipeline implements the dispatcher (spec component D): it orders
// registered resolvers by weight/target-time and drives the fan-out to
// each, without waiting between them — ordering is a hint to callers about
// which results to expect first, never a synchronization point.
//
// Grounded on the teacher's internal/state/machine.go for the idiom of an
// explicit, context-aware orchestration step over concurrent goroutines.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/playdar/playdar/internal/query"
	"github.com/playdar/playdar/internal/registry"
	"github.com/playdar/playdar/resolver"
)

// DefaultRedirectTimeout is the bounded wait for mode=redirect dispatch
// (spec §4.D's "~3s").
const DefaultRedirectTimeout = 3 * time.Second

// Dispatcher fans a registered query out across the resolver chain.
type Dispatcher struct {
	mu              sync.RWMutex
	resolvers       []resolver.Resolver
	reg             *registry.Registry
	redirectTimeout time.Duration
	log             zerolog.Logger
}

// New creates a Dispatcher bound to reg. A redirectTimeout <= 0 uses
// DefaultRedirectTimeout.
func New(reg *registry.Registry, redirectTimeout time.Duration, log zerolog.Logger) *Dispatcher {
	if redirectTimeout <= 0 {
		redirectTimeout = DefaultRedirectTimeout
	}
	return &Dispatcher{
		reg:             reg,
		redirectTimeout: redirectTimeout,
		log:             log.With().Str("component", "pipeline").Logger(),
	}
}

// SetResolvers replaces the resolver chain, sorted by descending weight
// with ascending target-time breaking ties (spec §4.D).
func (d *Dispatcher) SetResolvers(resolvers []resolver.Resolver) {
	sorted := append([]resolver.Resolver(nil), resolvers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := sorted[i].Descriptor(), sorted[j].Descriptor()
		if di.Weight != dj.Weight {
			return di.Weight > dj.Weight
		}
		return di.TargetTimeMS < dj.TargetTimeMS
	})

	d.mu.Lock()
	d.resolvers = sorted
	d.mu.Unlock()
}

// queryHandle adapts the registry to the resolver.QueryHandle interface
// each plugin's StartResolving receives.
type queryHandle struct {
	reg *registry.Registry
	qid string
	q   query.Query
}

func (h *queryHandle) QID() string        { return h.qid }
func (h *queryHandle) Query() query.Query { return h.q }
func (h *queryHandle) ReportResults(results []query.ResultItem) {
	h.reg.ReportResults(h.qid, results)
}

// Dispatch registers q (idempotently, per registry.Register) and calls
// StartResolving on every resolver in weight order. It does not wait
// between plugins — StartResolving is a fire-and-forget contract, so the
// dispatcher itself never blocks on plugin internals.
//
// If q.Mode is ModeRedirect, Dispatch blocks until a solved result is
// registered or the bounded wait expires (spec §4.D) — the one place a
// dispatch call synchronously observes registry state.
func (d *Dispatcher) Dispatch(ctx context.Context, q query.Query, originCallback func(qid string, ri query.ResultItem)) string {
	qid, isNew := d.reg.Register(q)

	if originCallback != nil {
		d.reg.SetOriginCallback(qid, originCallback)
	}

	if isNew {
		d.mu.RLock()
		resolvers := d.resolvers
		d.mu.RUnlock()

		for _, res := range resolvers {
			name := res.Descriptor().Name
			d.reg.MarkOffered(qid, name)
			handle := &queryHandle{reg: d.reg, qid: qid, q: q}
			d.log.Debug().Str("qid", qid).Str("resolver", name).Msg("starting resolver")
			res.StartResolving(handle)
		}
	}

	if q.EffectiveMode() == query.ModeRedirect {
		d.reg.WaitUntilSolved(ctx, qid, d.redirectTimeout)
	}

	return qid
}

// CancelQuery asks every resolver to stop work on qid. Per spec §7/§9 this
// is advisory only: resolvers are free to ignore it, and the registry's
// own reaper is the real cleanup mechanism.
func (d *Dispatcher) CancelQuery(qid string) {
	d.mu.RLock()
	resolvers := d.resolvers
	d.mu.RUnlock()
	for _, res := range resolvers {
		res.CancelQuery(qid)
	}
}
