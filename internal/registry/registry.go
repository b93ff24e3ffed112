// Package registry implements the query registry (spec component B): the
// process-wide, concurrency-safe map from QID to live query record, its
// accumulating results, and its subscribers.
//
// Grounded on the teacher's internal/responder/registry.go (RWMutex-guarded
// map, Register/Get/Remove/List shape), generalized from a single-value
// service map to an append-only per-QID result list with subscriptions and
// a secondary SID index.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/playdar/playdar/internal/query"
)

// DefaultSolveThreshold is the score at which a query is considered solved
// (spec §3's "solved" flag), without cancelling further resolution.
const DefaultSolveThreshold = 1.0

// liveQuery is the registry's internal per-QID record (spec §3 "Live query
// record"). Its fields are never handed out directly — callers only
// ever see copies via Results/BestResult/Subscribe.
type liveQuery struct {
	mu             sync.Mutex
	q              query.Query
	results        []query.ResultItem
	seen           map[query.ResultKey]struct{}
	offeredTo      map[string]struct{}
	createdAt      time.Time
	solved         bool
	subscribers    []chan query.ResultItem
	originCallback func(qid string, ri query.ResultItem)
}

func newLiveQuery(q query.Query) *liveQuery {
	return &liveQuery{
		q:         q,
		seen:      make(map[query.ResultKey]struct{}),
		offeredTo: make(map[string]struct{}),
		createdAt: time.Now(),
	}
}

// Registry is the process-wide query registry. It is the only mutable
// cross-task state in the core (spec §5): it serializes writes and
// supports many concurrent readers.
type Registry struct {
	mu             sync.RWMutex
	byQID          map[string]*liveQuery
	bySID          map[string]string // SID -> QID, for O(1) locate_sid
	solveThreshold float64
	log            zerolog.Logger
}

// New creates an empty registry. A solveThreshold <= 0 uses DefaultSolveThreshold.
func New(solveThreshold float64, log zerolog.Logger) *Registry {
	if solveThreshold <= 0 {
		solveThreshold = DefaultSolveThreshold
	}
	return &Registry{
		byQID:          make(map[string]*liveQuery),
		bySID:          make(map[string]string),
		solveThreshold: solveThreshold,
		log:            log.With().Str("component", "registry").Logger(),
	}
}

// Register inserts a new live record for q, or returns the QID of an
// existing one unchanged (spec §4.B: "if the query's QID already names a
// live record, return it unchanged, no side effects"). Thread-safe.
func (r *Registry) Register(q query.Query) (qid string, isNew bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byQID[q.QID]; ok {
		return existing.q.QID, false
	}

	r.byQID[q.QID] = newLiveQuery(q)
	return q.QID, true
}

// SetOriginCallback binds a callback to be invoked once per newly accepted
// result for qid. Used by the LAN resolver to echo results back to the UDP
// endpoint that originated a remote "rq" (spec §4.E). No-op if qid is
// unknown or cb is nil.
func (r *Registry) SetOriginCallback(qid string, cb func(qid string, ri query.ResultItem)) {
	if cb == nil {
		return
	}
	r.mu.RLock()
	lq, ok := r.byQID[qid]
	r.mu.RUnlock()
	if !ok {
		return
	}
	lq.mu.Lock()
	lq.originCallback = cb
	lq.mu.Unlock()
}

// MarkOffered records that qid has been offered to the named resolver
// plugin, per the live query record's "set of resolver-plugin identifiers
// it has been offered to" (spec §3).
func (r *Registry) MarkOffered(qid, resolverName string) {
	r.mu.RLock()
	lq, ok := r.byQID[qid]
	r.mu.RUnlock()
	if !ok {
		return
	}
	lq.mu.Lock()
	lq.offeredTo[resolverName] = struct{}{}
	lq.mu.Unlock()
}

// QueryExists reports whether qid currently names a live record.
func (r *Registry) QueryExists(qid string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byQID[qid]
	return ok
}

// ReportResults appends newly accepted results to qid's live record, in
// arrival order, deduping by (source, SID). Returns false if qid is
// unknown (the normal case for stale traffic, per spec §7 — not an error).
func (r *Registry) ReportResults(qid string, results []query.ResultItem) bool {
	r.mu.RLock()
	lq, ok := r.byQID[qid]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	lq.mu.Lock()
	var accepted []query.ResultItem
	for _, ri := range results {
		key := ri.Key()
		if _, dup := lq.seen[key]; dup {
			continue
		}
		lq.seen[key] = struct{}{}
		lq.results = append(lq.results, ri)
		accepted = append(accepted, ri)
		if ri.Score >= r.solveThreshold {
			lq.solved = true
		}
	}
	// Subscribers are fed while lq.mu is still held: Reap and unsubscribe
	// close channels under the same lock, so no send here can hit a closed
	// channel. The sends never block.
	for _, ri := range accepted {
		for _, ch := range lq.subscribers {
			select {
			case ch <- ri:
			default:
				// A slow subscriber does not get to stall report_results;
				// it will see the gap close on its next Results() poll.
			}
		}
	}
	cb := lq.originCallback
	lq.mu.Unlock()

	if len(accepted) == 0 {
		return true
	}

	r.mu.Lock()
	for _, ri := range accepted {
		if ri.SID != "" {
			r.bySID[ri.SID] = qid
		}
	}
	r.mu.Unlock()

	if cb != nil {
		for _, ri := range accepted {
			cb(qid, ri)
		}
	}
	return true
}

// Results returns a snapshot of qid's accumulated results, in arrival
// order. Ok is false if qid is unknown.
func (r *Registry) Results(qid string) (results []query.ResultItem, ok bool) {
	r.mu.RLock()
	lq, exists := r.byQID[qid]
	r.mu.RUnlock()
	if !exists {
		return nil, false
	}
	lq.mu.Lock()
	defer lq.mu.Unlock()
	return append([]query.ResultItem(nil), lq.results...), true
}

// Solved reports whether qid has accepted a result with score at or above
// the configured solve threshold.
func (r *Registry) Solved(qid string) (solved bool, ok bool) {
	r.mu.RLock()
	lq, exists := r.byQID[qid]
	r.mu.RUnlock()
	if !exists {
		return false, false
	}
	lq.mu.Lock()
	defer lq.mu.Unlock()
	return lq.solved, true
}

// BestResult returns the highest-scoring result for qid, if any. Per the
// invariant in spec §4.B, any RI returned here is still present in a
// subsequent Results(qid) call.
func (r *Registry) BestResult(qid string) (best query.ResultItem, ok bool) {
	r.mu.RLock()
	lq, exists := r.byQID[qid]
	r.mu.RUnlock()
	if !exists {
		return query.ResultItem{}, false
	}
	lq.mu.Lock()
	defer lq.mu.Unlock()
	for i, ri := range lq.results {
		if i == 0 || ri.Score > best.Score {
			best = ri
		}
	}
	return best, len(lq.results) > 0
}

// LocateSID is the secondary index that makes streaming by SID O(1): it
// returns the result item registered under sid, across any QID.
func (r *Registry) LocateSID(sid string) (query.ResultItem, bool) {
	r.mu.RLock()
	qid, ok := r.bySID[sid]
	r.mu.RUnlock()
	if !ok {
		return query.ResultItem{}, false
	}
	results, ok := r.Results(qid)
	if !ok {
		return query.ResultItem{}, false
	}
	for _, ri := range results {
		if ri.SID == sid {
			return ri, true
		}
	}
	return query.ResultItem{}, false
}

// subscriberBufferSize bounds how far a subscriber can lag before it starts
// silently dropping live updates (it always recovers the full picture via
// Results()).
const subscriberBufferSize = 32

// Subscribe returns a channel of results for qid: the full current prefix
// immediately, then each newly accepted result as report_results accepts
// it (spec §5's ordering guarantee). The channel closes when qid is
// evicted by the reaper or ctx is done — either way the subscriber sees a
// clean end-of-stream, never a panic or a leaked goroutine.
//
// The backlog is written into ch, and ch is registered in lq.subscribers,
// both under lq.mu in the same critical section — so a ReportResults call
// that starts after Subscribe returns can only ever see ch already holding
// the full backlog; it cannot race a separate flush goroutine and deliver a
// live result ahead of the prefix that precedes it.
func (r *Registry) Subscribe(ctx context.Context, qid string) (<-chan query.ResultItem, bool) {
	r.mu.RLock()
	lq, ok := r.byQID[qid]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	lq.mu.Lock()
	ch := make(chan query.ResultItem, len(lq.results)+subscriberBufferSize)
	for _, ri := range lq.results {
		ch <- ri
	}
	lq.subscribers = append(lq.subscribers, ch)
	lq.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.unsubscribe(qid, ch)
	}()

	return ch, true
}

func (r *Registry) unsubscribe(qid string, ch chan query.ResultItem) {
	r.mu.RLock()
	lq, ok := r.byQID[qid]
	r.mu.RUnlock()
	if !ok {
		return
	}
	lq.mu.Lock()
	defer lq.mu.Unlock()
	for i, sub := range lq.subscribers {
		if sub == ch {
			lq.subscribers = append(lq.subscribers[:i], lq.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// WaitForResults implements the long-poll variant of Results: it returns as
// soon as qid has more than afterCount results, or after timeout elapses,
// whichever is first, with every result accumulated by then. Used by the
// HTTP surface's get_results_long.
func (r *Registry) WaitForResults(ctx context.Context, qid string, afterCount int, timeout time.Duration) (results []query.ResultItem, ok bool) {
	results, ok = r.Results(qid)
	if !ok || len(results) > afterCount {
		return results, ok
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub, ok := r.Subscribe(ctx, qid)
	if !ok {
		return results, false
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	// sub delivers the full backlog first, so the number of items received
	// is the number of results qid holds.
	delivered := 0
	for {
		select {
		case _, open := <-sub:
			if !open {
				return r.Results(qid)
			}
			delivered++
			if delivered > afterCount {
				return r.Results(qid)
			}
		case <-deadline.C:
			return r.Results(qid)
		case <-ctx.Done():
			return r.Results(qid)
		}
	}
}

// WaitUntilSolved blocks until qid is solved, ctx is done, or timeout
// elapses, whichever comes first. Used by redirect-mode dispatch (spec
// §4.D), the one place a dispatch call synchronously observes registry
// state.
func (r *Registry) WaitUntilSolved(ctx context.Context, qid string, timeout time.Duration) bool {
	if solved, ok := r.Solved(qid); !ok {
		return false
	} else if solved {
		return true
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub, ok := r.Subscribe(ctx, qid)
	if !ok {
		return false
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case ri, open := <-sub:
			if !open {
				solved, _ := r.Solved(qid)
				return solved
			}
			if ri.Score >= r.solveThreshold {
				return true
			}
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// Reap evicts every live record older than ttl, severing any open
// subscription with a clean channel close (spec §4.B). It returns the
// number of records evicted.
func (r *Registry) Reap(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	var toEvict []*liveQuery
	for qid, lq := range r.byQID {
		lq.mu.Lock()
		old := lq.createdAt.Before(cutoff)
		lq.mu.Unlock()
		if old {
			toEvict = append(toEvict, lq)
			delete(r.byQID, qid)
		}
	}
	for sid, qid := range r.bySID {
		if _, stillLive := r.byQID[qid]; !stillLive {
			delete(r.bySID, sid)
		}
	}
	r.mu.Unlock()

	for _, lq := range toEvict {
		lq.mu.Lock()
		for _, ch := range lq.subscribers {
			close(ch)
		}
		lq.subscribers = nil
		lq.mu.Unlock()
	}

	if len(toEvict) > 0 {
		r.log.Debug().Int("count", len(toEvict)).Msg("reaped expired queries")
	}
	return len(toEvict)
}

// RunReaper runs Reap on a fixed cadence until ctx is done. Intended to be
// started once as a background goroutine by cmd/playdard.
func (r *Registry) RunReaper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap(ttl)
		}
	}
}
