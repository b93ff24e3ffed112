package registry

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/playdar/playdar/internal/query"
)

func testRegistry() *Registry {
	return New(1.0, zerolog.Nop())
}

func TestRegister_SecondAttemptShortCircuits(t *testing.T) {
	r := testRegistry()
	q := query.New([]query.Triple{{Artist: "A", Track: "B"}}, query.ModeNormal, "", "")

	qid1, isNew1 := r.Register(q)
	qid2, isNew2 := r.Register(q)

	if qid1 != qid2 {
		t.Fatalf("expected same QID, got %q and %q", qid1, qid2)
	}
	if !isNew1 || isNew2 {
		t.Fatalf("expected first register new, second not: %v %v", isNew1, isNew2)
	}
	if !r.QueryExists(qid1) {
		t.Fatalf("expected query to exist after register")
	}
}

func TestReportResults_DedupesBySourceAndSID(t *testing.T) {
	r := testRegistry()
	q := query.New([]query.Triple{{Artist: "A", Track: "B"}}, query.ModeNormal, "", "")
	qid, _ := r.Register(q)

	ri := query.ResultItem{Source: "node1", SID: "sid1", Score: 0.5}
	r.ReportResults(qid, []query.ResultItem{ri})
	r.ReportResults(qid, []query.ResultItem{ri}) // duplicate arrival

	results, ok := r.Results(qid)
	if !ok {
		t.Fatalf("expected query to exist")
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one result after duplicate arrival, got %d", len(results))
	}
}

func TestReportResults_UnknownQIDReturnsFalse(t *testing.T) {
	r := testRegistry()
	ok := r.ReportResults("does-not-exist", []query.ResultItem{{Source: "x", SID: "y"}})
	if ok {
		t.Fatalf("expected false for unknown QID")
	}
}

func TestReportResults_OrderPreservedNoDuplicates(t *testing.T) {
	r := testRegistry()
	q := query.New([]query.Triple{{Artist: "A", Track: "B"}}, query.ModeNormal, "", "")
	qid, _ := r.Register(q)

	for i := 0; i < 5; i++ {
		r.ReportResults(qid, []query.ResultItem{{Source: "n", SID: string(rune('a' + i)), Score: 0.1}})
	}

	results, _ := r.Results(qid)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for i, ri := range results {
		want := string(rune('a' + i))
		if ri.SID != want {
			t.Fatalf("results out of order at %d: want SID %q, got %q", i, want, ri.SID)
		}
	}
}

func TestReportResults_SolvesAtThreshold(t *testing.T) {
	r := testRegistry()
	q := query.New([]query.Triple{{Artist: "A", Track: "B"}}, query.ModeNormal, "", "")
	qid, _ := r.Register(q)

	r.ReportResults(qid, []query.ResultItem{{Source: "n", SID: "1", Score: 0.9}})
	if solved, _ := r.Solved(qid); solved {
		t.Fatalf("expected unsolved below threshold")
	}

	r.ReportResults(qid, []query.ResultItem{{Source: "n", SID: "2", Score: 1.0}})
	if solved, _ := r.Solved(qid); !solved {
		t.Fatalf("expected solved at threshold")
	}
}

func TestBestResult_StillPresentInResults(t *testing.T) {
	r := testRegistry()
	q := query.New([]query.Triple{{Artist: "A", Track: "B"}}, query.ModeNormal, "", "")
	qid, _ := r.Register(q)

	r.ReportResults(qid, []query.ResultItem{
		{Source: "n", SID: "1", Score: 0.3},
		{Source: "n", SID: "2", Score: 0.8},
	})

	best, ok := r.BestResult(qid)
	if !ok || best.SID != "2" {
		t.Fatalf("expected best result SID 2, got %+v ok=%v", best, ok)
	}

	results, _ := r.Results(qid)
	found := false
	for _, ri := range results {
		if ri.SID == best.SID {
			found = true
		}
	}
	if !found {
		t.Fatalf("best result no longer present in results list")
	}
}

func TestLocateSID(t *testing.T) {
	r := testRegistry()
	q := query.New([]query.Triple{{Artist: "A", Track: "B"}}, query.ModeNormal, "", "")
	qid, _ := r.Register(q)
	r.ReportResults(qid, []query.ResultItem{{Source: "n", SID: "abc", Score: 0.5}})

	ri, ok := r.LocateSID("abc")
	if !ok || ri.SID != "abc" {
		t.Fatalf("expected to locate SID abc, got %+v ok=%v", ri, ok)
	}

	_, ok = r.LocateSID("missing")
	if ok {
		t.Fatalf("expected missing SID to not be located")
	}
}

func TestSubscribe_SeesBacklogThenDeltas(t *testing.T) {
	r := testRegistry()
	q := query.New([]query.Triple{{Artist: "A", Track: "B"}}, query.ModeNormal, "", "")
	qid, _ := r.Register(q)
	r.ReportResults(qid, []query.ResultItem{{Source: "n", SID: "1", Score: 0.1}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, ok := r.Subscribe(ctx, qid)
	if !ok {
		t.Fatalf("expected subscribe to succeed")
	}

	first := <-ch
	if first.SID != "1" {
		t.Fatalf("expected backlog item first, got %+v", first)
	}

	r.ReportResults(qid, []query.ResultItem{{Source: "n", SID: "2", Score: 0.2}})
	select {
	case second := <-ch:
		if second.SID != "2" {
			t.Fatalf("expected delta item SID 2, got %+v", second)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for delta")
	}
}

func TestReap_EvictsAndClosesSubscriptions(t *testing.T) {
	r := testRegistry()
	q := query.New([]query.Triple{{Artist: "A", Track: "B"}}, query.ModeNormal, "", "")
	qid, _ := r.Register(q)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := r.Subscribe(ctx, qid)

	evicted := r.Reap(0) // TTL 0: everything is older than "now"
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}

	if r.QueryExists(qid) {
		t.Fatalf("expected query to no longer exist after reap")
	}

	select {
	case _, open := <-ch:
		if open {
			t.Fatalf("expected subscription channel closed after reap")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for subscription to close")
	}

	if ok := r.ReportResults(qid, []query.ResultItem{{Source: "n", SID: "x"}}); ok {
		t.Fatalf("expected report_results against reaped QID to fail")
	}
}

func TestWaitForResults_WakesOnNewArrival(t *testing.T) {
	r := testRegistry()
	q := query.New([]query.Triple{{Artist: "A", Track: "B"}}, query.ModeNormal, "", "")
	qid, _ := r.Register(q)

	go func() {
		time.Sleep(100 * time.Millisecond)
		r.ReportResults(qid, []query.ResultItem{{Source: "n", SID: "1", Score: 0.1}})
		r.ReportResults(qid, []query.ResultItem{{Source: "n", SID: "2", Score: 0.2}})
	}()

	start := time.Now()
	results, ok := r.WaitForResults(context.Background(), qid, 0, 2*time.Second)
	elapsed := time.Since(start)

	if !ok {
		t.Fatalf("expected query to still exist")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("expected wake-up well under timeout, took %v", elapsed)
	}
}
