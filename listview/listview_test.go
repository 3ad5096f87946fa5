package listview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// countingSource records fetch calls and serves configurable rows.
type countingSource struct {
	mu    sync.Mutex
	calls int
	rows  []string
	err   error
	block chan struct{} // non-nil: fetch waits here
}

func (s *countingSource) fetch(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	s.calls++
	rows, err, block := s.rows, s.err, s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return rows, err
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never held")
}

func TestRunFetchesImmediatelyAndOnInterval(t *testing.T) {
	src := &countingSource{rows: []string{"a", "b"}}
	p := New("decoders", src.fetch, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	waitFor(t, func() bool { return src.count() >= 3 })
	if rows := p.Rows(); len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	if p.Err() != nil {
		t.Fatalf("err = %v", p.Err())
	}
}

func TestCancelStopsPolling(t *testing.T) {
	src := &countingSource{}
	p := New("decoders", src.fetch, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	waitFor(t, func() bool { return src.count() >= 2 })
	cancel()

	time.Sleep(30 * time.Millisecond)
	settled := src.count()
	time.Sleep(50 * time.Millisecond)
	if src.count() != settled {
		t.Fatal("poller kept fetching after cancellation")
	}
}

func TestPauseSuppressesIntervalFetches(t *testing.T) {
	src := &countingSource{}
	p := New("clients", src.fetch, 10*time.Millisecond)
	p.Pause()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	// The initial fetch still runs; interval ticks must not.
	waitFor(t, func() bool { return src.count() == 1 })
	time.Sleep(60 * time.Millisecond)
	if got := src.count(); got != 1 {
		t.Fatalf("fetches while paused = %d, want 1", got)
	}

	p.Resume()
	waitFor(t, func() bool { return src.count() >= 2 })
}

func TestRefreshIsImmediateAndCoalesces(t *testing.T) {
	block := make(chan struct{})
	src := &countingSource{block: block}
	p := New("decoders", src.fetch, time.Hour) // interval never fires
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	waitFor(t, func() bool { return src.count() == 1 })
	// Burst of refresh requests while the initial fetch is in flight.
	for i := 0; i < 5; i++ {
		p.Refresh()
	}
	close(block)
	waitFor(t, func() bool { return src.count() >= 2 })
	time.Sleep(30 * time.Millisecond)
	if got := src.count(); got != 2 {
		t.Fatalf("fetches = %d, want 2 (burst collapsed into one)", got)
	}
}

func TestFetchErrorKeepsStaleRows(t *testing.T) {
	src := &countingSource{rows: []string{"a"}}
	p := New("decoders", src.fetch, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	waitFor(t, func() bool { return len(p.Rows()) == 1 })

	src.mu.Lock()
	src.err = errors.New("broker unavailable")
	src.mu.Unlock()
	p.Refresh()
	waitFor(t, func() bool { return p.Err() != nil })
	if rows := p.Rows(); len(rows) != 1 {
		t.Fatalf("stale rows dropped on error: %v", rows)
	}

	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	p.Refresh()
	waitFor(t, func() bool { return p.Err() == nil })
}

func TestOnUpdateCallback(t *testing.T) {
	src := &countingSource{rows: []string{"x"}}
	got := make(chan []string, 1)
	p := New("decoders", src.fetch, time.Hour, WithOnUpdate[string](func(rows []string) {
		select {
		case got <- rows:
		default:
		}
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case rows := <-got:
		if len(rows) != 1 || rows[0] != "x" {
			t.Fatalf("callback rows = %v", rows)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update callback never fired")
	}
}
