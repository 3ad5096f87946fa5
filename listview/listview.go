// Package listview drives the polled collection views of the console.
// One Poller owns one collection: it fetches on a fixed interval, can
// be paused while the view is hidden, and takes out-of-band refreshes
// after mutations. All fetches run on a single goroutine, so a slow
// fetch can never overlap the next one, and bursts of forced refreshes
// collapse into a single pending fetch.
package listview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mqdeck/mqdeck/observability"
)

// Polling intervals used by the console. Decoder metrics move fast;
// client status does not.
const (
	IntervalFast = 5 * time.Second
	IntervalSlow = 30 * time.Second
)

// Source fetches the collection's current rows.
type Source[T any] func(ctx context.Context) ([]T, error)

// Poller polls one collection. Construct with New, run with Run, stop
// by cancelling the context passed to Run.
type Poller[T any] struct {
	collection string
	source     Source[T]
	interval   time.Duration
	log        *slog.Logger
	onUpdate   func([]T)

	kick chan struct{}

	mu          sync.Mutex
	rows        []T
	err         error
	lastRefresh time.Time
	paused      bool
}

// Option configures a Poller.
type Option[T any] func(*Poller[T])

// WithLogger sets the logger.
func WithLogger[T any](log *slog.Logger) Option[T] {
	return func(p *Poller[T]) { p.log = log }
}

// WithOnUpdate registers a callback invoked after every successful
// fetch with the fresh rows. The console uses it to push WebSocket
// snapshots.
func WithOnUpdate[T any](fn func([]T)) Option[T] {
	return func(p *Poller[T]) { p.onUpdate = fn }
}

// New builds a poller for one collection. collection names the
// collection in logs and metrics.
func New[T any](collection string, source Source[T], interval time.Duration, opts ...Option[T]) *Poller[T] {
	p := &Poller[T]{
		collection: collection,
		source:     source,
		interval:   interval,
		log:        slog.Default(),
		kick:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run fetches immediately, then on every interval tick until ctx is
// cancelled. Forced refreshes fire even while paused; interval ticks
// do not.
func (p *Poller[T]) Run(ctx context.Context) {
	p.fetch(ctx, "interval")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.isPaused() {
				continue
			}
			p.fetch(ctx, "interval")
		case <-p.kick:
			p.fetch(ctx, "forced")
		}
	}
}

// Refresh requests an immediate fetch. It never blocks: if a forced
// fetch is already pending the request merges into it.
func (p *Poller[T]) Refresh() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Pause suspends interval fetches while the view is hidden.
func (p *Poller[T]) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume re-enables interval fetches and refreshes immediately so the
// view catches up on what it missed.
func (p *Poller[T]) Resume() {
	p.mu.Lock()
	wasPaused := p.paused
	p.paused = false
	p.mu.Unlock()
	if wasPaused {
		p.Refresh()
	}
}

func (p *Poller[T]) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Rows returns the last successfully fetched rows.
func (p *Poller[T]) Rows() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]T, len(p.rows))
	copy(out, p.rows)
	return out
}

// Err returns the error from the most recent fetch, nil after a
// successful one. Stale rows stay visible alongside the error.
func (p *Poller[T]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// LastRefresh returns when rows were last successfully fetched.
func (p *Poller[T]) LastRefresh() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRefresh
}

func (p *Poller[T]) fetch(ctx context.Context, trigger string) {
	start := time.Now()
	rows, err := p.source(ctx)
	observability.ListRefreshes.WithLabelValues(p.collection, trigger).Inc()
	observability.ListRefreshDuration.WithLabelValues(p.collection).Observe(time.Since(start).Seconds())

	p.mu.Lock()
	if err != nil {
		p.err = err
		p.mu.Unlock()
		if ctx.Err() == nil {
			p.log.Warn("collection refresh failed", "collection", p.collection, "error", err)
		}
		return
	}
	p.rows = rows
	p.err = nil
	p.lastRefresh = time.Now()
	cb := p.onUpdate
	p.mu.Unlock()
	if cb != nil {
		cb(rows)
	}
}
