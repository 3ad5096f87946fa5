// Package kv provides the resilient key-value store backing the admin
// console's session state. Values live in Redis when it is reachable and
// silently degrade to an in-memory map when it is not: no operation ever
// returns an error to the caller.
package kv

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mqdeck/mqdeck/observability"
)

const probeKey = "mqdeck:kv:probe"

// Backend is the persistent side of the store. The production
// implementation is Redis; tests substitute a stub.
type Backend interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Store wraps a Backend with an in-memory fallback.
//
// On construction the backend is probed with a sentinel write+delete. If
// the probe fails, every operation is served from the in-memory map for
// the remainder of the process and a single warning is logged. If the
// backend is healthy but a later write fails (quota, transient outage),
// only that operation degrades to the map; persistence stays enabled for
// subsequent calls.
type Store struct {
	mu         sync.RWMutex
	backend    Backend
	persistent bool
	mem        map[string]string
	timeout    time.Duration
	log        *slog.Logger
}

// New probes backend and returns a ready Store. A nil backend means
// memory-only operation, which is also the degraded mode after a failed
// probe.
func New(backend Backend, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		backend: backend,
		mem:     make(map[string]string),
		timeout: 2 * time.Second,
		log:     log,
	}
	if backend == nil {
		observability.SessionStoreDegraded.Set(1)
		return s
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := backend.Set(ctx, probeKey, "1"); err != nil {
		log.Warn("persistent store unavailable, falling back to in-memory session state", "error", err)
		observability.SessionStoreDegraded.Set(1)
		return s
	}
	if err := backend.Del(ctx, probeKey); err != nil {
		log.Warn("persistent store unavailable, falling back to in-memory session state", "error", err)
		observability.SessionStoreDegraded.Set(1)
		return s
	}
	s.persistent = true
	observability.SessionStoreDegraded.Set(0)
	return s
}

// Set stores value under key. Failures degrade to the in-memory map.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persistent {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.backend.Set(ctx, key, value); err == nil {
			// The backend now holds the authoritative copy.
			delete(s.mem, key)
			return
		} else {
			s.log.Warn("session write degraded to memory", "key", key, "error", err)
			observability.SessionStoreFallbackWrites.Inc()
		}
	}
	s.mem[key] = value
}

// Get returns the value for key and whether it was present. The memory
// overlay wins over the backend so degraded writes stay visible.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.mem[key]; ok {
		return v, true
	}
	if !s.persistent {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	v, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.log.Warn("session read failed", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

// Remove deletes key from both the backend and the memory overlay.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.mem, key)
	if !s.persistent {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.backend.Del(ctx, key); err != nil {
		s.log.Warn("session delete failed", "key", key, "error", err)
	}
}

// Clear drops all keys.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem = make(map[string]string)
	if !s.persistent {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.backend.Clear(ctx); err != nil {
		s.log.Warn("session clear failed", "error", err)
	}
}

// Persistent reports whether the backend survived the construction probe.
func (s *Store) Persistent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistent
}
