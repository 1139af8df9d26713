// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache implements the portal's two-tier metadata cache: a
// bounded, TTL'd in-process tier (MemoryTier) in front of the durable
// object store, composed into typed accessors by Reader.
package cache

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Default memory tier configuration values.
const (
	// DefaultTTL is how long a tier entry stays fresh.
	DefaultTTL = 5 * time.Minute

	// defaultMaxEntries is the ceiling on larger hosts.
	defaultMaxEntries = 500

	// constrainedMaxEntries is the ceiling on constrained hosts.
	constrainedMaxEntries = 100
)

// tierEntry is one cached value with its storage timestamp.
type tierEntry struct {
	value    any
	storedAt time.Time
}

// TierStats contains counters for the memory tier.
type TierStats struct {
	Entries    int
	Hits       int64
	Misses     int64
	Evictions  int64
	MaxEntries int
	TTL        time.Duration
}

// MemoryTier is the bounded, TTL'd in-process cache tier.
//
// Eviction is expiry based, not LRU: entries simply age out after a
// fixed duration and are treated as absent. When the entry ceiling is
// reached, expired entries are dropped first, then the oldest-stored.
//
// The tier never contacts the durable store; composing the two tiers is
// Reader's job.
//
// Thread Safety: safe for concurrent use.
type MemoryTier struct {
	mu         sync.RWMutex
	entries    map[string]tierEntry
	ttl        time.Duration
	maxEntries int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	// now is swappable for expiry tests.
	now func() time.Time
}

// TierOption configures a MemoryTier.
type TierOption func(*MemoryTier)

// WithTTL sets the entry time-to-live.
func WithTTL(d time.Duration) TierOption {
	return func(t *MemoryTier) {
		if d > 0 {
			t.ttl = d
		}
	}
}

// WithMaxEntries sets the entry-count ceiling.
func WithMaxEntries(n int) TierOption {
	return func(t *MemoryTier) {
		if n > 0 {
			t.maxEntries = n
		}
	}
}

// WithClock overrides the tier's clock. Test hook.
func WithClock(now func() time.Time) TierOption {
	return func(t *MemoryTier) {
		if now != nil {
			t.now = now
		}
	}
}

// NewMemoryTier creates a memory tier with defaults scaled to the host.
//
// The default ceiling uses CPU count as a portable proxy for host size:
// hosts with one or two CPUs get the constrained ceiling. Reading actual
// cgroup memory limits is deliberately avoided for portability.
func NewMemoryTier(opts ...TierOption) *MemoryTier {
	max := defaultMaxEntries
	if runtime.NumCPU() <= 2 {
		max = constrainedMaxEntries
	}

	t := &MemoryTier{
		entries:    make(map[string]tierEntry),
		ttl:        DefaultTTL,
		maxEntries: max,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get returns the cached value for key, or false if absent or expired.
func (t *MemoryTier) Get(key string) (any, bool) {
	t.mu.RLock()
	e, ok := t.entries[key]
	t.mu.RUnlock()

	if !ok || t.expired(e) {
		t.misses.Add(1)
		return nil, false
	}
	t.hits.Add(1)
	return e.value, true
}

// Set stores value at key, evicting as needed to stay under the ceiling.
func (t *MemoryTier) Set(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[key]; !exists && len(t.entries) >= t.maxEntries {
		t.evictLocked()
	}
	t.entries[key] = tierEntry{value: value, storedAt: t.now()}
}

// Delete removes the entry at key.
func (t *MemoryTier) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Clear removes every entry.
func (t *MemoryTier) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]tierEntry)
}

// Len returns the number of stored entries, expired or not.
func (t *MemoryTier) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Stats returns current tier counters.
func (t *MemoryTier) Stats() TierStats {
	t.mu.RLock()
	entries := len(t.entries)
	t.mu.RUnlock()

	return TierStats{
		Entries:    entries,
		Hits:       t.hits.Load(),
		Misses:     t.misses.Load(),
		Evictions:  t.evictions.Load(),
		MaxEntries: t.maxEntries,
		TTL:        t.ttl,
	}
}

func (t *MemoryTier) expired(e tierEntry) bool {
	return t.now().Sub(e.storedAt) > t.ttl
}

// evictLocked frees at least one slot: expired entries first, then the
// oldest-stored entry. Caller must hold the write lock.
func (t *MemoryTier) evictLocked() {
	var oldestKey string
	var oldestAt time.Time

	for k, e := range t.entries {
		if t.expired(e) {
			delete(t.entries, k)
			t.evictions.Add(1)
			continue
		}
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.storedAt
		}
	}

	if len(t.entries) >= t.maxEntries && oldestKey != "" {
		delete(t.entries, oldestKey)
		t.evictions.Add(1)
	}
}
