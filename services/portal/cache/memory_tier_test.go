// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryTierGetSet(t *testing.T) {
	tier := NewMemoryTier(WithMaxEntries(10))

	_, ok := tier.Get("missing")
	assert.False(t, ok)

	tier.Set("k", "v")
	v, ok := tier.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	tier.Delete("k")
	_, ok = tier.Get("k")
	assert.False(t, ok)
}

func TestMemoryTierTTLExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tier := NewMemoryTier(WithTTL(time.Minute), WithClock(clock))
	tier.Set("k", "v")

	_, ok := tier.Get("k")
	assert.True(t, ok)

	// Just inside the TTL.
	now = now.Add(59 * time.Second)
	_, ok = tier.Get("k")
	assert.True(t, ok)

	// Past the TTL: entry is treated as absent.
	now = now.Add(2 * time.Second)
	_, ok = tier.Get("k")
	assert.False(t, ok)
}

func TestMemoryTierEviction(t *testing.T) {
	t.Run("expired entries evicted first", func(t *testing.T) {
		now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }

		tier := NewMemoryTier(WithTTL(time.Minute), WithMaxEntries(2), WithClock(clock))
		tier.Set("old", 1)
		now = now.Add(2 * time.Minute) // "old" is now expired
		tier.Set("fresh", 2)
		tier.Set("newer", 3)

		_, ok := tier.Get("fresh")
		assert.True(t, ok)
		_, ok = tier.Get("newer")
		assert.True(t, ok)
		assert.Equal(t, 2, tier.Len())
	})

	t.Run("oldest stored evicted at capacity", func(t *testing.T) {
		now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }

		tier := NewMemoryTier(WithTTL(time.Hour), WithMaxEntries(3), WithClock(clock))
		for i := range 3 {
			tier.Set(fmt.Sprintf("k%d", i), i)
			now = now.Add(time.Second)
		}
		tier.Set("k3", 3)

		_, ok := tier.Get("k0")
		assert.False(t, ok, "oldest entry should have been evicted")
		_, ok = tier.Get("k3")
		assert.True(t, ok)
		assert.Equal(t, 3, tier.Len())
	})
}

func TestMemoryTierClearAndStats(t *testing.T) {
	tier := NewMemoryTier(WithMaxEntries(10))
	tier.Set("a", 1)
	tier.Set("b", 2)

	tier.Get("a")       // hit
	tier.Get("missing") // miss

	stats := tier.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	tier.Clear()
	assert.Equal(t, 0, tier.Len())
}
