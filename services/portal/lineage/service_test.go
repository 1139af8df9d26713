// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lineage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/assets"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/cache"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/storage"
)

// fakeClock is a manually advanced clock for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingSource wraps a fakeSource and counts builder reads, so tests
// can tell a cache hit from a rebuild.
type countingSource struct {
	*fakeSource
	mu    sync.Mutex
	calls int
}

func (c *countingSource) CacheEntries(ctx context.Context, q cache.Query) ([]assets.AssetRecord, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.fakeSource.CacheEntries(ctx, q)
}

func (c *countingSource) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// failingPutStore fails every write while serving reads normally.
type failingPutStore struct {
	*storage.MemoryStore
}

func (f *failingPutStore) PutDocument(context.Context, string, []byte) error {
	return errors.New("injected write failure")
}

func chainSource() *fakeSource {
	return sourceOf(
		asset(assets.TypeDatasource, "ds1", "Warehouse", assets.Metadata{}),
		asset(assets.TypeDataset, "d1", "Sales", assets.Metadata{DatasourceIDs: []string{"ds1"}}),
		asset(assets.TypeDashboard, "dash1", "Revenue", assets.Metadata{DatasetIDs: []string{"d1"}}),
	)
}

func TestServiceGetAllLineage(t *testing.T) {
	ctx := context.Background()

	t.Run("cold start builds and persists", func(t *testing.T) {
		store := storage.NewMemoryStore()
		svc := NewService(NewBuilder(chainSource()), store)

		doc, err := svc.GetAllLineage(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, doc.AssetCount)
		assert.Equal(t, 6, doc.RelationshipCount)

		data, err := store.GetDocument(ctx, assets.LineageCacheKey)
		require.NoError(t, err)
		var persisted Document
		require.NoError(t, json.Unmarshal(data, &persisted))
		assert.Equal(t, doc.RelationshipCount, persisted.RelationshipCount)
	})

	t.Run("served from process cache until the TTL lapses", func(t *testing.T) {
		clock := newFakeClock()
		src := &countingSource{fakeSource: chainSource()}
		svc := NewService(NewBuilder(src), storage.NewMemoryStore(),
			WithTTL(30*time.Minute), WithServiceClock(clock.Now))

		_, err := svc.GetAllLineage(ctx)
		require.NoError(t, err)
		built := src.Calls()

		clock.Advance(10 * time.Minute)
		_, err = svc.GetAllLineage(ctx)
		require.NoError(t, err)
		assert.Equal(t, built, src.Calls(), "unexpired cache must not trigger a rebuild")

		// Expired process cache re-adopts the persisted document; still
		// no rebuild.
		clock.Advance(time.Hour)
		_, err = svc.GetAllLineage(ctx)
		require.NoError(t, err)
		assert.Equal(t, built, src.Calls())
	})

	t.Run("adopts a persisted document without building", func(t *testing.T) {
		store := storage.NewMemoryStore()
		persisted := &Document{
			LastUpdated:       time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
			AssetCount:        1,
			RelationshipCount: 0,
			LineageMap: []*Entry{{
				AssetID: "dash1", AssetType: assets.TypeDashboard,
				AssetName: "Old Build", Relationships: []Relationship{},
			}},
		}
		data, err := json.Marshal(persisted)
		require.NoError(t, err)
		require.NoError(t, store.PutDocument(ctx, assets.LineageCacheKey, data))

		src := &countingSource{fakeSource: chainSource()}
		svc := NewService(NewBuilder(src), store)

		doc, err := svc.GetAllLineage(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, doc.AssetCount)
		assert.Zero(t, src.Calls())
	})

	t.Run("corrupt persisted document falls back to a rebuild", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.PutDocument(ctx, assets.LineageCacheKey, []byte("{not json")))

		svc := NewService(NewBuilder(chainSource()), store)
		doc, err := svc.GetAllLineage(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, doc.AssetCount)
	})
}

func TestServiceGetAssetLineage(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewBuilder(chainSource()), storage.NewMemoryStore())

	entry, err := svc.GetAssetLineage(ctx, "dash1")
	require.NoError(t, err)
	assert.Equal(t, assets.TypeDashboard, entry.AssetType)
	assert.NotEmpty(t, entry.Relationships)

	_, err = svc.GetAssetLineage(ctx, "no-such-asset")
	assert.ErrorIs(t, err, ErrNoLineage)
}

func TestServiceGetLineageMapForAssets(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewBuilder(chainSource()), storage.NewMemoryStore())

	got, err := svc.GetLineageMapForAssets(ctx, assets.TypeDataset, []string{"d1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got, Key{Type: assets.TypeDataset, ID: "d1"})
}

func TestServiceInvalidateCache(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	src := &countingSource{fakeSource: chainSource()}
	svc := NewService(NewBuilder(src), store)

	_, err := svc.GetAllLineage(ctx)
	require.NoError(t, err)
	assert.True(t, svc.Stats().Cached)

	svc.InvalidateCache()
	assert.False(t, svc.Stats().Cached)

	// The persisted document survives invalidation, so the next query
	// re-adopts rather than rebuilds.
	built := src.Calls()
	_, err = svc.GetAllLineage(ctx)
	require.NoError(t, err)
	assert.Equal(t, built, src.Calls())
}

func TestServicePersistFailureStillServes(t *testing.T) {
	ctx := context.Background()
	store := &failingPutStore{MemoryStore: storage.NewMemoryStore()}
	svc := NewService(NewBuilder(chainSource()), store)

	doc, err := svc.RebuildLineage(ctx)
	require.NoError(t, err, "persist failure must not fail the rebuild")
	assert.Equal(t, 3, doc.AssetCount)
	assert.True(t, svc.Stats().Cached)
}

func TestServiceRebuildPropagatesBuildErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := chainSource()
	src.errTypes = map[assets.AssetType]error{
		assets.TypeDashboard: context.Canceled,
	}
	svc := NewService(NewBuilder(src), storage.NewMemoryStore())

	_, err := svc.RebuildLineage(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServiceStats(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc := NewService(NewBuilder(chainSource()), storage.NewMemoryStore(),
		WithTTL(30*time.Minute), WithServiceClock(clock.Now))

	assert.False(t, svc.Stats().Cached)

	_, err := svc.GetAllLineage(ctx)
	require.NoError(t, err)

	info := svc.Stats()
	assert.True(t, info.Cached)
	assert.Equal(t, 3, info.AssetCount)
	assert.Equal(t, 6, info.RelationshipCount)
	assert.Equal(t, clock.Now().Add(30*time.Minute), info.ExpiresAt)

	clock.Advance(time.Hour)
	assert.False(t, svc.Stats().Cached)
}
