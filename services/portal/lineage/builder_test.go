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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/assets"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/cache"
)

// fakeSource serves canned per-type collections to the builder.
type fakeSource struct {
	byType   map[assets.AssetType][]assets.AssetRecord
	errTypes map[assets.AssetType]error
}

func (f *fakeSource) CacheEntries(_ context.Context, q cache.Query) ([]assets.AssetRecord, error) {
	if q.Type == nil {
		return nil, errors.New("builder queries must name a type")
	}
	if err := f.errTypes[*q.Type]; err != nil {
		return nil, err
	}
	return f.byType[*q.Type], nil
}

func sourceOf(records ...assets.AssetRecord) *fakeSource {
	f := &fakeSource{byType: make(map[assets.AssetType][]assets.AssetRecord)}
	for _, r := range records {
		f.byType[r.Type] = append(f.byType[r.Type], r)
	}
	return f
}

func asset(typ assets.AssetType, id, name string, meta assets.Metadata) assets.AssetRecord {
	return assets.AssetRecord{
		ID:          id,
		Type:        typ,
		Name:        name,
		Status:      assets.StatusActive,
		StoragePath: "exports/" + string(typ) + "/" + id + ".json",
		Metadata:    meta,
	}
}

// relsOf returns the relationships on an entry matching kind and target.
func relsOf(e *Entry, kind RelationshipType, targetID string) []Relationship {
	var out []Relationship
	for _, rel := range e.Relationships {
		if rel.RelationshipType == kind && rel.TargetAssetID == targetID {
			out = append(out, rel)
		}
	}
	return out
}

// requirePairSymmetry checks that every edge has its complement on the
// target entry and that every edge's source fields name the owning entry.
func requirePairSymmetry(t *testing.T, doc *Document) {
	t.Helper()
	byKey := doc.EntriesByKey()
	for _, e := range doc.LineageMap {
		for _, rel := range e.Relationships {
			require.Equal(t, e.AssetID, rel.SourceAssetID,
				"relationship source must be the owning entry")
			require.Equal(t, e.AssetType, rel.SourceAssetType)

			target, ok := byKey[Key{Type: rel.TargetAssetType, ID: rel.TargetAssetID}]
			require.True(t, ok, "edge targets missing entry %s/%s",
				rel.TargetAssetType, rel.TargetAssetID)

			inverse := relsOf(target, rel.RelationshipType.Inverse(), e.AssetID)
			require.Len(t, inverse, 1,
				"edge %s -%s-> %s has no single complement",
				e.AssetID, rel.RelationshipType, rel.TargetAssetID)
		}
	}
}

func TestBuildChain(t *testing.T) {
	ctx := context.Background()

	src := sourceOf(
		asset(assets.TypeDatasource, "ds1", "Orders DB", assets.Metadata{DatasourceType: "ATHENA"}),
		asset(assets.TypeDataset, "d1", "Orders", assets.Metadata{DatasourceIDs: []string{"ds1"}}),
		asset(assets.TypeDashboard, "dash1", "Orders Board", assets.Metadata{DatasetIDs: []string{"d1"}}),
	)
	doc, err := NewBuilder(src).Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, doc.AssetCount)
	// Two declared pairs plus the synthesized dashboard<->datasource pair.
	assert.Equal(t, 6, doc.RelationshipCount)
	requirePairSymmetry(t, doc)

	byKey := doc.EntriesByKey()
	dash := byKey[Key{Type: assets.TypeDashboard, ID: "dash1"}]
	ds := byKey[Key{Type: assets.TypeDatasource, ID: "ds1"}]
	require.NotNil(t, dash)
	require.NotNil(t, ds)

	assert.Len(t, relsOf(dash, TypeUses, "d1"), 1)
	assert.Len(t, relsOf(dash, TypeUses, "ds1"), 1, "closure must link dashboard to datasource")
	assert.Len(t, relsOf(ds, TypeUsedBy, "dash1"), 1)
	assert.Equal(t, "ATHENA", ds.Metadata.DatasourceType)
}

func TestBuildDashboardFromAnalysis(t *testing.T) {
	src := sourceOf(
		asset(assets.TypeAnalysis, "a1", "Draft", assets.Metadata{}),
		asset(assets.TypeDashboard, "dash1", "Published", assets.Metadata{SourceAnalysisID: "a1"}),
	)
	doc, err := NewBuilder(src).Build(context.Background())
	require.NoError(t, err)

	dash, ok := doc.EntryFor("dash1")
	require.True(t, ok)
	assert.Len(t, relsOf(dash, TypeUses, "a1"), 1)
	requirePairSymmetry(t, doc)
}

func TestBuildCompositeDataset(t *testing.T) {
	src := sourceOf(
		asset(assets.TypeDatasource, "ds1", "S3 Source", assets.Metadata{}),
		asset(assets.TypeDataset, "child", "Raw", assets.Metadata{DatasourceIDs: []string{"ds1"}}),
		asset(assets.TypeDataset, "parent", "Joined", assets.Metadata{DatasetIDs: []string{"child"}}),
	)
	doc, err := NewBuilder(src).Build(context.Background())
	require.NoError(t, err)

	parent, ok := doc.EntryFor("parent")
	require.True(t, ok)
	assert.Len(t, relsOf(parent, TypeUses, "child"), 1)
	requirePairSymmetry(t, doc)
}

func TestBuildSharedDatasourceDedup(t *testing.T) {
	// Two datasets over one datasource give the dashboard two transitive
	// paths to it. Both sweeps also visit the same pair. Exactly one edge
	// per direction must survive.
	src := sourceOf(
		asset(assets.TypeDatasource, "ds1", "Warehouse", assets.Metadata{}),
		asset(assets.TypeDataset, "d1", "Sales", assets.Metadata{DatasourceIDs: []string{"ds1"}}),
		asset(assets.TypeDataset, "d2", "Returns", assets.Metadata{DatasourceIDs: []string{"ds1"}}),
		asset(assets.TypeDashboard, "dash1", "Revenue", assets.Metadata{DatasetIDs: []string{"d1", "d2"}}),
	)
	doc, err := NewBuilder(src).Build(context.Background())
	require.NoError(t, err)

	dash, ok := doc.EntryFor("dash1")
	require.True(t, ok)
	assert.Len(t, relsOf(dash, TypeUses, "ds1"), 1)

	ds, ok := doc.EntryFor("ds1")
	require.True(t, ok)
	assert.Len(t, relsOf(ds, TypeUsedBy, "dash1"), 1)
	requirePairSymmetry(t, doc)
}

func TestBuildDropsDanglingEdges(t *testing.T) {
	src := sourceOf(
		asset(assets.TypeDashboard, "dash1", "Orphan Board", assets.Metadata{DatasetIDs: []string{"gone"}}),
	)
	doc, err := NewBuilder(src).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, doc.AssetCount)
	assert.Equal(t, 0, doc.RelationshipCount)
	dash, ok := doc.EntryFor("dash1")
	require.True(t, ok)
	assert.Empty(t, dash.Relationships)
}

func TestBuildIncludesArchivedAssets(t *testing.T) {
	archived := asset(assets.TypeDataset, "d1", "Old Data", assets.Metadata{})
	archived.Status = assets.StatusArchived

	src := sourceOf(
		archived,
		asset(assets.TypeDashboard, "dash1", "Board", assets.Metadata{DatasetIDs: []string{"d1"}}),
	)
	doc, err := NewBuilder(src).Build(context.Background())
	require.NoError(t, err)

	d1, ok := doc.EntryFor("d1")
	require.True(t, ok)
	assert.True(t, d1.IsArchived)

	dash, ok := doc.EntryFor("dash1")
	require.True(t, ok)
	rels := relsOf(dash, TypeUses, "d1")
	require.Len(t, rels, 1)
	assert.True(t, rels[0].TargetIsArchived)
}

func TestBuildSkipsAssetsWithoutStoragePointer(t *testing.T) {
	unexported := assets.AssetRecord{
		ID: "d1", Type: assets.TypeDataset, Name: "Pending", Status: assets.StatusActive,
	}
	src := sourceOf(
		unexported,
		asset(assets.TypeDashboard, "dash1", "Board", assets.Metadata{DatasetIDs: []string{"d1"}}),
	)
	doc, err := NewBuilder(src).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, doc.AssetCount)
	_, ok := doc.EntryFor("d1")
	assert.False(t, ok)
}

func TestBuildSurvivesTypeOutage(t *testing.T) {
	src := sourceOf(
		asset(assets.TypeDashboard, "dash1", "Board", assets.Metadata{DatasetIDs: []string{"d1"}}),
		asset(assets.TypeDataset, "d1", "Sales", assets.Metadata{}),
	)
	src.errTypes = map[assets.AssetType]error{
		assets.TypeDataset: errors.New("injected read failure"),
	}

	doc, err := NewBuilder(src).Build(context.Background())
	require.NoError(t, err, "one type's outage must not fail the build")

	assert.Equal(t, 1, doc.AssetCount)
	dash, ok := doc.EntryFor("dash1")
	require.True(t, ok)
	assert.Empty(t, dash.Relationships, "edge into the missing type is dropped")
}

func TestBuildDeterministicOverUnchangedAssets(t *testing.T) {
	src := sourceOf(
		asset(assets.TypeDatasource, "ds1", "Warehouse", assets.Metadata{}),
		asset(assets.TypeDataset, "d1", "Sales", assets.Metadata{DatasourceIDs: []string{"ds1"}}),
		asset(assets.TypeDataset, "d2", "Returns", assets.Metadata{DatasourceIDs: []string{"ds1"}}),
		asset(assets.TypeAnalysis, "a1", "Deep Dive", assets.Metadata{DatasetIDs: []string{"d1", "d2"}}),
		asset(assets.TypeDashboard, "dash1", "Revenue", assets.Metadata{DatasetIDs: []string{"d1"}}),
	)
	b := NewBuilder(src)

	first, err := b.Build(context.Background())
	require.NoError(t, err)
	second, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.AssetCount, second.AssetCount)
	assert.Equal(t, first.RelationshipCount, second.RelationshipCount)

	firstMap, err := json.Marshal(first.LineageMap)
	require.NoError(t, err)
	secondMap, err := json.Marshal(second.LineageMap)
	require.NoError(t, err)
	assert.JSONEq(t, string(firstMap), string(secondMap))
}

func TestBuildFlatFileFallback(t *testing.T) {
	uploaded := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	fileDS := asset(assets.TypeDatasource, "ds-file", "Sales Report.csv", assets.Metadata{DatasourceType: "FILE"})
	fileDS.CreatedAt = uploaded

	flatFile := asset(assets.TypeDataset, "d1", "Sales Report", assets.Metadata{})
	flatFile.CreatedAt = uploaded.Add(time.Minute)

	t.Run("heuristic match creates the edge", func(t *testing.T) {
		doc, err := NewBuilder(sourceOf(fileDS, flatFile)).Build(context.Background())
		require.NoError(t, err)

		d1, ok := doc.EntryFor("d1")
		require.True(t, ok)
		assert.Len(t, relsOf(d1, TypeUses, "ds-file"), 1)
		requirePairSymmetry(t, doc)
	})

	t.Run("disabled matcher leaves the dataset unlinked", func(t *testing.T) {
		b := NewBuilder(sourceOf(fileDS, flatFile), WithMatcher(NewDisabledMatcher()))
		doc, err := b.Build(context.Background())
		require.NoError(t, err)

		d1, ok := doc.EntryFor("d1")
		require.True(t, ok)
		assert.Empty(t, d1.Relationships)
	})

	t.Run("declared datasource ids suppress the heuristic", func(t *testing.T) {
		other := asset(assets.TypeDatasource, "ds2", "Other", assets.Metadata{})
		declared := flatFile
		declared.Metadata = assets.Metadata{DatasourceIDs: []string{"ds2"}}

		doc, err := NewBuilder(sourceOf(fileDS, other, declared)).Build(context.Background())
		require.NoError(t, err)

		d1, ok := doc.EntryFor("d1")
		require.True(t, ok)
		assert.Len(t, relsOf(d1, TypeUses, "ds2"), 1)
		assert.Empty(t, relsOf(d1, TypeUses, "ds-file"))
	})
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := sourceOf(asset(assets.TypeDashboard, "dash1", "Board", assets.Metadata{}))
	src.errTypes = map[assets.AssetType]error{
		assets.TypeDashboard: context.Canceled,
	}

	_, err := NewBuilder(src).Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
