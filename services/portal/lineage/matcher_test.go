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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/assets"
)

func TestHeuristicMatcher(t *testing.T) {
	m := NewHeuristicMatcher()
	uploaded := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	candidate := func(id, name, subtype string, created time.Time) assets.AssetRecord {
		return assets.AssetRecord{
			ID:        id,
			Type:      assets.TypeDatasource,
			Name:      name,
			CreatedAt: created,
			Metadata:  assets.Metadata{DatasourceType: subtype},
		}
	}
	dataset := assets.AssetRecord{
		ID:        "d1",
		Type:      assets.TypeDataset,
		Name:      "Sales Report",
		CreatedAt: uploaded,
	}

	t.Run("matches same name and close upload time", func(t *testing.T) {
		match, ok := m.MatchFlatFile(dataset, []assets.AssetRecord{
			candidate("ds1", "Sales Report.csv", "FILE", uploaded.Add(time.Minute)),
		})
		require.True(t, ok)
		assert.Equal(t, "ds1", match.ID)
	})

	t.Run("separator and case differences are ignored", func(t *testing.T) {
		match, ok := m.MatchFlatFile(dataset, []assets.AssetRecord{
			candidate("ds1", "sales_report.xlsx", "FILE", uploaded),
		})
		require.True(t, ok)
		assert.Equal(t, "ds1", match.ID)
	})

	t.Run("picks the best of several candidates", func(t *testing.T) {
		match, ok := m.MatchFlatFile(dataset, []assets.AssetRecord{
			candidate("ds-old", "Sales Report.csv", "FILE", uploaded.Add(-8*time.Minute)),
			candidate("ds-new", "Sales Report.csv", "FILE", uploaded.Add(time.Minute)),
		})
		require.True(t, ok)
		assert.Equal(t, "ds-new", match.ID)
	})

	t.Run("non-file subtypes are excluded", func(t *testing.T) {
		_, ok := m.MatchFlatFile(dataset, []assets.AssetRecord{
			candidate("ds1", "Sales Report", "ATHENA", uploaded),
		})
		assert.False(t, ok)
	})

	t.Run("undeclared subtype is still considered", func(t *testing.T) {
		_, ok := m.MatchFlatFile(dataset, []assets.AssetRecord{
			candidate("ds1", "Sales Report", "", uploaded),
		})
		assert.True(t, ok)
	})

	t.Run("unrelated name scores below threshold", func(t *testing.T) {
		_, ok := m.MatchFlatFile(dataset, []assets.AssetRecord{
			candidate("ds1", "Inventory Feed.csv", "FILE", uploaded),
		})
		assert.False(t, ok)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, ok := m.MatchFlatFile(dataset, nil)
		assert.False(t, ok)
	})
}

func TestNameSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical after normalization", "Sales Report.csv", "sales_report", 1.0},
		{"prefix containment", "sales report 2026", "sales report", 0.8},
		{"empty name", "", "sales", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, nameSimilarity(tc.a, tc.b), 1e-9)
		})
	}
}

func TestTimestampProximity(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	at := func(created time.Time) assets.AssetRecord {
		return assets.AssetRecord{CreatedAt: created}
	}

	assert.InDelta(t, 1.0, timestampProximity(at(base), at(base)), 1e-9)
	assert.InDelta(t, 0.5, timestampProximity(at(base), at(base.Add(5*time.Minute))), 1e-9)
	assert.Zero(t, timestampProximity(at(base), at(base.Add(15*time.Minute))))

	// Falls back to update times when creation is unset.
	a := assets.AssetRecord{UpdatedAt: base}
	b := assets.AssetRecord{UpdatedAt: base.Add(time.Minute)}
	assert.InDelta(t, 0.9, timestampProximity(a, b), 1e-9)

	// No usable timestamps at all.
	assert.Zero(t, timestampProximity(assets.AssetRecord{}, assets.AssetRecord{}))
}

func TestDisabledMatcher(t *testing.T) {
	_, ok := NewDisabledMatcher().MatchFlatFile(assets.AssetRecord{Name: "x"}, []assets.AssetRecord{
		{Name: "x", Type: assets.TypeDatasource},
	})
	assert.False(t, ok)
}
