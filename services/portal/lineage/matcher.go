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
	"strings"
	"time"

	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/assets"
)

// Matcher resolves the datasource behind a flat-file dataset.
//
// Flat-file (uploaded) datasets commonly declare no datasource ids, so
// the builder falls back to a heuristic match. Results are best-effort
// and non-authoritative: a returned match is used as-is and a miss
// simply leaves the dataset without a datasource edge.
type Matcher interface {
	// MatchFlatFile returns the best candidate datasource for the
	// dataset, or false when nothing scores above threshold.
	MatchFlatFile(dataset assets.AssetRecord, candidates []assets.AssetRecord) (assets.AssetRecord, bool)
}

// Heuristic matcher tuning.
const (
	// matchThreshold is the minimum combined score for a match.
	matchThreshold = 0.6

	// timestampWindow is the proximity window for full timestamp score.
	timestampWindow = 10 * time.Minute
)

// HeuristicMatcher matches by normalized-name similarity plus
// creation/update timestamp proximity.
//
// Known limitation: two datasets uploaded at the same time with similar
// names can mis-assign. The heuristic carries no stronger intent; false
// positives are accepted rather than silently "fixed".
type HeuristicMatcher struct{}

// NewHeuristicMatcher creates the default matcher.
func NewHeuristicMatcher() *HeuristicMatcher {
	return &HeuristicMatcher{}
}

// MatchFlatFile scores every candidate and returns the best one above
// threshold. Only FILE-subtype datasources are considered when the
// subtype is declared.
func (m *HeuristicMatcher) MatchFlatFile(dataset assets.AssetRecord, candidates []assets.AssetRecord) (assets.AssetRecord, bool) {
	var best assets.AssetRecord
	var bestScore float64

	for _, c := range candidates {
		if sub := c.Metadata.DatasourceType; sub != "" && !strings.EqualFold(sub, "FILE") {
			continue
		}
		score := 0.7*nameSimilarity(dataset.Name, c.Name) + 0.3*timestampProximity(dataset, c)
		if score > bestScore {
			best, bestScore = c, score
		}
	}

	if bestScore < matchThreshold {
		return assets.AssetRecord{}, false
	}
	return best, true
}

// nameSimilarity compares normalized names: 1.0 for equality, 0.8 for
// prefix containment, otherwise the shared-prefix ratio.
func nameSimilarity(a, b string) float64 {
	na, nb := normalizeName(a), normalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.8
	}

	shared := 0
	for shared < len(na) && shared < len(nb) && na[shared] == nb[shared] {
		shared++
	}
	longer := max(len(na), len(nb))
	return float64(shared) / float64(longer)
}

// normalizeName lowercases and strips separators and common upload
// suffixes so "Sales Report.csv" and "sales_report" compare equal.
func normalizeName(s string) string {
	s = strings.ToLower(s)
	for _, suffix := range []string{".csv", ".xlsx", ".xls", ".json", ".txt"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '.':
			return -1
		}
		return r
	}, s)
}

// timestampProximity scores how close the two assets' creation times
// are, falling back to update times when creation is zero.
func timestampProximity(dataset, datasource assets.AssetRecord) float64 {
	dt, st := dataset.CreatedAt, datasource.CreatedAt
	if dt.IsZero() || st.IsZero() {
		dt, st = dataset.UpdatedAt, datasource.UpdatedAt
	}
	if dt.IsZero() || st.IsZero() {
		return 0
	}

	gap := dt.Sub(st)
	if gap < 0 {
		gap = -gap
	}
	if gap >= timestampWindow {
		return 0
	}
	return 1 - float64(gap)/float64(timestampWindow)
}

// disabledMatcher never matches. Installed when flat-file matching is
// turned off in config.
type disabledMatcher struct{}

// NewDisabledMatcher returns a Matcher that never matches.
func NewDisabledMatcher() Matcher { return disabledMatcher{} }

func (disabledMatcher) MatchFlatFile(assets.AssetRecord, []assets.AssetRecord) (assets.AssetRecord, bool) {
	return assets.AssetRecord{}, false
}
