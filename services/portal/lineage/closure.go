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
	"log/slog"

	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/assets"
)

// computeClosure synthesizes direct datasource <-> dashboard/analysis
// edges by collapsing the two-hop paths through datasets.
//
// The graph is a shallow three-tier hierarchy (datasource -> dataset ->
// dashboard/analysis), so one pass per sweep reaches the fixed point; no
// iteration is needed. Both sweeps run: datasource-rooted in the used_by
// direction and dashboard/analysis-rooted in the uses direction. Every
// synthesized pair goes through the same dedup as direct edges, so a
// pre-existing direct edge is never duplicated.
func (b *Builder) computeClosure(ctx context.Context, logger *slog.Logger, st *buildState) {
	logger.Debug("lineage build phase", slog.String("phase", "compute_closure"))

	b.sweepFromDatasources(ctx, logger, st)
	b.sweepFromConsumers(ctx, logger, st)
}

// sweepFromDatasources walks datasource -> dataset -> dashboard/analysis
// along used_by edges and synthesizes the collapsed pair.
func (b *Builder) sweepFromDatasources(ctx context.Context, logger *slog.Logger, st *buildState) {
	for _, r := range st.records {
		if r.Type != assets.TypeDatasource {
			continue
		}
		key := KeyOf(r)
		entry := st.entries[key]
		for _, rel := range snapshotRels(entry) {
			if rel.RelationshipType != TypeUsedBy || rel.TargetAssetType != assets.TypeDataset {
				continue
			}
			dataset, ok := st.entries[Key{Type: assets.TypeDataset, ID: rel.TargetAssetID}]
			if !ok {
				continue
			}
			for _, dsRel := range snapshotRels(dataset) {
				if dsRel.RelationshipType != TypeUsedBy || !isConsumerType(dsRel.TargetAssetType) {
					continue
				}
				b.insertPair(ctx, logger, st, edgeOp{
					source: Key{Type: dsRel.TargetAssetType, ID: dsRel.TargetAssetID},
					target: key,
				})
			}
		}
	}
}

// sweepFromConsumers walks dashboard/analysis -> dataset -> datasource
// along uses edges; symmetric to sweepFromDatasources.
func (b *Builder) sweepFromConsumers(ctx context.Context, logger *slog.Logger, st *buildState) {
	for _, r := range st.records {
		if !isConsumerType(r.Type) {
			continue
		}
		key := KeyOf(r)
		entry := st.entries[key]
		for _, rel := range snapshotRels(entry) {
			if rel.RelationshipType != TypeUses || rel.TargetAssetType != assets.TypeDataset {
				continue
			}
			dataset, ok := st.entries[Key{Type: assets.TypeDataset, ID: rel.TargetAssetID}]
			if !ok {
				continue
			}
			for _, dsRel := range snapshotRels(dataset) {
				if dsRel.RelationshipType != TypeUses || dsRel.TargetAssetType != assets.TypeDatasource {
					continue
				}
				b.insertPair(ctx, logger, st, edgeOp{
					source: key,
					target: Key{Type: assets.TypeDatasource, ID: dsRel.TargetAssetID},
				})
			}
		}
	}
}

// snapshotRels copies an entry's relationship list so a sweep can append
// to the entry it is iterating without invalidating the range.
func snapshotRels(e *Entry) []Relationship {
	out := make([]Relationship, len(e.Relationships))
	copy(out, e.Relationships)
	return out
}

func isConsumerType(t assets.AssetType) bool {
	return t == assets.TypeDashboard || t == assets.TypeAnalysis
}
