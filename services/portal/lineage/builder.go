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
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/assets"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/cache"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/telemetry"
)

// DefaultWorkerCount bounds Phase 3 extraction concurrency. Fixed-size,
// independent of fleet size; extraction is metadata-only and does not
// benefit from wider fan-out.
const DefaultWorkerCount = 8

var builderTracer = otel.Tracer("portal.lineage.builder")

// AssetSource is the narrow read surface the builder needs from the
// cache layer. The cache layer never depends on lineage; fixing the
// dependency direction here keeps the layering acyclic.
type AssetSource interface {
	CacheEntries(ctx context.Context, q cache.Query) ([]assets.AssetRecord, error)
}

// Builder constructs the lineage graph for one build cycle.
//
// A build runs four phases in strict order:
//
//	Collect -> Initialize -> ExtractRelationships -> ComputeClosure
//
// Initialize must fully complete before extraction starts: extraction
// drops any relationship whose target entry does not exist yet, so a
// partially-initialized map would silently lose edges.
//
// Thread Safety: a Builder is safe for concurrent use; each Build call
// operates on its own state.
type Builder struct {
	source  AssetSource
	matcher Matcher
	logger  *slog.Logger
	metrics *telemetry.Metrics
	workers int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithMatcher sets the flat-file datasource matcher.
func WithMatcher(m Matcher) BuilderOption {
	return func(b *Builder) {
		if m != nil {
			b.matcher = m
		}
	}
}

// WithWorkerCount sets the Phase 3 worker pool size.
func WithWorkerCount(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithBuilderLogger sets the builder's logger.
func WithBuilderLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithBuilderMetrics sets the builder's telemetry instruments.
func WithBuilderMetrics(m *telemetry.Metrics) BuilderOption {
	return func(b *Builder) {
		if m != nil {
			b.metrics = m
		}
	}
}

// NewBuilder creates a Builder over the given asset source.
func NewBuilder(source AssetSource, opts ...BuilderOption) *Builder {
	b := &Builder{
		source:  source,
		matcher: NewHeuristicMatcher(),
		logger:  slog.Default(),
		metrics: telemetry.NopMetrics(),
		workers: DefaultWorkerCount,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// edgeOp is one extracted relationship, always oriented source-uses-target.
// Workers emit edgeOps into private per-asset slices; a single sequential
// merge pass appends both directions to the shared entries. This keeps
// the cross-entry append hazard out of the parallel phase entirely.
type edgeOp struct {
	source Key
	target Key
}

// edgeSig identifies an edge on an entry for deduplication.
type edgeSig struct {
	targetID   string
	targetType assets.AssetType
	kind       RelationshipType
}

// buildState carries one build cycle's working set.
type buildState struct {
	records []assets.AssetRecord
	byKey   map[Key]assets.AssetRecord
	entries map[Key]*Entry
	seen    map[Key]map[edgeSig]struct{}
	edges   int
	dropped int
}

// Build runs a full build cycle and returns the completed document.
//
// Per-asset problems (missing pointers, unknown targets) are logged and
// skipped; nothing aborts a build midway for a single bad asset.
func (b *Builder) Build(ctx context.Context) (*Document, error) {
	buildID := uuid.NewString()
	start := time.Now()

	ctx, span := builderTracer.Start(ctx, "lineage.Build")
	defer span.End()
	span.SetAttributes(attribute.String("build_id", buildID))

	logger := b.logger.With(slog.String("build_id", buildID))

	// Each phase gets a sibling span under the build span.
	phaseCtx, collectSpan := builderTracer.Start(ctx, "lineage.Collect")
	st, err := b.collect(phaseCtx, logger)
	collectSpan.End()
	if err != nil {
		span.RecordError(err)
		b.metrics.LineageBuildsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", "error")))
		return nil, err
	}

	_, initSpan := builderTracer.Start(ctx, "lineage.Initialize")
	b.initialize(st)
	initSpan.End()

	phaseCtx, extractSpan := builderTracer.Start(ctx, "lineage.ExtractRelationships")
	err = b.extract(phaseCtx, logger, st)
	extractSpan.End()
	if err != nil {
		span.RecordError(err)
		b.metrics.LineageBuildsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", "error")))
		return nil, err
	}

	phaseCtx, closureSpan := builderTracer.Start(ctx, "lineage.ComputeClosure")
	b.computeClosure(phaseCtx, logger, st)
	closureSpan.End()

	doc := &Document{
		LastUpdated:       time.Now().UTC(),
		AssetCount:        len(st.entries),
		RelationshipCount: st.edges,
		LineageMap:        make([]*Entry, 0, len(st.entries)),
	}
	// Keep collection order so rebuilds over an unchanged snapshot
	// serialize identically.
	for _, r := range st.records {
		doc.LineageMap = append(doc.LineageMap, st.entries[KeyOf(r)])
	}

	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.Int("asset_count", doc.AssetCount),
		attribute.Int("relationship_count", doc.RelationshipCount),
		attribute.Int("dropped_edges", st.dropped),
	)
	b.metrics.LineageBuildsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", "ok")))
	b.metrics.LineageBuildDuration.Record(ctx, elapsed.Seconds())
	b.metrics.RelationshipsBuilt.Add(ctx, int64(doc.RelationshipCount))

	logger.Info("lineage build complete",
		slog.Int("assets", doc.AssetCount),
		slog.Int("relationships", doc.RelationshipCount),
		slog.Int("dropped", st.dropped),
		slog.Duration("elapsed", elapsed))

	return doc, nil
}

// collect reads all four lineage-eligible types with every status.
// Lineage must include archived assets so deletion warnings stay
// accurate after archiving.
func (b *Builder) collect(ctx context.Context, logger *slog.Logger) (*buildState, error) {
	logger.Debug("lineage build phase", slog.String("phase", "collect"))

	st := &buildState{
		byKey:   make(map[Key]assets.AssetRecord),
		entries: make(map[Key]*Entry),
		seen:    make(map[Key]map[edgeSig]struct{}),
	}

	for _, t := range assets.LineageTypes() {
		records, err := b.source.CacheEntries(ctx, cache.Query{Type: &t, Filter: assets.FilterAll})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// One type's outage must not fail the whole build;
			// lineage coverage degrades instead.
			logger.Warn("lineage collect failed for type, treating as empty",
				slog.String("asset_type", string(t)),
				slog.String("error", err.Error()))
			continue
		}
		for _, r := range records {
			if r.StoragePath == "" {
				logger.Warn("asset missing storage pointer, excluded from lineage",
					slog.String("asset_type", string(r.Type)),
					slog.String("asset_id", r.ID))
				continue
			}
			st.records = append(st.records, r)
			st.byKey[KeyOf(r)] = r
		}
	}
	return st, nil
}

// initialize creates an empty entry for every collected asset before any
// extraction begins. Hard ordering invariant: extraction looks up both
// ends of an edge and drops edges whose target entry is absent.
func (b *Builder) initialize(st *buildState) {
	b.logger.Debug("lineage build phase", slog.String("phase", "initialize"))

	for _, r := range st.records {
		entry := &Entry{
			AssetID:       r.ID,
			AssetType:     r.Type,
			AssetName:     r.Name,
			IsArchived:    r.Archived(),
			Relationships: []Relationship{},
		}
		if r.Type == assets.TypeDatasource {
			entry.Metadata.DatasourceType = r.Metadata.DatasourceType
		}
		st.entries[KeyOf(r)] = entry
		st.seen[KeyOf(r)] = make(map[edgeSig]struct{})
	}
}

// extract runs the bounded worker pool over all assets, then merges the
// per-asset edge lists sequentially.
func (b *Builder) extract(ctx context.Context, logger *slog.Logger, st *buildState) error {
	logger.Debug("lineage build phase",
		slog.String("phase", "extract_relationships"),
		slog.Int("workers", b.workers))

	// Datasource candidates for the flat-file fallback.
	var datasources []assets.AssetRecord
	for _, r := range st.records {
		if r.Type == assets.TypeDatasource {
			datasources = append(datasources, r)
		}
	}

	// Each worker owns one asset's slot; slots are disjoint so the only
	// join point is g.Wait.
	perAsset := make([][]edgeOp, len(st.records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, r := range st.records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perAsset[i] = b.extractAsset(r, datasources)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Single-writer merge: all cross-entry appends happen here.
	for _, ops := range perAsset {
		for _, op := range ops {
			b.insertPair(ctx, logger, st, op)
		}
	}
	return nil
}

// extractAsset emits the asset's outbound edges from declared metadata.
func (b *Builder) extractAsset(r assets.AssetRecord, datasources []assets.AssetRecord) []edgeOp {
	var ops []edgeOp
	src := KeyOf(r)

	switch r.Type {
	case assets.TypeDashboard:
		if id := r.Metadata.SourceAnalysisID; id != "" {
			ops = append(ops, edgeOp{source: src, target: Key{Type: assets.TypeAnalysis, ID: id}})
		}
		for _, id := range r.Metadata.DatasetIDs {
			ops = append(ops, edgeOp{source: src, target: Key{Type: assets.TypeDataset, ID: id}})
		}

	case assets.TypeAnalysis:
		for _, id := range r.Metadata.DatasetIDs {
			ops = append(ops, edgeOp{source: src, target: Key{Type: assets.TypeDataset, ID: id}})
		}

	case assets.TypeDataset:
		// Composite datasets declare child dataset ids.
		for _, id := range r.Metadata.DatasetIDs {
			ops = append(ops, edgeOp{source: src, target: Key{Type: assets.TypeDataset, ID: id}})
		}
		if len(r.Metadata.DatasourceIDs) > 0 {
			for _, id := range r.Metadata.DatasourceIDs {
				ops = append(ops, edgeOp{source: src, target: Key{Type: assets.TypeDatasource, ID: id}})
			}
		} else if match, ok := b.matcher.MatchFlatFile(r, datasources); ok {
			// Heuristic, non-authoritative fallback for uploaded files.
			ops = append(ops, edgeOp{source: src, target: KeyOf(match)})
		}
	}
	return ops
}

// insertPair appends the uses edge on the source entry and the used_by
// edge on the target entry, deduplicated. Edges naming an unknown target
// are dropped with a warning, never inserted dangling.
func (b *Builder) insertPair(ctx context.Context, logger *slog.Logger, st *buildState, op edgeOp) {
	srcEntry, ok := st.entries[op.source]
	if !ok {
		return
	}
	tgtEntry, ok := st.entries[op.target]
	if !ok {
		st.dropped++
		b.metrics.DanglingEdgesDropped.Add(ctx, 1)
		logger.Warn("relationship target not in asset set, dropping edge",
			slog.String("source_type", string(op.source.Type)),
			slog.String("source_id", op.source.ID),
			slog.String("target_type", string(op.target.Type)),
			slog.String("target_id", op.target.ID))
		return
	}

	usesSig := edgeSig{targetID: op.target.ID, targetType: op.target.Type, kind: TypeUses}
	if _, dup := st.seen[op.source][usesSig]; dup {
		return
	}
	st.seen[op.source][usesSig] = struct{}{}

	usedBySig := edgeSig{targetID: op.source.ID, targetType: op.source.Type, kind: TypeUsedBy}
	st.seen[op.target][usedBySig] = struct{}{}

	srcEntry.Relationships = append(srcEntry.Relationships, Relationship{
		SourceAssetID:    srcEntry.AssetID,
		SourceAssetType:  srcEntry.AssetType,
		SourceAssetName:  srcEntry.AssetName,
		SourceIsArchived: srcEntry.IsArchived,
		TargetAssetID:    tgtEntry.AssetID,
		TargetAssetType:  tgtEntry.AssetType,
		TargetAssetName:  tgtEntry.AssetName,
		TargetIsArchived: tgtEntry.IsArchived,
		RelationshipType: TypeUses,
	})
	tgtEntry.Relationships = append(tgtEntry.Relationships, Relationship{
		SourceAssetID:    tgtEntry.AssetID,
		SourceAssetType:  tgtEntry.AssetType,
		SourceAssetName:  tgtEntry.AssetName,
		SourceIsArchived: tgtEntry.IsArchived,
		TargetAssetID:    srcEntry.AssetID,
		TargetAssetType:  srcEntry.AssetType,
		TargetAssetName:  srcEntry.AssetName,
		TargetIsArchived: srcEntry.IsArchived,
		RelationshipType: TypeUsedBy,
	})
	st.edges += 2
}
