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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/assets"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/storage"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/telemetry"
)

// ErrUnknownAssetType reports a request for a type the cache does not track.
var ErrUnknownAssetType = errors.New("cache: unknown asset type")

// ErrUnknownSortField reports an AssetsByType sort field with no accessor.
var ErrUnknownSortField = errors.New("cache: unknown sort field")

// SnapshotVersion identifies the master cache snapshot format.
const SnapshotVersion = "1.0"

// Snapshot is the merged, status-filtered view over every asset type.
//
// Rebuilt on demand from the per-type documents; never persisted itself.
type Snapshot struct {
	Version       string                                     `json:"version"`
	LastUpdated   time.Time                                  `json:"lastUpdated"`
	CountsByType  map[assets.AssetType]int                   `json:"countsByType"`
	EntriesByType map[assets.AssetType][]assets.AssetRecord `json:"entriesByType"`
}

// TotalCount returns the number of entries across all types.
func (s *Snapshot) TotalCount() int {
	var n int
	for _, c := range s.CountsByType {
		n += c
	}
	return n
}

// Query selects cache entries by optional type and status filter.
type Query struct {
	// Type restricts the query to a single asset type. Nil means all types.
	Type *assets.AssetType

	// Filter is the status filter. Empty defaults to FilterActive so
	// archived assets never leak into default listings.
	Filter assets.StatusFilter
}

// ListOptions controls AssetsByType search, sort, and pagination.
type ListOptions struct {
	Search    string
	SortBy    string
	SortOrder string // "asc" (default) or "desc"
	Page      int    // 1-based; values < 1 are treated as 1
	PageSize  int
	Filter    assets.StatusFilter
}

// Page is one page of a filtered, sorted asset listing.
type Page struct {
	Items      []assets.AssetRecord `json:"items"`
	TotalItems int                  `json:"totalItems"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"pageSize"`
	HasMore    bool                 `json:"hasMore"`
}

// DefaultPageSize is used when ListOptions.PageSize is not positive.
const DefaultPageSize = 20

// Reader composes the memory tier and the durable store into typed,
// status-filtered accessors over the per-type asset collections.
//
// Thread Safety: safe for concurrent use.
type Reader struct {
	store   storage.ObjectStore
	tier    *MemoryTier
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithLogger sets the reader's logger.
func WithLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the reader's telemetry instruments.
func WithMetrics(m *telemetry.Metrics) ReaderOption {
	return func(r *Reader) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewReader creates a Reader over the given tiers.
func NewReader(store storage.ObjectStore, tier *MemoryTier, opts ...ReaderOption) *Reader {
	r := &Reader{
		store:   store,
		tier:    tier,
		logger:  slog.Default(),
		metrics: telemetry.NopMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TypeEntries returns every record of one type, unfiltered.
//
// Memory-tier hits return immediately. On a miss the per-type document
// is read from the durable store and the tier is populated. A document
// that was never written is an empty collection, not an error.
func (r *Reader) TypeEntries(ctx context.Context, t assets.AssetType) ([]assets.AssetRecord, error) {
	if !validType(t) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAssetType, t)
	}

	key := assets.TypeCacheKey(t)
	if v, ok := r.tier.Get(key); ok {
		if records, ok := v.([]assets.AssetRecord); ok {
			r.metrics.CacheHitsTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("asset_type", string(t))))
			return records, nil
		}
	}
	r.metrics.CacheMissesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("asset_type", string(t))))

	data, err := r.store.GetDocument(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		records := []assets.AssetRecord{}
		r.tier.Set(key, records)
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read %s: %w", key, err)
	}
	r.metrics.CacheReadsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("asset_type", string(t))))

	var records []assets.AssetRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", key, err)
	}

	r.tier.Set(key, records)
	return records, nil
}

// CacheEntries returns status-filtered records for one type, or the
// union across all types when the query names none.
//
// In the union case a failing type is logged and contributes nothing;
// one type's outage must not fail the whole result.
func (r *Reader) CacheEntries(ctx context.Context, q Query) ([]assets.AssetRecord, error) {
	filter := q.Filter
	if filter == "" {
		filter = assets.FilterActive
	}

	if q.Type != nil {
		records, err := r.TypeEntries(ctx, *q.Type)
		if err != nil {
			return nil, err
		}
		return filterRecords(records, filter), nil
	}

	var out []assets.AssetRecord
	for _, t := range assets.AllTypes() {
		records, err := r.TypeEntries(ctx, t)
		if err != nil {
			r.logger.Warn("cache entries read failed, treating type as empty",
				slog.String("asset_type", string(t)),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, filterRecords(records, filter)...)
	}
	return out, nil
}

// MasterCache assembles the merged snapshot across all asset types.
//
// The per-type loads fan out concurrently, bounded by the type count;
// each goroutine writes a disjoint slot so no further synchronization is
// needed. A failing type is logged and left empty.
func (r *Reader) MasterCache(ctx context.Context, filter assets.StatusFilter) (*Snapshot, error) {
	if filter == "" {
		filter = assets.FilterActive
	}

	types := assets.AllTypes()
	perType := make([][]assets.AssetRecord, len(types))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			records, err := r.TypeEntries(gctx, t)
			if err != nil {
				r.logger.Warn("master cache type load failed, treating as empty",
					slog.String("asset_type", string(t)),
					slog.String("error", err.Error()))
				return nil
			}
			perType[i] = filterRecords(records, filter)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Version:       SnapshotVersion,
		LastUpdated:   time.Now().UTC(),
		CountsByType:  make(map[assets.AssetType]int, len(types)),
		EntriesByType: make(map[assets.AssetType][]assets.AssetRecord, len(types)),
	}
	for i, t := range types {
		records := perType[i]
		if records == nil {
			records = []assets.AssetRecord{}
		}
		snap.EntriesByType[t] = records
		snap.CountsByType[t] = len(records)
	}
	return snap, nil
}

// AssetsByType returns one page of a filtered, sorted listing.
//
// Search is a case-insensitive substring match over name, id,
// description, and ARN. Sorting resolves the field through the accessor
// table; ties keep input order (stable sort).
func (r *Reader) AssetsByType(ctx context.Context, t assets.AssetType, opts ListOptions) (*Page, error) {
	filter := opts.Filter
	if filter == "" {
		filter = assets.FilterActive
	}

	records, err := r.TypeEntries(ctx, t)
	if err != nil {
		return nil, err
	}

	matched := make([]assets.AssetRecord, 0, len(records))
	for _, rec := range records {
		if filter.Matches(rec.Status) && rec.MatchesSearch(opts.Search) {
			matched = append(matched, rec)
		}
	}

	if opts.SortBy != "" {
		cmp, ok := assets.CompareBy(opts.SortBy)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSortField, opts.SortBy)
		}
		desc := strings.EqualFold(opts.SortOrder, "desc")
		slices.SortStableFunc(matched, func(a, b assets.AssetRecord) int {
			if desc {
				return cmp(b, a)
			}
			return cmp(a, b)
		})
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	total := len(matched)
	offset := (page - 1) * pageSize
	items := []assets.AssetRecord{}
	if offset < total {
		end := min(offset+pageSize, total)
		items = matched[offset:end]
	}

	return &Page{
		Items:      items,
		TotalItems: total,
		Page:       page,
		PageSize:   pageSize,
		HasMore:    offset+pageSize < total,
	}, nil
}

// PutTypeEntries replaces a type's collection in the durable store and
// repopulates the memory tier. This is the mutation surface the bulk
// job runner drives.
func (r *Reader) PutTypeEntries(ctx context.Context, t assets.AssetType, records []assets.AssetRecord) error {
	if !validType(t) {
		return fmt.Errorf("%w: %q", ErrUnknownAssetType, t)
	}
	if records == nil {
		records = []assets.AssetRecord{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("cache: encode %s entries: %w", t, err)
	}

	key := assets.TypeCacheKey(t)
	if err := r.store.PutDocument(ctx, key, data); err != nil {
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	r.tier.Set(key, records)
	return nil
}

// InvalidateType drops a type's memory-tier entry. The next read goes
// to the durable store.
func (r *Reader) InvalidateType(t assets.AssetType) {
	r.tier.Delete(assets.TypeCacheKey(t))
}

func filterRecords(records []assets.AssetRecord, f assets.StatusFilter) []assets.AssetRecord {
	out := make([]assets.AssetRecord, 0, len(records))
	for _, rec := range records {
		if f.Matches(rec.Status) {
			out = append(out, rec)
		}
	}
	return out
}

func validType(t assets.AssetType) bool {
	return slices.Contains(assets.AllTypes(), t)
}
