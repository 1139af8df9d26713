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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/assets"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/storage"
)

// DefaultTTL is how long a built lineage document is served from the
// process cache before a rebuild is triggered.
const DefaultTTL = 30 * time.Minute

// CacheInfo describes the service's process-cache state.
type CacheInfo struct {
	Cached            bool
	ExpiresAt         time.Time
	AssetCount        int
	RelationshipCount int
	LastUpdated       time.Time
}

// Service serves lineage queries from a TTL'd process cache backed by
// the persisted lineage document, rebuilding when both are cold.
//
// The process cache is a dedicated expiring value (document + expiry
// timestamp), deliberately not a generic cache shared with other data
// shapes. Concurrent rebuild triggers are deduplicated with
// singleflight, so at most one build runs at a time.
//
// Thread Safety: safe for concurrent use.
type Service struct {
	builder *Builder
	store   storage.ObjectStore
	logger  *slog.Logger
	ttl     time.Duration

	mu        sync.RWMutex
	doc       *Document
	expiresAt time.Time

	flight singleflight.Group

	// now is swappable for expiry tests.
	now func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTTL sets the process-cache TTL.
func WithTTL(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithServiceLogger sets the service's logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithServiceClock overrides the service's clock. Test hook.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a lineage service.
func NewService(builder *Builder, store storage.ObjectStore, opts ...ServiceOption) *Service {
	s := &Service{
		builder: builder,
		store:   store,
		logger:  slog.Default(),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetAllLineage returns the current lineage document.
//
// Serve order: unexpired process cache, then the persisted document,
// then a full rebuild. Normal operation never returns an error; the
// worst case is an empty but valid document.
func (s *Service) GetAllLineage(ctx context.Context) (*Document, error) {
	s.mu.RLock()
	if s.doc != nil && s.now().Before(s.expiresAt) {
		doc := s.doc
		s.mu.RUnlock()
		return doc, nil
	}
	s.mu.RUnlock()

	if doc := s.loadPersisted(ctx); doc != nil {
		s.cacheDoc(doc)
		return doc, nil
	}

	return s.RebuildLineage(ctx)
}

// GetAssetLineage returns the lineage entry for one asset id, scanning
// across types.
func (s *Service) GetAssetLineage(ctx context.Context, assetID string) (*Entry, error) {
	doc, err := s.GetAllLineage(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := doc.EntryFor(assetID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLineage, assetID)
	}
	return entry, nil
}

// GetLineageMapForAssets returns a keyed lookup for the given ids of one
// type. Ids without an entry are simply absent from the result.
func (s *Service) GetLineageMapForAssets(ctx context.Context, t assets.AssetType, ids []string) (map[Key]*Entry, error) {
	doc, err := s.GetAllLineage(ctx)
	if err != nil {
		return nil, err
	}

	byKey := doc.EntriesByKey()
	out := make(map[Key]*Entry, len(ids))
	for _, id := range ids {
		k := Key{Type: t, ID: id}
		if e, ok := byKey[k]; ok {
			out[k] = e
		}
	}
	return out, nil
}

// InvalidateCache drops the process cache only. The persisted document
// is untouched; the next query re-adopts or rebuilds.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = nil
	s.expiresAt = time.Time{}
}

// RebuildLineage forces a full build, persists the result, and caches
// it. Concurrent callers share one build.
//
// A persist failure degrades gracefully: the freshly built document is
// still cached and returned, and the write is retried on the next
// triggering event.
func (s *Service) RebuildLineage(ctx context.Context) (*Document, error) {
	result, err, _ := s.flight.Do("rebuild", func() (interface{}, error) {
		doc, err := s.builder.Build(ctx)
		if err != nil {
			return nil, err
		}
		s.persist(ctx, doc)
		s.cacheDoc(doc)
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Document), nil
}

// Stats returns the process-cache state.
func (s *Service) Stats() CacheInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := CacheInfo{
		Cached:    s.doc != nil && s.now().Before(s.expiresAt),
		ExpiresAt: s.expiresAt,
	}
	if s.doc != nil {
		info.AssetCount = s.doc.AssetCount
		info.RelationshipCount = s.doc.RelationshipCount
		info.LastUpdated = s.doc.LastUpdated
	}
	return info
}

// loadPersisted reads the persisted lineage document. Any failure,
// including never-written, returns nil; the caller falls back to a
// rebuild.
func (s *Service) loadPersisted(ctx context.Context) *Document {
	data, err := s.store.GetDocument(ctx, assets.LineageCacheKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Warn("failed to read persisted lineage document",
			slog.String("error", err.Error()))
		return nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("persisted lineage document is corrupt, rebuilding",
			slog.String("error", err.Error()))
		return nil
	}
	return &doc
}

// persist writes the document, guarding against silently replacing a
// more complete build with a sparser one.
func (s *Service) persist(ctx context.Context, doc *Document) {
	if existing := s.loadPersisted(ctx); existing != nil &&
		doc.RelationshipCount < existing.RelationshipCount {
		s.logger.Warn("new lineage build has fewer relationships than the persisted document",
			slog.Int("new_count", doc.RelationshipCount),
			slog.Int("persisted_count", existing.RelationshipCount))
	}

	data, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error("failed to encode lineage document",
			slog.String("error", err.Error()))
		return
	}
	if err := s.store.PutDocument(ctx, assets.LineageCacheKey, data); err != nil {
		s.logger.Error("failed to persist lineage document, serving unpersisted build",
			slog.String("error", err.Error()))
	}
}

func (s *Service) cacheDoc(doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.expiresAt = s.now().Add(s.ttl)
}
