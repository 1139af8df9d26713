// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry instruments for the portal's
// cache and lineage layers.
package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics contains pre-defined metrics for the portal service.
//
// All metrics use the "portal_" prefix for consistent naming.
//
// Thread Safety: safe for concurrent use after creation.
type Metrics struct {
	// --- Cache Metrics ---

	// CacheHitsTotal counts memory-tier hits by asset type.
	CacheHitsTotal metric.Int64Counter

	// CacheMissesTotal counts memory-tier misses by asset type.
	CacheMissesTotal metric.Int64Counter

	// CacheReadsTotal counts durable-store reads by asset type and status.
	CacheReadsTotal metric.Int64Counter

	// --- Lineage Metrics ---

	// LineageBuildsTotal counts lineage build operations by status.
	LineageBuildsTotal metric.Int64Counter

	// LineageBuildDuration records lineage build duration in seconds.
	LineageBuildDuration metric.Float64Histogram

	// RelationshipsBuilt counts relationships emitted per build.
	RelationshipsBuilt metric.Int64Counter

	// DanglingEdgesDropped counts relationships dropped for unknown targets.
	DanglingEdgesDropped metric.Int64Counter
}

// NewMetrics registers all portal metrics with the provided meter.
//
// Returns an error if any instrument registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CacheHitsTotal, err = meter.Int64Counter(
		"portal_cache_hits_total",
		metric.WithDescription("Memory tier cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache_hits_total: %w", err)
	}

	m.CacheMissesTotal, err = meter.Int64Counter(
		"portal_cache_misses_total",
		metric.WithDescription("Memory tier cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache_misses_total: %w", err)
	}

	m.CacheReadsTotal, err = meter.Int64Counter(
		"portal_cache_reads_total",
		metric.WithDescription("Durable store document reads"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache_reads_total: %w", err)
	}

	m.LineageBuildsTotal, err = meter.Int64Counter(
		"portal_lineage_builds_total",
		metric.WithDescription("Lineage build operations"),
		metric.WithUnit("{build}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create lineage_builds_total: %w", err)
	}

	m.LineageBuildDuration, err = meter.Float64Histogram(
		"portal_lineage_build_duration_seconds",
		metric.WithDescription("Lineage build duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, fmt.Errorf("create lineage_build_duration: %w", err)
	}

	m.RelationshipsBuilt, err = meter.Int64Counter(
		"portal_lineage_relationships_built_total",
		metric.WithDescription("Relationships emitted by lineage builds"),
		metric.WithUnit("{relationship}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create relationships_built: %w", err)
	}

	m.DanglingEdgesDropped, err = meter.Int64Counter(
		"portal_lineage_dangling_edges_dropped_total",
		metric.WithDescription("Relationships dropped because the target asset is unknown"),
		metric.WithUnit("{relationship}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create dangling_edges_dropped: %w", err)
	}

	return m, nil
}

// NopMetrics returns a Metrics backed by no-op instruments.
//
// Used when telemetry is not configured and in tests.
func NopMetrics() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("portal"))
	if err != nil {
		// The noop meter never fails registration.
		panic(err)
	}
	return m
}
