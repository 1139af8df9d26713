// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lineage builds and serves the point-in-time dependency graph
// over the asset fleet.
//
// The builder consumes the cache reader's per-type collections, extracts
// direct relationships from declared metadata, synthesizes transitive
// edges across the shallow datasource -> dataset -> dashboard/analysis
// hierarchy, and produces one lineage document per build cycle. The
// service persists that document and serves it with its own TTL.
package lineage

import (
	"errors"
	"time"

	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/assets"
)

// ErrNoLineage reports a lookup for an asset with no lineage entry.
var ErrNoLineage = errors.New("lineage: no entry for asset")

// RelationshipType is the direction of a lineage edge.
type RelationshipType string

// Edge directions. Relationships always exist in complementary pairs: a
// TypeUses edge on the source entry and a matching TypeUsedBy edge on
// the target entry. This pairing holds for transitively-derived edges too.
const (
	TypeUses   RelationshipType = "uses"
	TypeUsedBy RelationshipType = "used_by"
)

// Inverse returns the complementary direction.
func (t RelationshipType) Inverse() RelationshipType {
	if t == TypeUses {
		return TypeUsedBy
	}
	return TypeUses
}

// Relationship is one directed lineage edge between two assets.
type Relationship struct {
	SourceAssetID    string           `json:"sourceAssetId"`
	SourceAssetType  assets.AssetType `json:"sourceAssetType"`
	SourceAssetName  string           `json:"sourceAssetName"`
	SourceIsArchived bool             `json:"sourceIsArchived"`
	TargetAssetID    string           `json:"targetAssetId"`
	TargetAssetType  assets.AssetType `json:"targetAssetType"`
	TargetAssetName  string           `json:"targetAssetName"`
	TargetIsArchived bool             `json:"targetIsArchived"`
	RelationshipType RelationshipType `json:"relationshipType"`
}

// EntryMetadata carries type-specific extras on a lineage entry.
type EntryMetadata struct {
	// DatasourceType is the datasource subtype (e.g. FILE, S3, ATHENA).
	// Set on datasource entries only.
	DatasourceType string `json:"datasourceType,omitempty"`
}

// Entry is the lineage record for one asset. Created fresh on every
// rebuild; (AssetType, AssetID) is the canonical identity.
type Entry struct {
	AssetID       string           `json:"assetId"`
	AssetType     assets.AssetType `json:"assetType"`
	AssetName     string           `json:"assetName"`
	IsArchived    bool             `json:"isArchived"`
	Relationships []Relationship   `json:"relationships"`
	Metadata      EntryMetadata    `json:"metadata,omitempty"`
}

// Key is the composite lineage identity.
type Key struct {
	Type assets.AssetType
	ID   string
}

// KeyOf returns the lineage key for an asset record.
func KeyOf(r assets.AssetRecord) Key {
	return Key{Type: r.Type, ID: r.ID}
}

// Document is the persisted build result.
//
// Written as a single JSON object at assets.LineageCacheKey, only after
// the full map is assembled; no partial document is ever written.
type Document struct {
	LastUpdated       time.Time `json:"lastUpdated"`
	AssetCount        int       `json:"assetCount"`
	RelationshipCount int       `json:"relationshipCount"`
	LineageMap        []*Entry  `json:"lineageMap"`
}

// EntryFor returns the entry for an asset id, scanning across types.
// Linear scan; acceptable for bounded fleet sizes.
func (d *Document) EntryFor(assetID string) (*Entry, bool) {
	for _, e := range d.LineageMap {
		if e.AssetID == assetID {
			return e, true
		}
	}
	return nil, false
}

// EntriesByKey indexes the lineage map by composite key.
func (d *Document) EntriesByKey() map[Key]*Entry {
	m := make(map[Key]*Entry, len(d.LineageMap))
	for _, e := range d.LineageMap {
		m[Key{Type: e.AssetType, ID: e.AssetID}] = e
	}
	return m
}
