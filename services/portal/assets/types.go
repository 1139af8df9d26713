// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assets defines the domain model for cached BI assets.
//
// An AssetRecord is the read-only snapshot of one QuickSight asset as
// produced by the export pipeline. The cache and lineage layers consume
// these records; nothing in this module mutates them.
package assets

import (
	"fmt"
	"strings"
	"time"
)

// AssetType identifies the kind of a cached asset.
type AssetType string

// Asset types known to the portal.
const (
	TypeDashboard  AssetType = "dashboard"
	TypeAnalysis   AssetType = "analysis"
	TypeDataset    AssetType = "dataset"
	TypeDatasource AssetType = "datasource"
	TypeFolder     AssetType = "folder"
	TypeUser       AssetType = "user"
	TypeGroup      AssetType = "group"
)

// AllTypes returns every asset type the cache tracks.
func AllTypes() []AssetType {
	return []AssetType{
		TypeDashboard, TypeAnalysis, TypeDataset, TypeDatasource,
		TypeFolder, TypeUser, TypeGroup,
	}
}

// LineageTypes returns the four types that participate in the lineage graph.
func LineageTypes() []AssetType {
	return []AssetType{TypeDashboard, TypeAnalysis, TypeDataset, TypeDatasource}
}

// ParseType converts a string to an AssetType.
func ParseType(s string) (AssetType, error) {
	t := AssetType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown asset type: %q", s)
}

// Status is the archival state of an asset.
type Status string

// Asset statuses. The archiving subsystem owns transitions; this module
// only reads the flag.
const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// StatusFilter selects assets by archival state at query time.
type StatusFilter string

// Status filters. FilterActive is the default everywhere a caller omits
// one, so archived assets never leak into default listings.
const (
	FilterActive   StatusFilter = "ACTIVE"
	FilterArchived StatusFilter = "ARCHIVED"
	FilterAll      StatusFilter = "ALL"
)

// Matches reports whether an asset with the given status passes the filter.
func (f StatusFilter) Matches(s Status) bool {
	switch f {
	case FilterArchived:
		return s == StatusArchived
	case FilterAll:
		return true
	default:
		// FilterActive and anything unrecognized: exclude archived.
		return s != StatusArchived
	}
}

// Metadata is the type-specific bag of declared dependency hints.
//
// Which fields are populated depends on the asset type:
//   - dashboards: DatasetIDs, SourceAnalysisID (when published from an analysis)
//   - analyses: DatasetIDs
//   - datasets: DatasetIDs (composite children), DatasourceIDs, DatasourceARNs
//   - datasources: DatasourceType
type Metadata struct {
	DatasetIDs       []string `json:"datasetIds,omitempty"`
	DatasourceIDs    []string `json:"datasourceIds,omitempty"`
	DatasourceARNs   []string `json:"datasourceArns,omitempty"`
	SourceAnalysisID string   `json:"sourceAnalysisId,omitempty"`
	DatasourceType   string   `json:"datasourceType,omitempty"`
}

// AssetRecord is one cached asset. IDs are unique within a type; the pair
// (Type, ID) is the canonical identity used for lineage lookups.
type AssetRecord struct {
	ID          string    `json:"id"`
	Type        AssetType `json:"type"`
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	ARN         string    `json:"arn,omitempty"`
	Description string    `json:"description,omitempty"`

	// StoragePath points at the exported asset document in the object
	// store. An asset without one cannot be dereferenced later and is
	// excluded from lineage with a warning.
	StoragePath string `json:"storagePath,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Metadata Metadata `json:"metadata"`
}

// Archived reports whether the record carries the archived status flag.
func (r AssetRecord) Archived() bool {
	return r.Status == StatusArchived
}

// MatchesSearch reports whether the record matches a free-text query.
// Matching is a case-insensitive substring test over name, id,
// description, and ARN. An empty query matches everything.
func (r AssetRecord) MatchesSearch(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	for _, field := range []string{r.Name, r.ID, r.Description, r.ARN} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
