// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assets

// Object-store key layout for the portal's derived documents.
const (
	// CachePrefix is the common prefix for every derived document.
	CachePrefix = "cache/"

	// typeCachePrefix is where the per-type asset collections live.
	typeCachePrefix = CachePrefix + "assets/"

	// LineageCacheKey is the persisted lineage document.
	LineageCacheKey = CachePrefix + "lineage-cache.json"
)

// TypeCacheKey returns the object-store key for a type's asset collection.
// One JSON array of AssetRecord per type.
func TypeCacheKey(t AssetType) string {
	return typeCachePrefix + string(t) + ".json"
}
