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

import "strings"

// CompareFunc orders two records. Negative means a sorts before b.
type CompareFunc func(a, b AssetRecord) int

// sortFields maps sort field names to comparators. Text fields compare
// case-insensitively; timestamps compare chronologically.
var sortFields = map[string]CompareFunc{
	"name":      compareFold(func(r AssetRecord) string { return r.Name }),
	"id":        compareFold(func(r AssetRecord) string { return r.ID }),
	"status":    compareFold(func(r AssetRecord) string { return string(r.Status) }),
	"createdAt": func(a, b AssetRecord) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"updatedAt": func(a, b AssetRecord) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
}

// CompareBy resolves a sort field name to a comparator.
// The second return is false for unknown fields.
func CompareBy(field string) (CompareFunc, bool) {
	cmp, ok := sortFields[field]
	return cmp, ok
}

func compareFold(get func(AssetRecord) string) CompareFunc {
	return func(a, b AssetRecord) int {
		return strings.Compare(strings.ToLower(get(a)), strings.ToLower(get(b)))
	}
}
