// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage defines the durable document store the portal caches
// sit on top of.
//
// The store is an opaque key -> JSON document mapping. Implementations
// exist for Google Cloud Storage (production) and BadgerDB (local,
// offline). A map-backed MemoryStore serves tests and development.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound reports that a document was never written.
//
// Callers must be able to distinguish "never written" from a transport
// failure: the cache layer treats ErrNotFound as an empty collection and
// anything else as a transient I/O error.
var ErrNotFound = errors.New("storage: document not found")

// ObjectStore is the durable tier.
//
// All methods honor context cancellation. Keys are slash-separated paths
// such as "cache/assets/dashboard.json".
type ObjectStore interface {
	// GetDocument returns the raw JSON document at key, or ErrNotFound.
	GetDocument(ctx context.Context, key string) ([]byte, error)

	// PutDocument stores data at key, replacing any existing document.
	PutDocument(ctx context.Context, key string, data []byte) error

	// ListKeys returns every key with the given prefix.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// DeleteDocument removes the document at key. Removing a missing
	// document is not an error.
	DeleteDocument(ctx context.Context, key string) error

	// Close releases any underlying resources.
	Close() error
}
