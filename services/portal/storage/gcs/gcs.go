// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs implements the durable document store on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	gstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/storage"
)

// Store is a storage.ObjectStore backed by a GCS bucket.
//
// Keys map directly to object names under an optional prefix. Documents
// are written with an application/json content type.
type Store struct {
	client *gstorage.Client
	bucket string
	prefix string
}

// NewStore opens a GCS-backed store.
//
// saKeyPath is a service account key file. When empty, application
// default credentials are used.
func NewStore(ctx context.Context, bucket, prefix, saKeyPath string) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("gcs: bucket name is required")
	}

	var opts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("gcs: service account key not found at %s", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}

	client, err := gstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: failed to create storage client: %w", err)
	}

	return &Store{client: client, bucket: bucket, prefix: prefix}, nil
}

// GetDocument reads the object at key. A missing object maps to
// storage.ErrNotFound so callers can distinguish it from transport errors.
func (s *Store) GetDocument(ctx context.Context, key string) ([]byte, error) {
	obj := s.client.Bucket(s.bucket).Object(s.objectName(key))

	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("gcs: failed to open reader for %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs: failed to read %s: %w", key, err)
	}
	return data, nil
}

// PutDocument writes data at key, replacing any existing object.
func (s *Store) PutDocument(ctx context.Context, key string, data []byte) error {
	obj := s.client.Bucket(s.bucket).Object(s.objectName(key))

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs: failed to write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: failed to close writer for %s: %w", key, err)
	}
	return nil
}

// ListKeys returns every key under prefix, with the store's own prefix
// stripped back off.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gstorage.Query{
		Prefix: s.objectName(prefix),
	})

	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs: failed to list prefix %s: %w", prefix, err)
		}
		keys = append(keys, s.keyName(attrs.Name))
	}
	return keys, nil
}

// DeleteDocument removes the object at key. Deleting a missing object is
// not an error.
func (s *Store) DeleteDocument(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(s.objectName(key)).Delete(ctx)
	if err != nil && !errors.Is(err, gstorage.ErrObjectNotExist) {
		return fmt.Errorf("gcs: failed to delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying GCS client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *Store) keyName(objectName string) string {
	if s.prefix == "" {
		return objectName
	}
	return objectName[len(s.prefix)+1:]
}
