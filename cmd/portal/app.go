// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yeahthisisrob/quicksight-portal-sub000/pkg/logging"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/cache"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/config"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/lineage"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/storage"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/storage/badgerstore"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/storage/gcs"
)

// app holds the wired portal components for one CLI invocation.
//
// The cache service and lineage service are constructed once here and
// passed by handle; lifecycle is the process, teardown is Close.
type app struct {
	cfg     config.PortalConfig
	log     *logging.Logger
	logger  *slog.Logger
	store   storage.ObjectStore
	tier    *cache.MemoryTier
	reader  *cache.Reader
	lineage *lineage.Service
}

// newApp loads config and wires the full component stack.
func newApp(ctx context.Context, configPath string) (*app, error) {
	if configPath == "" {
		var err error
		configPath, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		LogDir:  cfg.LogDir,
		Service: "portal",
	})
	logger := log.Logger
	slog.SetDefault(logger)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Close()
		return nil, err
	}

	var tierOpts []cache.TierOption
	if cfg.Cache.TTL > 0 {
		tierOpts = append(tierOpts, cache.WithTTL(cfg.Cache.TTL.Std()))
	}
	if cfg.Cache.MaxEntries > 0 {
		tierOpts = append(tierOpts, cache.WithMaxEntries(cfg.Cache.MaxEntries))
	}
	tier := cache.NewMemoryTier(tierOpts...)

	reader := cache.NewReader(store, tier, cache.WithLogger(logger))

	matcher := lineage.Matcher(lineage.NewHeuristicMatcher())
	if !cfg.Lineage.FlatFileMatch {
		matcher = lineage.NewDisabledMatcher()
	}

	builder := lineage.NewBuilder(reader,
		lineage.WithMatcher(matcher),
		lineage.WithWorkerCount(cfg.Lineage.Workers),
		lineage.WithBuilderLogger(logger),
	)

	var svcOpts []lineage.ServiceOption
	if cfg.Lineage.TTL > 0 {
		svcOpts = append(svcOpts, lineage.WithTTL(cfg.Lineage.TTL.Std()))
	}
	svcOpts = append(svcOpts, lineage.WithServiceLogger(logger))
	svc := lineage.NewService(builder, store, svcOpts...)

	return &app{
		cfg:     cfg,
		log:     log,
		logger:  logger,
		store:   store,
		tier:    tier,
		reader:  reader,
		lineage: svc,
	}, nil
}

// Close releases the durable store, drops the memory tier, and flushes
// the log file.
func (a *app) Close() error {
	a.tier.Clear()
	err := a.store.Close()
	if cerr := a.log.Close(); err == nil {
		err = cerr
	}
	return err
}

func openStore(ctx context.Context, cfg config.PortalConfig, logger *slog.Logger) (storage.ObjectStore, error) {
	switch cfg.Store.Backend {
	case config.BackendGCS:
		return gcs.NewStore(ctx, cfg.Store.Bucket, cfg.Store.Prefix, cfg.Store.Credentials)
	case config.BackendBadger:
		bcfg := badgerstore.DefaultConfig(cfg.Store.Path)
		bcfg.Logger = logger
		return badgerstore.Open(bcfg)
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}
