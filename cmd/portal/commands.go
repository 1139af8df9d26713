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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/assets"
	"github.com/yeahthisisrob/quicksight-portal-sub000/services/portal/cache"
)

// --- Global Command Variables ---
var (
	configPath string

	listType     string
	listSearch   string
	listSortBy   string
	listOrder    string
	listPage     int
	listPageSize int
	listStatus   string

	rootCmd = &cobra.Command{
		Use:   "portal",
		Short: "Serve lineage and listings over the QuickSight asset cache",
		Long: `Portal maintains a derived dependency graph over a fleet of BI
assets (dashboards, analyses, datasets, datasources) and answers
what-depends-on-what queries off a tiered metadata cache.`,
	}

	// --- Lineage ---
	lineageCmd = &cobra.Command{
		Use:   "lineage",
		Short: "Query and rebuild the asset lineage graph",
	}
	lineageRebuildCmd = &cobra.Command{
		Use:   "rebuild",
		Short: "Force a full lineage rebuild and persist the result",
		RunE:  runLineageRebuild,
	}
	lineageShowCmd = &cobra.Command{
		Use:   "show [asset-id]",
		Short: "Show the lineage entry for one asset",
		Args:  cobra.ExactArgs(1),
		RunE:  runLineageShow,
	}

	// --- Assets ---
	assetsCmd = &cobra.Command{
		Use:   "assets",
		Short: "Browse the cached asset collections",
	}
	assetsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List assets of one type with search, sort, and pagination",
		RunE:  runAssetsList,
	}

	// --- Cache ---
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect the cache tiers",
	}
	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show memory tier and lineage cache statistics",
		RunE:  runCacheStats,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.qsportal/portal.yaml)")

	assetsListCmd.Flags().StringVar(&listType, "type", "dashboard", "asset type to list")
	assetsListCmd.Flags().StringVar(&listSearch, "search", "", "free-text filter over name/id/description/arn")
	assetsListCmd.Flags().StringVar(&listSortBy, "sort-by", "", "sort field (name, id, status, createdAt, updatedAt)")
	assetsListCmd.Flags().StringVar(&listOrder, "order", "asc", "sort order (asc or desc)")
	assetsListCmd.Flags().IntVar(&listPage, "page", 1, "page number (1-based)")
	assetsListCmd.Flags().IntVar(&listPageSize, "page-size", cache.DefaultPageSize, "items per page")
	assetsListCmd.Flags().StringVar(&listStatus, "status", string(assets.FilterActive), "status filter (ACTIVE, ARCHIVED, ALL)")

	lineageCmd.AddCommand(lineageRebuildCmd, lineageShowCmd)
	assetsCmd.AddCommand(assetsListCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(lineageCmd, assetsCmd, cacheCmd)
}

func runLineageRebuild(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.lineage.RebuildLineage(cmd.Context())
	if err != nil {
		return fmt.Errorf("lineage rebuild failed: %w", err)
	}

	fmt.Printf("rebuilt lineage: %d assets, %d relationships (updated %s)\n",
		doc.AssetCount, doc.RelationshipCount, doc.LastUpdated.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func runLineageShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.lineage.GetAssetLineage(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(entry)
}

func runAssetsList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := assets.ParseType(listType)
	if err != nil {
		return err
	}

	page, err := a.reader.AssetsByType(cmd.Context(), t, cache.ListOptions{
		Search:    listSearch,
		SortBy:    listSortBy,
		SortOrder: listOrder,
		Page:      listPage,
		PageSize:  listPageSize,
		Filter:    assets.StatusFilter(listStatus),
	})
	if err != nil {
		return err
	}

	for _, item := range page.Items {
		fmt.Printf("%-40s %-24s %s\n", item.ID, item.Status, item.Name)
	}
	fmt.Printf("page %d of %d items (hasMore=%v)\n", page.Page, page.TotalItems, page.HasMore)
	return nil
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	tier := a.tier.Stats()
	fmt.Printf("memory tier: %d/%d entries, %d hits, %d misses, %d evictions (ttl %s)\n",
		tier.Entries, tier.MaxEntries, tier.Hits, tier.Misses, tier.Evictions, tier.TTL)

	info := a.lineage.Stats()
	if info.Cached {
		fmt.Printf("lineage: %d assets, %d relationships, built %s, expires %s\n",
			info.AssetCount, info.RelationshipCount,
			info.LastUpdated.Format("15:04:05"), info.ExpiresAt.Format("15:04:05"))
	} else {
		fmt.Println("lineage: not cached")
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
