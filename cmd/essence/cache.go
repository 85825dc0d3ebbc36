package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srg/essence/internal/remote"
	"github.com/srg/essence/internal/storage"
)

// cacheCmd groups the handle-cache maintenance commands
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the cached notification handles",
	Long: `The daemon caches each remote's notification handle pairs on disk so
reconnects can subscribe before service discovery finishes. These commands
show and clear those cached records.`,
}

var cacheShowCmd = &cobra.Command{
	Use:   "show [address]",
	Short: "Show cached handle pairs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheShow,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear <address>",
	Short: "Remove a device's cached handle record",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.PersistentFlags().String("state-dir", "", "Directory holding the handle cache (overrides config)")
}

func openCache(cmd *cobra.Command) (*storage.FileStore, *remote.HandleCache, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, "", err
	}
	logger, err := configureLogger(cmd, "warn")
	if err != nil {
		return nil, nil, "", err
	}
	store, err := storage.NewFileStore(cfg.StateDir, logger)
	if err != nil {
		return nil, nil, "", err
	}
	return store, remote.NewHandleCache(store, logger), cfg.StateDir, nil
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	_, cache, stateDir, err := openCache(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	var keys []string
	if len(args) > 0 {
		keys = []string{args[0]}
	} else {
		entries, err := os.ReadDir(stateDir)
		if err != nil {
			return fmt.Errorf("failed to read state directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
				continue
			}
			keys = append(keys, strings.TrimSuffix(e.Name(), ".bin"))
		}
	}

	if len(keys) == 0 {
		fmt.Println("No cached records")
		return nil
	}

	for _, key := range keys {
		pairs := cache.Load(key)
		if len(pairs) == 0 {
			fmt.Printf("%s: no usable record\n", key)
			continue
		}
		fmt.Printf("%s:\n", key)
		for _, p := range pairs {
			fmt.Printf("  input=0x%04x ccc=0x%04x\n", p.Input, p.CCC)
		}
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	store, _, stateDir, err := openCache(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if err := store.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to clear record for %s: %w", args[0], err)
	}
	fmt.Printf("Cleared cached record for %s from %s\n", args[0], stateDir)
	return nil
}
