package commands

import (
	"flag"
	"fmt"
	"time"

	"github.com/contriboss/rv/internal/cachestore"
)

// RunCacheDir implements `cache dir` (§6): prints the resolved cache
// root so scripts can inspect or clean it directly.
func RunCacheDir(args []string) error {
	g := Globals{}
	fs := flag.NewFlagSet("cache dir", flag.ContinueOnError)
	AddGlobalFlags(fs, &g)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := LoadConfig(g)
	if err != nil {
		return err
	}
	fmt.Println(cfg.CacheDir)
	return nil
}

// RunCachePrune implements `cache prune` (§6): removes cache entries
// older than --days (default 30) across every bucket.
func RunCachePrune(args []string) error {
	g := Globals{}
	fs := flag.NewFlagSet("cache prune", flag.ContinueOnError)
	AddGlobalFlags(fs, &g)
	days := fs.Int("days", 30, "Remove entries older than this many days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := LoadConfig(g)
	if err != nil {
		return err
	}

	removed, err := cachestore.Prune(cfg.CacheDir, []string{"gem-v0", "ruby-v0"}, time.Duration(*days)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("cache prune: %w", err)
	}
	if !g.Quiet {
		fmt.Printf("removed %d stale cache entries\n", removed)
	}
	return nil
}
