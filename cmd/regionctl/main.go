// Command regionctl is a small operator CLI over a region store directory:
// stats, compact and the ambient opened-store catalog (SPEC_FULL.md §6.1).
// Grounded on the teacher's cmd/cli/main.go flag-based dispatch.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/voxlabs/regiondb/internal/catalog"
	"github.com/voxlabs/regiondb/internal/region"
)

func main() {
	var (
		cmd = flag.String("cmd", "", "command to run: stats | compact | catalog")
		dir = flag.String("dir", "", "store directory")
	)
	flag.Parse()

	if *cmd == "" {
		log.Fatalf("error: -cmd is required (stats | compact | catalog)")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	switch *cmd {
	case "stats":
		runStats(*dir, logger)
	case "compact":
		runCompact(*dir, logger)
	case "catalog":
		runCatalog(*dir, logger)
	default:
		log.Fatalf("error: unknown -cmd %q", *cmd)
	}
}

func openStore(dir string, logger *slog.Logger) *region.Store {
	if dir == "" {
		log.Fatalf("error: -dir is required")
	}
	store, err := region.Open(dir, region.Options{Logger: logger})
	if err != nil {
		log.Fatalf("failed to open store at %s: %v", dir, err)
	}
	return store
}

func runStats(dir string, logger *slog.Logger) {
	store := openStore(dir, logger)
	defer store.Close()

	stats := store.Stats()
	fmt.Printf("regions:       %d\n", stats.RegionCount)
	fmt.Printf("placed bytes:  %d\n", stats.PlacedBytes)
	fmt.Printf("live holes:    %d\n", stats.LiveHoleBytes)
	fmt.Printf("pending holes: %d\n", stats.PendingHoleBytes)
	fmt.Printf("tail:          %d\n", stats.Tail)
	fmt.Printf("file size:     %d\n", stats.FileSize)

	recordCatalogEntry(dir, stats)
}

func runCompact(dir string, logger *slog.Logger) {
	store := openStore(dir, logger)
	defer store.Close()

	if err := store.Compact(context.Background()); err != nil {
		log.Fatalf("compact failed: %v", err)
	}
	fmt.Println("compact complete")

	recordCatalogEntry(dir, store.Stats())
}

func runCatalog(dir string, logger *slog.Logger) {
	path := catalogPath()
	c, err := catalog.Open(path)
	if err != nil {
		log.Fatalf("failed to open catalog: %v", err)
	}
	defer c.Close()

	if dir != "" {
		store := openStore(dir, logger)
		stats := store.Stats()
		store.Close()
		abs, _ := filepath.Abs(dir)
		if err := c.Record(catalog.Entry{Path: abs, RegionCount: stats.RegionCount, FileSize: stats.FileSize}, time.Now()); err != nil {
			log.Fatalf("failed to record catalog entry: %v", err)
		}
	}

	entries, err := c.List()
	if err != nil {
		log.Fatalf("failed to list catalog: %v", err)
	}
	for _, e := range entries {
		fmt.Printf("%s\tregions=%d\tsize=%d\tlast_opened=%s\n", e.Path, e.RegionCount, e.FileSize, e.LastOpened.Format(time.RFC3339))
	}
}

func recordCatalogEntry(dir string, stats region.StoreStats) {
	path := catalogPath()
	c, err := catalog.Open(path)
	if err != nil {
		return
	}
	defer c.Close()
	abs, _ := filepath.Abs(dir)
	_ = c.Record(catalog.Entry{Path: abs, RegionCount: stats.RegionCount, FileSize: stats.FileSize}, time.Now())
}

func catalogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dir := filepath.Join(home, ".regionctl")
	_ = os.MkdirAll(dir, 0o755)
	return filepath.Join(dir, "catalog.db")
}
