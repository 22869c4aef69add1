package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/voxelforge/mobai/internal/config"
	"github.com/voxelforge/mobai/internal/mathx"
	"github.com/voxelforge/mobai/internal/nav"
	"github.com/voxelforge/mobai/internal/persist"
	"github.com/voxelforge/mobai/internal/world"
)

// navdump builds a navigation grid from the configured demo world
// and writes it as a versioned snapshot, or inspects an existing
// snapshot file.
func main() {
	var (
		cfgPath = flag.String("config", "config/aisim.yaml", "engine config path")
		out     = flag.String("out", "", "write grid snapshot to this file")
		in      = flag.String("in", "", "inspect an existing snapshot file")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(*cfgPath, *out, *in); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfgPath, out, in string) error {
	if in != "" {
		return inspect(in)
	}

	cfg, err := config.LoadEngine(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	w := world.NewBlockWorld(0)
	origin := mathx.V3(cfg.Grid.OriginX, cfg.Grid.OriginY, cfg.Grid.OriginZ)
	grid := nav.NewGrid(origin, cfg.Grid.CellSize,
		int32(cfg.Grid.Width), int32(cfg.Grid.Height), int32(cfg.Grid.Depth))
	grid.RebuildFromWorld(w, int32(cfg.BodyHeightCells))

	rec := persist.RecordOfGrid(grid)
	printRecord(rec)

	if out == "" {
		return nil
	}
	data, err := persist.EncodeGrid(rec)
	if err != nil {
		return fmt.Errorf("encoding grid: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	slog.Info("snapshot written", "path", out, "bytes", len(data))
	return nil
}

func inspect(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	rec, err := persist.DecodeGrid(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	printRecord(rec)
	return nil
}

func printRecord(rec persist.GridRecord) {
	walkable := 0
	for _, w := range rec.Walkable {
		if w {
			walkable++
		}
	}
	fmt.Printf("origin:    (%.1f, %.1f, %.1f)\n", rec.Origin.X, rec.Origin.Y, rec.Origin.Z)
	fmt.Printf("cell size: %.2f\n", rec.CellSize)
	fmt.Printf("dims:      %d x %d x %d (%d cells)\n", rec.W, rec.H, rec.D, len(rec.Walkable))
	fmt.Printf("version:   %d\n", rec.Version)
	fmt.Printf("walkable:  %d (%.1f%%)\n", walkable, 100*float64(walkable)/float64(max(len(rec.Walkable), 1)))
}
