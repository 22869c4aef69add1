package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxelforge/mobai/internal/ai"
	"github.com/voxelforge/mobai/internal/config"
	"github.com/voxelforge/mobai/internal/debugview"
	"github.com/voxelforge/mobai/internal/mathx"
	"github.com/voxelforge/mobai/internal/nav"
	"github.com/voxelforge/mobai/internal/persist"
	"github.com/voxelforge/mobai/internal/world"
)

const ConfigPath = "config/aisim.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("MOBAI_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadEngine(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
	ai.EnableDebugLogging(logLevel == slog.LevelDebug)

	slog.Info("mob AI simulation starting",
		"log_level", cfg.LogLevel,
		"max_agents", cfg.MaxAgents,
		"tick_rate", cfg.TickRateHz)

	// Demo world: flat floor with a few obstacle walls.
	w := world.NewBlockWorld(0)
	buildDemoTerrain(w)

	entities := world.NewEntities()
	physics := world.NewKinematicPhysics()

	origin := mathx.V3(cfg.Grid.OriginX, cfg.Grid.OriginY, cfg.Grid.OriginZ)
	grid := nav.NewGrid(origin, cfg.Grid.CellSize,
		int32(cfg.Grid.Width), int32(cfg.Grid.Height), int32(cfg.Grid.Depth))
	grid.RebuildFromWorld(w, int32(cfg.BodyHeightCells))
	slog.Info("navigation grid built",
		"cells", cfg.Grid.Width*cfg.Grid.Height*cfg.Grid.Depth,
		"version", grid.Version())

	coordCfg := ai.Config{
		BaseMaxAgents:    cfg.MaxAgents,
		Workers:          cfg.Workers,
		AgentDecayWindow: time.Duration(cfg.AgentDecaySecs) * time.Second,
		BodyHeight:       int32(cfg.BodyHeightCells),
		Pathfinder: nav.Options{
			Workers:            cfg.Pathfinder.Workers,
			CacheSize:          cfg.Pathfinder.CacheSize,
			CacheTTL:           time.Duration(cfg.Pathfinder.CacheTTLSecs) * time.Second,
			ResultTTL:          time.Duration(cfg.Pathfinder.ResultTTLSecs) * time.Second,
			FlowFieldThreshold: cfg.Pathfinder.FlowFieldThreshold,
			MaxSyncSearches:    int64(cfg.Pathfinder.MaxSyncSearches),
		},
	}
	coord, err := ai.New(coordCfg, w, entities, physics, grid)
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	defer coord.Shutdown()

	if err := coord.RegisterAgentType("wanderer", ai.NewWandererFactory(12)); err != nil {
		return fmt.Errorf("registering wanderer: %w", err)
	}
	if err := coord.RegisterAgentType("hunter", ai.NewHunterFactory(20)); err != nil {
		return fmt.Errorf("registering hunter: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Debug stream.
	if cfg.Debug.Enabled {
		buf := debugview.NewBuffer()
		srv := debugview.NewServer(buf)
		coord.SetDebugSink(buf, srv)
		coord.SetMode(ai.ModeDebug)

		addr := fmt.Sprintf("%s:%d", cfg.Debug.BindAddress, cfg.Debug.Port)
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/stream", srv.Handler())
		httpSrv := &http.Server{Addr: addr, Handler: mux}
		g.Go(func() error {
			slog.Info("debug stream listening", "addr", addr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("debug server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutCancel()
			return httpSrv.Shutdown(shutCtx)
		})
	}

	// Optional Postgres persistence.
	var repo *persist.Repository
	if cfg.Database.Enabled {
		if err := persist.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		repo, err = persist.NewRepository(ctx, cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("connecting repository: %w", err)
		}
		defer repo.Close()
		slog.Info("persistence enabled")
	}

	spawnDemoAgents(coord, physics)
	if err := coord.Start(); err != nil {
		return err
	}

	// Fixed-rate tick loop.
	g.Go(func() error {
		interval := time.Second / time.Duration(cfg.TickRateHz)
		dt := interval.Seconds()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		report := time.NewTicker(10 * time.Second)
		defer report.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				coord.Tick(dt)
				physics.Step(dt)
			case <-report.C:
				m := coord.Metrics()
				pf := coord.Pathfinder().Stats()
				slog.Info("simulation status",
					"agents", m.LiveAgents,
					"ticks", m.Ticks,
					"paths", pf.Completed,
					"cacheHits", pf.CacheHits,
					"agentErrors", m.AgentErrors)
			}
		}
	})

	err = g.Wait()

	if repo != nil {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer saveCancel()
		saveAgents(saveCtx, coord, repo)
		if gerr := repo.SaveGrid(saveCtx, "demo", persist.RecordOfGrid(grid)); gerr != nil {
			slog.Warn("grid snapshot failed", "error", gerr)
		}
	}
	return err
}

// buildDemoTerrain raises a few walls so paths have something to
// route around.
func buildDemoTerrain(w *world.BlockWorld) {
	for z := int32(20); z <= 60; z++ {
		w.FillSolid(world.Region{
			Min: world.BlockPos{X: 40, Y: 0, Z: z},
			Max: world.BlockPos{X: 40, Y: 3, Z: z},
		})
	}
	for x := int32(60); x <= 90; x++ {
		w.FillSolid(world.Region{
			Min: world.BlockPos{X: x, Y: 0, Z: 70},
			Max: world.BlockPos{X: x, Y: 3, Z: 70},
		})
	}
}

func spawnDemoAgents(coord *ai.Coordinator, physics *world.KinematicPhysics) {
	spawned := 0
	for i := 0; i < 40; i++ {
		pos := mathx.V3(float64(10+(i*3)%100), 0, float64(10+(i*7)%100))
		typeName := "wanderer"
		if i%5 == 0 {
			typeName = "hunter"
		}
		if id := coord.SpawnAgent(typeName, pos, mathx.QuatIdentity()); id != 0 {
			physics.Place(id, pos)
			spawned++
		}
	}
	slog.Info("demo agents spawned", "count", spawned)
}

func saveAgents(ctx context.Context, coord *ai.Coordinator, repo *persist.Repository) {
	saved := 0
	for _, a := range coord.GetAgentsInRadius(mathx.Vec3{}, 1e9) {
		if err := repo.SaveAgent(ctx, persist.RecordOf(a)); err != nil {
			slog.Warn("agent snapshot failed", "agent", a.ID, "error", err)
			continue
		}
		saved++
	}
	slog.Info("agent snapshots saved", "count", saved)
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
