package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/worldsim/server/internal/config"
	"github.com/worldsim/server/internal/core/event"
	coresys "github.com/worldsim/server/internal/core/system"
	"github.com/worldsim/server/internal/data"
	"github.com/worldsim/server/internal/geom"
	"github.com/worldsim/server/internal/persist"
	"github.com/worldsim/server/internal/scripting"
	"github.com/worldsim/server/internal/system"
	"github.com/worldsim/server/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("WORLDSIM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting worldsim",
		zap.String("server", cfg.Server.Name),
		zap.Int("id", cfg.Server.ID))

	// 3. Connect to PostgreSQL and run migrations
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("database ready")

	snapshotRepo := persist.NewSnapshotRepo(db)

	// 4. Load data tables
	archetypes, err := data.LoadArchetypeTable("data/yaml/archetype_list.yaml")
	if err != nil {
		return fmt.Errorf("load archetype table: %w", err)
	}
	spawns, err := data.LoadSpawnTable("data/yaml/spawn_list.yaml", archetypes)
	if err != nil {
		return fmt.Errorf("load spawn table: %w", err)
	}
	log.Info("data tables loaded",
		zap.Int("archetypes", archetypes.Count()),
		zap.Int("spawns", spawns.Count()))

	// 5. Lua trigger scripts
	luaEngine, err := scripting.NewEngine("scripts", log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer luaEngine.Close()

	// 6. Build the world: registry, collision service, event bus
	reg := world.NewRegistry(cfg.World.MaxEntities)
	svc := world.NewService(reg, cfg.World.CellSize, cfg.World.FootprintWarnCells, log)
	svc.ClearWorld(vec(cfg.World.BoundsMins), vec(cfg.World.BoundsMaxs))

	bus := event.NewBus()
	event.Subscribe(bus, func(ev event.EntityDestroyed) {
		dctx, dcancel := context.WithTimeout(context.Background(), cfg.Simulation.SnapshotSaveTimeout)
		defer dcancel()
		if err := snapshotRepo.Delete(dctx, ev.EntityID); err != nil {
			log.Error("delete entity record failed", zap.Int32("entity", ev.EntityID), zap.Error(err))
		}
	})

	// 7. Restore the last snapshot, or spawn fresh from the YAML tables
	rows, err := snapshotRepo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	var populated int
	if len(rows) > 0 {
		populated = restoreEntities(svc, bus, archetypes, rows, log)
		log.Info("world restored", zap.Int("entities", populated))
	} else {
		populated = spawnEntities(svc, bus, archetypes, spawns, log)
		log.Info("world spawned", zap.Int("entities", populated))
	}

	// 8. Create systems and register with runner
	runner := coresys.NewRunner()
	movementSys := system.NewMovementSystem(svc, log)
	snapshotSys := system.NewSnapshotSystem(svc, snapshotRepo,
		cfg.Simulation.SnapshotInterval, cfg.Simulation.SnapshotSaveTimeout, log)
	runner.Register(movementSys)
	runner.Register(system.NewTouchSystem(svc, movementSys, luaEngine, bus, log))
	runner.Register(system.NewDiagnosticsSystem(svc, cfg.Simulation.DiagnosticsInterval, log))
	runner.Register(snapshotSys)
	runner.Register(system.NewCleanupSystem(svc, bus, log))

	// 9. Simulation loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Simulation.TickRate)
	defer ticker.Stop()

	log.Info("simulation loop started", zap.Duration("tick", cfg.Simulation.TickRate))

	for {
		select {
		case <-ticker.C:
			bus.SwapBuffers()
			bus.DispatchAll()
			runner.Tick(cfg.Simulation.TickRate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			snapshotSys.SaveNow()
			log.Info("simulation stopped")
			return nil
		}
	}
}

// spawnEntities populates a fresh world from the spawn table.
func spawnEntities(svc *world.Service, bus *event.Bus, archetypes *data.ArchetypeTable, spawns *data.SpawnTable, log *zap.Logger) int {
	count := 0
	for _, sp := range spawns.All() {
		arch := archetypes.Get(sp.Archetype)
		id, err := createFromArchetype(svc, arch, vec(sp.Origin), vec(sp.Velocity))
		if err != nil {
			log.Error("spawn failed", zap.String("archetype", sp.Archetype), zap.Error(err))
			continue
		}
		event.Emit(bus, event.EntitySpawned{
			EntityID:  id,
			Archetype: sp.Archetype,
			Origin:    vec(sp.Origin),
		})
		count++
	}
	return count
}

// restoreEntities rebuilds the world from persisted rows. The grid is not
// stored; every entity is relinked here.
func restoreEntities(svc *world.Service, bus *event.Bus, archetypes *data.ArchetypeTable, rows []persist.EntityRow, log *zap.Logger) int {
	count := 0
	for _, row := range rows {
		arch := archetypes.Get(row.Archetype)
		if arch == nil {
			log.Warn("persisted entity has unknown archetype, skipping",
				zap.Int32("entity", row.ID), zap.String("archetype", row.Archetype))
			continue
		}
		origin := geom.Vec3{X: row.OriginX, Y: row.OriginY, Z: row.OriginZ}
		velocity := geom.Vec3{X: row.VelX, Y: row.VelY, Z: row.VelZ}
		id, err := createFromArchetype(svc, arch, origin, velocity)
		if err != nil {
			log.Error("restore failed", zap.Int32("row", row.ID), zap.Error(err))
			continue
		}
		event.Emit(bus, event.EntitySpawned{
			EntityID:  id,
			Archetype: row.Archetype,
			Origin:    origin,
		})
		count++
	}
	return count
}

func createFromArchetype(svc *world.Service, arch *data.ArchetypeEntry, origin, velocity geom.Vec3) (world.EntityID, error) {
	kind, err := arch.SolidKind()
	if err != nil {
		return world.InvalidID, err
	}
	reg := svc.Registry()
	id, err := reg.Create(vec(arch.Mins), vec(arch.Maxs), kind)
	if err != nil {
		return world.InvalidID, err
	}
	e := reg.Lookup(id)
	e.Archetype = arch.Name
	e.Velocity = velocity
	if err := reg.SetOrigin(id, origin); err != nil {
		return world.InvalidID, err
	}
	if err := svc.LinkEntity(id); err != nil {
		return world.InvalidID, err
	}
	return id, nil
}

func vec(v [3]float64) geom.Vec3 {
	return geom.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
