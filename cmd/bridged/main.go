package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rgriola/bridge-sim/internal/config"
	"github.com/rgriola/bridge-sim/internal/core/ecs"
	"github.com/rgriola/bridge-sim/internal/core/event"
	coresys "github.com/rgriola/bridge-sim/internal/core/system"
	"github.com/rgriola/bridge-sim/internal/data"
	"github.com/rgriola/bridge-sim/internal/gen"
	gonet "github.com/rgriola/bridge-sim/internal/net"
	"github.com/rgriola/bridge-sim/internal/persist"
	"github.com/rgriola/bridge-sim/internal/scripting"
	"github.com/rgriola/bridge-sim/internal/system"
	"github.com/rgriola/bridge-sim/internal/weather"
	"github.com/rgriola/bridge-sim/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            bridge-sim  v0.1.0             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m       bot world simulation server         \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s\n\n", serverName)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printSkip(msg string) {
	fmt.Printf("  \033[90m-\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/bridged.toml"
	if p := os.Getenv("BRIDGED_CONFIG"); p != "" {
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

	printBanner(cfg.Server.Name)

	// 3. Connect to PostgreSQL and run migrations. An empty DSN runs the
	// sim without persistence: nothing saved, no posts, no polling.
	printSection("database")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var db *persist.DB
	var botRepo *persist.BotRepo
	var statsRepo *persist.StatsRepo
	var postRepo *persist.PostRepo
	var journalRepo *persist.JournalRepo
	if cfg.Database.DSN != "" {
		db, err = persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		if err := persist.RunMigrations(ctx, db.Pool); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")

		botRepo = persist.NewBotRepo(db)
		statsRepo = persist.NewStatsRepo(db)
		postRepo = persist.NewPostRepo(db)
		journalRepo = persist.NewJournalRepo(db)
	} else {
		printSkip("no DSN configured, running in-memory")
	}
	fmt.Println()

	// 4. Load data tables
	printSection("data")

	personalities, err := data.LoadPersonalityTable(filepath.Join(cfg.Data.Dir, "personality_list.yaml"))
	if err != nil {
		return fmt.Errorf("load personalities: %w", err)
	}
	printStat("personalities", personalities.Count())

	structureList, err := data.LoadStructureList(filepath.Join(cfg.Data.Dir, "structure_list.yaml"))
	if err != nil {
		return fmt.Errorf("load structures: %w", err)
	}
	printStat("structures", len(structureList))

	roster, err := data.LoadRoster(filepath.Join(cfg.Data.Dir, "bot_roster.yaml"))
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	printStat("roster bots", len(roster))

	// 5. Initialize Lua tuning engine
	luaEngine, err := scripting.NewEngine(cfg.Data.ScriptDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer luaEngine.Close()
	printOK("tuning scripts loaded")

	// 6. Create the world and populate it
	ecsWorld := ecs.NewWorld()
	state := world.NewState(ecsWorld, cfg.Simulation.Seed, cfg.Simulation.BoundsRadius)
	grid := world.NewGrid(cfg.Simulation.CellSize)
	ecsWorld.RegisterPurgeable(grid)
	bus := event.NewBus()

	for _, entry := range structureList {
		state.AddStructure(&world.Structure{
			Kind:     world.StructureKind(entry.Kind),
			Name:     entry.Name,
			X:        entry.X,
			Z:        entry.Z,
			Radius:   entry.Radius,
			Capacity: entry.Capacity,
			Blocking: entry.Blocking,
		})
	}

	agentCount, err := loadAgents(ctx, state, botRepo, statsRepo, roster, log)
	if err != nil {
		return fmt.Errorf("load agents: %w", err)
	}
	printStat("agents", agentCount)
	fmt.Println()

	// 7. Start the async collaborators: weather sampler, text generation
	// workers, store writer, post poller. Each owns its goroutine; results
	// flow back through channels drained in the input phase.
	runCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var writer *persist.Writer
	if db != nil {
		writer = persist.NewWriter(persist.Stores{
			Bots:    botRepo,
			Stats:   statsRepo,
			Journal: journalRepo,
			Posts:   postRepo,
		}, log)
	}

	var samples <-chan weather.Sample
	if cfg.Weather.BaseURL != "" {
		sampler := weather.NewSampler(cfg.Weather, log)
		samples = sampler.Samples()
		go sampler.Run(runCtx)
	}

	var dispatcher *gen.Dispatcher
	if cfg.Generation.BaseURL != "" {
		client := gen.NewClient(cfg.Generation, log)
		var store gen.PostStore
		if postRepo != nil {
			store = postRepo
		}
		dispatcher = gen.NewDispatcher(client, store, 2, 32, log)
	}

	var pollCh <-chan []persist.PostRow
	if postRepo != nil {
		poller := system.NewPoller(postRepo, cfg.Retention, log)
		if err := poller.Prime(ctx); err != nil {
			return fmt.Errorf("prime poller: %w", err)
		}
		pollCh = poller.Batches()
		go poller.Run(runCtx)
	}

	// 8. Create observer server
	netServer, err := gonet.NewServer(cfg.Network.BindAddress, cfg.Network.OutQueueSize, cfg.Network.WriteTimeout, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.Serve()

	// 9. Register systems with the runner
	sessions := gonet.NewSessionStore()
	inbox := &system.SpeechInbox{}

	envSys := system.NewEnvironmentSystem(state, grid, luaEngine, samples, cfg.Simulation, log)
	persistSys := system.NewPersistenceSystem(state, writer, botRepo, statsRepo, journalRepo, bus, cfg.Retention, cfg.Simulation, log)

	inputSys := system.NewInputSystem(netServer, sessions, bus, dispatcher, writer, pollCh, inbox, log)

	runner := coresys.NewRunner()
	runner.Register(inputSys)
	runner.Register(envSys)
	runner.Register(system.NewMetabolismSystem(state, envSys, cfg.Needs, personalities))
	runner.Register(system.NewBrainSystem(state, grid, envSys, luaEngine, personalities, dispatcher, writer, bus, inbox, cfg.Needs, cfg.Simulation, log))
	runner.Register(system.NewPhysicsSystem(state, grid, cfg.Simulation))
	runner.Register(system.NewBroadcastSystem(state, sessions, bus, cfg.Network, cfg.Simulation, cfg.Server.Name, log))
	runner.Register(persistSys)
	runner.Register(system.NewCleanupSystem(ecsWorld, writer, cfg.Retention, cfg.Simulation, log))

	// 10. Game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Simulation.TickRate)
	defer ticker.Stop()

	printSection("server ready")
	printReady(fmt.Sprintf("observers on ws://%s/ws", netServer.Addr().String()))
	printReady(fmt.Sprintf("game loop started (tick: %s, speed: %.1fx)", cfg.Simulation.TickRate, cfg.Simulation.SpeedMultiplier))
	fmt.Println()

	// Loop health is summarized every healthLogTicks; slowestTick resets
	// after each report so spikes stay visible.
	const healthLogTicks = 300
	var slowestTick time.Duration

	last := time.Now()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			elapsed := now.Sub(last)
			last = now
			// A stall (debugger, suspend, GC pause) advances the sim by at
			// most MaxCatchUp; lost time is dropped, not replayed.
			if elapsed > cfg.Simulation.MaxCatchUp {
				elapsed = cfg.Simulation.MaxCatchUp
			}
			dt := time.Duration(float64(elapsed) * cfg.Simulation.SpeedMultiplier)
			tickStart := time.Now()
			runner.Tick(dt)
			state.Tick++

			tickCost := time.Since(tickStart)
			if tickCost > slowestTick {
				slowestTick = tickCost
			}
			if state.Tick%healthLogTicks == 0 {
				log.Info("loop health",
					zap.Uint64("tick", state.Tick),
					zap.Int("agents", state.Agents.Len()),
					zap.Int("observers", inputSys.SessionCount()),
					zap.Duration("slowest_tick", slowestTick))
				slowestTick = 0
			}

		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			stopWorkers()
			if dispatcher != nil {
				dispatcher.Close()
			}
			// The writer drains its queue before SaveAll runs, so the final
			// synchronous save sees every id the writer assigned.
			if writer != nil {
				writer.Close()
			}
			saveCtx, saveCancel := context.WithTimeout(context.Background(), 15*time.Second)
			persistSys.SaveAll(saveCtx)
			saveCancel()
			netServer.Shutdown()
			log.Info("server stopped")
			return nil
		}
	}
}

// loadAgents populates the world from the database merged with the YAML
// roster: persisted bots resume where they were saved, roster entries not
// yet in the database are created, and roster entries that already exist
// are left alone (the saved row wins).
func loadAgents(ctx context.Context, state *world.State, botRepo *persist.BotRepo, statsRepo *persist.StatsRepo, roster []data.RosterEntry, log *zap.Logger) (int, error) {
	seen := make(map[string]bool)
	count := 0

	if botRepo != nil {
		rows, err := botRepo.LoadAll(ctx)
		if err != nil {
			return 0, err
		}
		for _, row := range rows {
			a := &world.Agent{
				ExtID:       row.ID,
				Name:        row.Name,
				Personality: row.Personality,
				X:           row.X,
				Z:           row.Z,
				// Occupancy, paths, and timers don't survive a restart;
				// everyone wakes up idle and re-decides from their needs.
				State: world.StateIdle,
				Needs: world.Needs{Water: row.Water, Food: row.Food, Sleep: row.Sleep, Energy: row.Energy},
			}
			if statsRepo != nil {
				st, err := statsRepo.Load(ctx, row.ID)
				if err != nil {
					log.Warn("stats load failed", zap.String("name", row.Name), zap.Error(err))
				} else {
					a.Stats = world.LifetimeStats{
						Drinks:        st.Drinks,
						Meals:         st.Meals,
						Rests:         st.Rests,
						Builds:        st.Builds,
						Socials:       st.Socials,
						Helps:         st.Helps,
						Reproductions: st.Reproductions,
						PostsMade:     st.PostsMade,
						CommentsMade:  st.CommentsMade,
						VotesCast:     st.VotesCast,
						DistanceMoved: st.DistanceMoved,
					}
				}
			}
			state.AddAgent(a)
			seen[row.Name] = true
			count++
		}
	}

	for _, entry := range roster {
		if seen[entry.Name] {
			continue
		}
		a := &world.Agent{
			Name:        entry.Name,
			Personality: entry.Personality,
			X:           entry.X,
			Z:           entry.Z,
			Needs:       world.Needs{Water: entry.Water, Food: entry.Food, Sleep: entry.Sleep, Energy: entry.Energy},
		}
		if botRepo != nil {
			row := persist.BotRow{
				Name:        a.Name,
				Personality: a.Personality,
				X:           a.X,
				Z:           a.Z,
				State:       string(world.StateIdle),
				Water:       a.Needs.Water,
				Food:        a.Needs.Food,
				Sleep:       a.Needs.Sleep,
				Energy:      a.Needs.Energy,
			}
			extID, err := botRepo.Create(ctx, &row)
			if err != nil {
				return 0, fmt.Errorf("create bot %s: %w", a.Name, err)
			}
			a.ExtID = extID
		}
		state.AddAgent(a)
		count++
	}
	return count, nil
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
