package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"priceArena/config"
	"priceArena/internal/adapters/binanceclient"
	"priceArena/internal/adapters/logger"
	"priceArena/internal/adapters/sqlite"
	"priceArena/internal/app"
	"priceArena/internal/domain"
	"priceArena/internal/hub"
	"priceArena/internal/pricehistory"
	"priceArena/internal/round"
	"priceArena/internal/scoring"
	"priceArena/internal/server"
)

// defaultSymbols seeds the catalog on first run. Rounds are only driven for
// rows with enabled=1, which operators can toggle directly in the database.
func defaultSymbols(cfg *config.Config) []*domain.Symbol {
	duration := int(cfg.RoundDuration.Seconds())
	return []*domain.Symbol{
		{Symbol: "BTCUSDT", DisplayName: "Bitcoin", Category: "crypto", RoundDuration: duration, DrawThreshold: cfg.DrawThreshold, Enabled: true},
		{Symbol: "ETHUSDT", DisplayName: "Ethereum", Category: "crypto", RoundDuration: duration, DrawThreshold: cfg.DrawThreshold, Enabled: true},
		{Symbol: "SOLUSDT", DisplayName: "Solana", Category: "crypto", RoundDuration: duration, DrawThreshold: cfg.DrawThreshold, Enabled: false},
	}
}

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath:       cfg.DBPath,
		Logger:       appLogger,
		InitialScore: cfg.InitialScore,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	if err := repo.SeedSymbols(context.Background(), defaultSymbols(cfg)); err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to seed symbol catalog")
		log.Fatalf("FATAL: Failed to seed symbol catalog: %v", err)
	}
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Price Source (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:            cfg.APIKey,
		SecretKey:         cfg.SecretKey,
		UseTestnet:        cfg.IsTestnet,
		Logger:            appLogger,
		RequestsPerSecond: cfg.RequestsPerSecond,
		RetryMin:          cfg.RetryMinDelay,
		RetryMax:          cfg.RetryMaxDelay,
		MaxRetries:        cfg.MaxRetries,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 5. Initialize Scoring Engine
	engine, err := scoring.NewEngine(scoring.Config{
		WinScore:      cfg.WinScore,
		LoseScore:     cfg.LoseScore,
		DrawScore:     cfg.DrawScore,
		DecayK:        cfg.DecayK,
		EarlyBonus:    cfg.EarlyBonus,
		LatePenalty:   cfg.LatePenalty,
		Multipliers:   scoring.DefaultConfig().Multipliers,
		StreakCap:     scoring.DefaultConfig().StreakCap,
		MaxMultiplier: scoring.DefaultConfig().MaxMultiplier,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize scoring engine")
		log.Fatalf("FATAL: Failed to initialize scoring engine: %v", err)
	}

	// 6. Initialize Round Manager
	manager, err := round.NewManager(round.Config{
		DefaultRoundDuration: cfg.RoundDuration,
		DefaultDrawThreshold: cfg.DrawThreshold,
		BettingWindow:        cfg.BettingWindow,
		BettingCutoff:        cfg.BettingCutoff,
		StreakLookback:       cfg.StreakLookback,
		SkipLookback:         cfg.SkipLookback,
		SkipGrace:            cfg.SkipGrace,
	}, appLogger, repo, repo, repo, repo, binanceClient, engine)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize round manager")
		log.Fatalf("FATAL: Failed to initialize round manager: %v", err)
	}

	// 7. Initialize Price History
	history, err := pricehistory.New(repo, binanceClient, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize price history")
		log.Fatalf("FATAL: Failed to initialize price history: %v", err)
	}

	// 8. Initialize Broadcast Hub
	events, err := hub.NewHub(appLogger, cfg.HubFanout)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize broadcast hub")
		log.Fatalf("FATAL: Failed to initialize broadcast hub: %v", err)
	}

	// 9. Initialize Arena Service
	arena, err := app.NewService(app.Config{
		SchedulerInterval: cfg.SchedulerInterval,
		TickInterval:      cfg.TickInterval,
		BettingWindow:     cfg.BettingWindow,
		MinCoverage:       cfg.MinCoverage,
	}, appLogger, repo, repo, binanceClient, manager, history, engine, events)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize arena service")
		log.Fatalf("FATAL: Failed to initialize arena service: %v", err)
	}
	appLogger.Info(context.Background(), "Arena service initialized")

	// 10. Initialize Websocket Server
	srv, err := server.NewServer(server.Config{
		ListenAddr:    cfg.ListenAddr,
		DefaultSymbol: cfg.DefaultSymbol,
	}, appLogger, arena, manager, events, repo)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize websocket server")
		log.Fatalf("FATAL: Failed to initialize websocket server: %v", err)
	}

	// 11. Run until SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return arena.Start(ctx) })
	g.Go(func() error { return srv.Run(ctx) })

	if err := g.Wait(); err != nil {
		appLogger.Error(context.Background(), err, "Arena exited with error")
		log.Fatalf("FATAL: Arena exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
