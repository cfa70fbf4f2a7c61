package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"priceArena/config"
	"priceArena/internal/adapters/binanceclient"
	"priceArena/internal/adapters/logger"
	"priceArena/internal/utils"
)

// Fetches historical per-second price ticks for a symbol and writes them to a
// CSV, useful for inspecting what a round's backfill would have stored.
func main() {
	symbol := flag.String("symbol", "BTCUSDT", "symbol to fetch")
	minutes := flag.Int("minutes", 10, "how far back to fetch")
	out := flag.String("out", "", "output file (default data/<symbol>_<range>.csv)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Price Source (Binance Adapter)
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

	end := time.Now().UTC()
	start := end.Add(-time.Duration(*minutes) * time.Minute)

	fmt.Printf("Fetching ticks for %s from %s to %s...\n", *symbol, start.Format(time.RFC3339), end.Format(time.RFC3339))
	ticks, err := binanceClient.GetHistoricalTicks(context.Background(), *symbol, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		appLogger.Error(context.Background(), err, "Error fetching ticks")
		log.Fatalf("Error fetching ticks: %v", err)
	}
	appLogger.Info(context.Background(), "Fetched ticks", map[string]interface{}{"count": len(ticks)})

	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("data/%s_%s_to_%s.csv", *symbol, start.Format("20060102T150405"), end.Format("20060102T150405"))
	}
	if err := utils.WriteTicksToCSV(ticks, *symbol, filename); err != nil {
		appLogger.Error(context.Background(), err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(context.Background(), "Saved to", map[string]interface{}{"filename": filename})
}
