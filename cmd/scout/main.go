package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"stock-scout/internal/logger"
	"stock-scout/internal/store"
	"stock-scout/internal/trace"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	analyze := flag.String("analyze", "", "comma-separated symbols to analyze at startup")
	top := flag.Int("top", 0, "override number of watchlist symbols per scan")
	threshold := flag.Int("threshold", 0, "override rating threshold for persisting recommendations")
	logPath := flag.String("log", "", "append logs to this file instead of stderr")
	flag.Parse()

	if err := initializeSystem(*logPath); err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := store.LoadConfig(*configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		os.Exit(1)
	}
	if *top > 0 {
		cfg.Scan.TopN = *top
	}
	if *threshold > 0 {
		cfg.RatingThreshold = *threshold
	}

	sys, err := buildSystem(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to build pipeline", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	run := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}
	run(sys.analysis.Run)
	run(sys.consult.Run)
	run(sys.dispatcher.Run)
	run(sys.listener.Run)

	logger.Info(ctx, "Scout started",
		"watchlist", len(cfg.Watchlist),
		"rating_threshold", cfg.RatingThreshold,
		"llm_provider", cfg.LLM.Provider)

	if *analyze != "" {
		sys.listener.EnqueueStartup(ctx, strings.Split(*analyze, ","))
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info(ctx, "Shutting down...")

	cancel()
	sys.bus.Close()
	wg.Wait()

	if err := sys.store.Close(); err != nil {
		logger.ErrorWithErr(context.Background(), "Store close failed", err)
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = trace.Shutdown(shutdownCtx)
}
