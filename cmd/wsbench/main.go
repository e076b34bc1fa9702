// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/projectscylla/wsbench/client"
	"github.com/projectscylla/wsbench/config"
	"github.com/projectscylla/wsbench/report"
	"github.com/projectscylla/wsbench/runner"
	"github.com/projectscylla/wsbench/tokens"
)

func main() {
	// The config file, if any, seeds the flag defaults, so it has to
	// be located before the full flag set is parsed.
	configFile := configPath(os.Args[1:])

	cfg, err := config.Load(configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(); err != nil {
		slog.Error("Failed to read environment", "error", err)
		os.Exit(1)
	}

	flag.String("config", configFile, "Path to configuration file")
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup logging
	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	runID := uuid.New().String()
	logger := slog.New(handler).With("run_id", runID)
	slog.SetDefault(logger)

	logger.Info("Starting WebSocket benchmark",
		"host", cfg.Host,
		"port", cfg.Port,
		"app_key", cfg.AppKey,
		"channel", cfg.Channel,
		"scenario", cfg.Scenario,
		"num_clients", cfg.NumClients,
		"client_id_offset", cfg.ClientIDOffset,
		"ramp_duration_s", cfg.RampDuration,
		"warmup_duration_s", cfg.WarmupDuration,
		"hold_duration_s", cfg.HoldDuration,
		"ramp_down_duration_s", cfg.RampDownDuration)

	// Load the token pool; a missing file falls back to a synthetic
	// pool, an unreadable or malformed one is a configuration error.
	var pool *tokens.Pool
	if _, err := os.Stat(cfg.TokenFile); err == nil {
		pool, err = tokens.Load(cfg.TokenFile)
		if err != nil {
			logger.Error("Failed to load token file", "path", cfg.TokenFile, "error", err)
			os.Exit(1)
		}
		logger.Info("Loaded token addresses", "count", pool.Len())
	} else {
		logger.Warn("Token file not found, generating synthetic tokens", "path", cfg.TokenFile)
		pool = tokens.Synthesize(10000)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := client.NewLiveStats()
	results := runner.New(cfg, pool, stats, logger).Run(ctx)

	report.Aggregate(results).Log(logger)
	logger.Info("Benchmark complete")
}

// configPath pre-scans args for the -config flag.
func configPath(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := strings.TrimPrefix(args[i], "-")
		arg = strings.TrimPrefix(arg, "-")
		if arg == "config" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "config="); ok {
			return v
		}
	}
	return ""
}
