// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package runner drives the four benchmark phases: ramp-up at a
// linear spawn rate, optional warm-up, a measured hold, and a
// ramp-down that broadcasts shutdown and collects every client's
// result record.
package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/projectscylla/wsbench/client"
	"github.com/projectscylla/wsbench/config"
	"github.com/projectscylla/wsbench/tokens"
)

const (
	spawnPoll    = 50 * time.Millisecond
	idlePoll     = 500 * time.Millisecond
	progressTick = 5 * time.Second
	joinTimeout  = 10 * time.Second
)

// Runner owns the phase schedule for one benchmark run.
type Runner struct {
	cfg    *config.Config
	pool   *tokens.Pool
	stats  *client.LiveStats
	logger *slog.Logger
}

// New creates a runner.
func New(cfg *config.Config, pool *tokens.Pool, stats *client.LiveStats, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		pool:   pool,
		stats:  stats,
		logger: logger,
	}
}

// Run executes the four phases and returns one result per spawned
// client. Cancelling ctx skips whatever remains of the timed phases
// and proceeds straight to ramp-down, so results are still collected.
func (r *Runner) Run(ctx context.Context) []client.Result {
	shutdown := make(chan struct{})
	resultChs := make([]chan client.Result, 0, r.cfg.NumClients)

	r.logger.Info("benchmark_starting",
		"target_clients", r.cfg.NumClients,
		"first_id", r.cfg.ClientIDOffset,
		"last_id", r.cfg.ClientIDOffset+r.cfg.NumClients-1)

	// Phase 1: ramp up to the target client count at a linear rate.
	r.logger.Info("ramp_up_starting",
		"clients", r.cfg.NumClients,
		"duration_s", r.cfg.RampDuration)

	start := time.Now()
	rate := float64(r.cfg.NumClients) / r.cfg.RampTime().Seconds()
	spawned := 0
	lastLog := time.Now()

	for spawned < r.cfg.NumClients && ctx.Err() == nil {
		target := int(rate * time.Since(start).Seconds())
		if target > r.cfg.NumClients {
			target = r.cfg.NumClients
		}

		for spawned < target {
			id := r.cfg.ClientIDOffset + spawned
			ch := make(chan client.Result, 1)
			resultChs = append(resultChs, ch)

			cl := client.New(id, r.cfg, r.pool, r.stats, r.logger)
			go func() {
				ch <- cl.Run(shutdown)
			}()
			spawned++
		}

		sleepCtx(ctx, spawnPoll)

		if time.Since(lastLog) >= progressTick {
			r.logger.Info("ramp_up_progress",
				"spawned", spawned,
				"active", r.stats.ActiveConnections.Load(),
				"messages", r.stats.MessagesReceived.Load())
			lastLog = time.Now()
		}
	}

	if remaining := r.cfg.RampTime() - time.Since(start); remaining > 0 {
		sleepCtx(ctx, remaining)
	}

	r.logger.Info("ramp_up_complete",
		"spawned", spawned,
		"active", r.stats.ActiveConnections.Load())

	// Phase 2: warm-up. The gate stays down; clients count deliveries
	// but record no samples, so ramp-induced queuing cannot skew the
	// distributions.
	if r.cfg.WarmupDuration > 0 {
		r.logger.Info("warmup_starting", "duration_s", r.cfg.WarmupDuration)
		r.idle(ctx, r.cfg.WarmupTime(), func() {
			r.logger.Info("warmup_progress",
				"active", r.stats.ActiveConnections.Load(),
				"messages", r.stats.MessagesReceived.Load())
		})
		r.logger.Info("warmup_complete")
	}

	// Phase 3: hold. The gate goes up exactly once, here, and never
	// back down.
	r.stats.MarkWarmupComplete()
	r.logger.Info("hold_starting", "duration_s", r.cfg.HoldDuration)
	r.idle(ctx, r.cfg.HoldTime(), func() {
		r.logger.Info("hold_progress",
			"active", r.stats.ActiveConnections.Load(),
			"subscribed", r.stats.SubscribeSuccess.Load(),
			"errors", r.stats.ConnectionErrors.Load(),
			"messages", r.stats.MessagesReceived.Load())
	})

	// Phase 4: ramp down. Broadcast shutdown and join every client
	// with a per-task timeout; a task that does not yield in time
	// contributes an empty record so the aggregator sees exactly one
	// result per spawned client.
	r.logger.Info("ramp_down_starting", "duration_s", r.cfg.RampDownDuration)
	close(shutdown)

	results := make([]client.Result, 0, len(resultChs))
	for _, ch := range resultChs {
		select {
		case res := <-ch:
			results = append(results, res)
		case <-time.After(joinTimeout):
			r.logger.Warn("client_join_timeout")
			results = append(results, client.NewResult())
		}
	}

	r.logger.Info("ramp_down_complete",
		"results", len(results),
		"active", r.stats.ActiveConnections.Load())

	return results
}

// idle polls for the duration of a passive phase, emitting a progress
// line every progressTick.
func (r *Runner) idle(ctx context.Context, d time.Duration, progress func()) {
	start := time.Now()
	lastLog := time.Now()

	for time.Since(start) < d && ctx.Err() == nil {
		sleepCtx(ctx, idlePoll)

		if time.Since(lastLog) >= progressTick {
			progress()
			lastLog = time.Now()
		}
	}
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
