// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import "sync/atomic"

// LiveStats is the process-wide counter block consulted by progress
// printers. The counters exist for observation only; no happens-before
// relationship is implied between them and any per-client data.
type LiveStats struct {
	ActiveConnections atomic.Int64
	MessagesReceived  atomic.Int64
	SubscribeSuccess  atomic.Int64
	ConnectionErrors  atomic.Int64

	warmupComplete atomic.Bool
}

// NewLiveStats creates a zeroed counter block with the warm-up gate down.
func NewLiveStats() *LiveStats {
	return &LiveStats{}
}

// WarmupComplete reports whether the warm-up gate has been raised.
// Read on every data delivery by every client.
func (s *LiveStats) WarmupComplete() bool {
	return s.warmupComplete.Load()
}

// MarkWarmupComplete raises the warm-up gate. Called exactly once, by
// the runner, at hold-phase entry. The gate never goes back down.
func (s *LiveStats) MarkWarmupComplete() {
	s.warmupComplete.Store(true)
}
