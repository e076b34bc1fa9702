// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

// Result is the per-client record of everything a connection measured.
// Exactly one client goroutine writes it, with no synchronization, and
// it is handed to the aggregator by value after the client terminates.
type Result struct {
	// SubscribeLatencyMs is set if and only if the initial
	// subscription was acknowledged.
	SubscribeLatencyMs *int64

	// FilterUpdateLatencies holds one sample per acknowledged filter
	// update issued while the warm-up gate was up.
	FilterUpdateLatencies []int64

	// E2ELatencies holds end-to-end delivery samples recorded while
	// the warm-up gate was up, clamped to [0, 60000) ms.
	E2ELatencies []int64

	// MessagesReceived counts channel deliveries observed after
	// warm-up; MessagesDuringWarmup counts the ones before.
	MessagesReceived     int64
	MessagesDuringWarmup int64

	Connected        bool
	SubscribeSuccess bool
	ConnectionError  bool
}

// NewResult returns an empty record with sample capacity growth hints
// pre-reserved.
func NewResult() Result {
	return Result{
		FilterUpdateLatencies: make([]int64, 0, 64),
		E2ELatencies:          make([]int64, 0, 10000),
	}
}
