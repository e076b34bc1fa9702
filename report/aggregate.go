// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package report folds per-client result records into the final
// benchmark summary. Aggregation runs once, after every client has
// terminated, so the histograms need no synchronization.
package report

import (
	"log/slog"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"github.com/projectscylla/wsbench/client"
	"github.com/projectscylla/wsbench/protocol"
)

const histogramSigFigs = 3

// Summary is the aggregate of one benchmark run.
type Summary struct {
	SubscribeSuccess int64
	SubscribeFailed  int64
	ConnectionErrors int64
	FilterUpdates    int64
	TotalMessages    int64

	Subscribe    *hdrhistogram.Histogram
	FilterUpdate *hdrhistogram.Histogram
	E2E          *hdrhistogram.Histogram
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, protocol.MaxLatencyMs, histogramSigFigs)
}

// Aggregate folds result records into three latency histograms and
// the run counters. Classification per record: a connection error
// wins; an acknowledged subscription counts as success; connected but
// never acknowledged counts as failed; a record with neither flag is
// tallied as a connection error.
func Aggregate(results []client.Result) *Summary {
	s := &Summary{
		Subscribe:    newHistogram(),
		FilterUpdate: newHistogram(),
		E2E:          newHistogram(),
	}

	for _, r := range results {
		s.TotalMessages += r.MessagesReceived

		switch {
		case r.ConnectionError:
			s.ConnectionErrors++
		case r.SubscribeSuccess:
			s.SubscribeSuccess++
			if r.SubscribeLatencyMs != nil {
				_ = s.Subscribe.RecordValue(*r.SubscribeLatencyMs)
			}
		case r.Connected:
			s.SubscribeFailed++
		default:
			s.ConnectionErrors++
		}

		for _, lat := range r.FilterUpdateLatencies {
			_ = s.FilterUpdate.RecordValue(lat)
			s.FilterUpdates++
		}
		for _, lat := range r.E2ELatencies {
			_ = s.E2E.RecordValue(lat)
		}
	}

	return s
}

// Log renders the summary through the structured logger.
func (s *Summary) Log(logger *slog.Logger) {
	logger.Info("benchmark_summary",
		"subscribe_success", s.SubscribeSuccess,
		"subscribe_failed", s.SubscribeFailed,
		"connection_errors", s.ConnectionErrors,
		"filter_updates", s.FilterUpdates,
		"messages_received", s.TotalMessages)

	logHistogram(logger, "subscribe_latency_ms", s.Subscribe)
	logHistogram(logger, "filter_update_latency_ms", s.FilterUpdate)
	logHistogram(logger, "e2e_latency_ms", s.E2E)
}

func logHistogram(logger *slog.Logger, name string, h *hdrhistogram.Histogram) {
	if h.TotalCount() == 0 {
		logger.Info(name, "samples", 0, "note", "no data")
		return
	}

	logger.Info(name,
		"min", h.Min(),
		"mean", h.Mean(),
		"p50", h.ValueAtQuantile(50),
		"p95", h.ValueAtQuantile(95),
		"p99", h.ValueAtQuantile(99),
		"max", h.Max(),
		"samples", h.TotalCount())
}
