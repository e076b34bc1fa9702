// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectscylla/wsbench/client"
	"github.com/projectscylla/wsbench/config"
	"github.com/projectscylla/wsbench/testutil"
	"github.com/projectscylla/wsbench/tokens"
)

const testChannel = "bench_channel"

func testConfig(t *testing.T, srv *testutil.Server) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Channel = testChannel
	cfg.Scenario = 1
	srv.Configure(cfg)
	return cfg
}

// runClient drives one client against the server and shuts it down
// after d.
func runClient(t *testing.T, cfg *config.Config, stats *client.LiveStats, d time.Duration) client.Result {
	t.Helper()

	pool := tokens.Synthesize(100)
	shutdown := make(chan struct{})
	done := make(chan client.Result, 1)

	go func() {
		done <- client.New(cfg.ClientIDOffset, cfg, pool, stats, slog.Default()).Run(shutdown)
	}()

	time.Sleep(d)
	close(shutdown)

	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("client did not terminate after shutdown")
		return client.Result{}
	}
}

func TestClientSubscribeAndSample(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Options{
		Channel:         testChannel,
		DataInterval:    20 * time.Millisecond,
		TimestampSkewMs: 17,
	})
	cfg := testConfig(t, srv)

	stats := client.NewLiveStats()
	stats.MarkWarmupComplete()

	res := runClient(t, cfg, stats, 300*time.Millisecond)

	require.True(t, res.Connected)
	require.True(t, res.SubscribeSuccess)
	require.False(t, res.ConnectionError)
	require.NotNil(t, res.SubscribeLatencyMs)
	assert.GreaterOrEqual(t, *res.SubscribeLatencyMs, int64(0))

	require.NotEmpty(t, res.E2ELatencies)
	assert.Equal(t, int64(len(res.E2ELatencies)), res.MessagesReceived)
	for _, lat := range res.E2ELatencies {
		assert.GreaterOrEqual(t, lat, int64(15))
		assert.Less(t, lat, int64(60000))
	}
	assert.Empty(t, res.FilterUpdateLatencies)

	assert.Equal(t, int64(1), stats.SubscribeSuccess.Load())
	assert.Equal(t, int64(0), stats.ActiveConnections.Load(), "gauge must return to zero")
	assert.Equal(t, res.MessagesReceived, stats.MessagesReceived.Load())
}

func TestClientStringTimestamps(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Options{
		Channel:           testChannel,
		DataInterval:      20 * time.Millisecond,
		TimestampSkewMs:   17,
		TimestampAsString: true,
	})
	cfg := testConfig(t, srv)

	stats := client.NewLiveStats()
	stats.MarkWarmupComplete()

	res := runClient(t, cfg, stats, 300*time.Millisecond)

	require.NotEmpty(t, res.E2ELatencies)
	for _, lat := range res.E2ELatencies {
		assert.GreaterOrEqual(t, lat, int64(15))
	}
}

func TestClientWarmupGating(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Options{
		Channel:      testChannel,
		DataInterval: 20 * time.Millisecond,
	})
	cfg := testConfig(t, srv)

	// Gate stays down: deliveries are counted, never sampled.
	stats := client.NewLiveStats()
	res := runClient(t, cfg, stats, 300*time.Millisecond)

	require.True(t, res.SubscribeSuccess)
	assert.Positive(t, res.MessagesDuringWarmup)
	assert.Zero(t, res.MessagesReceived)
	assert.Empty(t, res.E2ELatencies)
	assert.Empty(t, res.FilterUpdateLatencies)
	assert.Positive(t, stats.MessagesReceived.Load())
}

func TestClientFilterUpdates(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Options{Channel: testChannel})
	cfg := testConfig(t, srv)
	cfg.Scenario = 2
	cfg.FilterUpdateInterval = 50

	stats := client.NewLiveStats()
	stats.MarkWarmupComplete()

	res := runClient(t, cfg, stats, 400*time.Millisecond)

	require.True(t, res.SubscribeSuccess)
	require.NotNil(t, res.SubscribeLatencyMs)
	assert.GreaterOrEqual(t, len(res.FilterUpdateLatencies), 2)

	// Initial subscribe plus one frame per acknowledged update.
	subs := srv.Subscribes()
	assert.GreaterOrEqual(t, len(subs), len(res.FilterUpdateLatencies)+1)
}

func TestClientFilterUpdatesGatedDuringWarmup(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Options{Channel: testChannel})
	cfg := testConfig(t, srv)
	cfg.Scenario = 2
	cfg.FilterUpdateInterval = 50

	stats := client.NewLiveStats()
	res := runClient(t, cfg, stats, 300*time.Millisecond)

	require.True(t, res.SubscribeSuccess)
	assert.Empty(t, res.FilterUpdateLatencies)
	// Updates are still issued on the wire even though their
	// acknowledgments go unrecorded.
	assert.GreaterOrEqual(t, len(srv.Subscribes()), 2)
}

func TestClientSubscriptionError(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Options{
		Channel:        testChannel,
		SubscribeError: true,
	})
	cfg := testConfig(t, srv)

	stats := client.NewLiveStats()
	res := runClient(t, cfg, stats, 200*time.Millisecond)

	assert.True(t, res.Connected)
	assert.False(t, res.SubscribeSuccess)
	assert.False(t, res.ConnectionError)
	assert.Nil(t, res.SubscribeLatencyMs)
	assert.Equal(t, int64(0), stats.SubscribeSuccess.Load())
}

func TestClientServerClosesOnAccept(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Options{
		Channel:       testChannel,
		CloseOnAccept: true,
	})
	cfg := testConfig(t, srv)

	stats := client.NewLiveStats()
	res := runClient(t, cfg, stats, 200*time.Millisecond)

	// The TCP handshake succeeded, so this is a subscribe failure,
	// not a connection error.
	assert.True(t, res.Connected)
	assert.False(t, res.SubscribeSuccess)
	assert.False(t, res.ConnectionError)
	assert.Equal(t, int64(0), stats.ActiveConnections.Load())
}

func TestClientNeverEstablished(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Options{
		Channel:         testChannel,
		OmitEstablished: true,
	})
	cfg := testConfig(t, srv)

	stats := client.NewLiveStats()
	res := runClient(t, cfg, stats, 200*time.Millisecond)

	assert.True(t, res.Connected)
	assert.False(t, res.SubscribeSuccess)
	assert.False(t, res.ConnectionError)
	assert.Nil(t, res.SubscribeLatencyMs)
}

func TestClientConnectFailure(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Options{Channel: testChannel})
	cfg := testConfig(t, srv)
	srv.Close()

	stats := client.NewLiveStats()
	shutdown := make(chan struct{})
	defer close(shutdown)

	res := client.New(0, cfg, tokens.Synthesize(10), stats, slog.Default()).Run(shutdown)

	assert.False(t, res.Connected)
	assert.True(t, res.ConnectionError)
	assert.Equal(t, int64(1), stats.ConnectionErrors.Load())
	assert.Equal(t, int64(0), stats.ActiveConnections.Load())
}

func TestClientHeartbeats(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Options{
		Channel:        testChannel,
		SendHeartbeats: true,
	})
	cfg := testConfig(t, srv)

	stats := client.NewLiveStats()
	res := runClient(t, cfg, stats, 300*time.Millisecond)

	require.True(t, res.Connected)
	raw, control := srv.Pongs()
	assert.Equal(t, 1, raw, "raw ping must be answered with raw pong")
	assert.Equal(t, 1, control, "pusher:ping must be answered with pusher:pong")
}

func TestClientIgnoresOtherChannels(t *testing.T) {
	srv := testutil.NewServer(t, testutil.Options{
		Channel:      "some_other_channel",
		DataInterval: 20 * time.Millisecond,
	})
	cfg := testConfig(t, srv)

	stats := client.NewLiveStats()
	stats.MarkWarmupComplete()

	res := runClient(t, cfg, stats, 300*time.Millisecond)

	require.True(t, res.SubscribeSuccess)
	assert.Zero(t, res.MessagesReceived)
	assert.Empty(t, res.E2ELatencies)
	assert.Equal(t, int64(0), stats.MessagesReceived.Load())
}
