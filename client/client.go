// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package client implements the per-connection protocol state machine
// driven by the benchmark runner: Pusher handshake, tag-filter
// subscription, optional periodic filter updates, delivery sampling,
// and cooperative shutdown.
package client

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/projectscylla/wsbench/config"
	"github.com/projectscylla/wsbench/protocol"
	"github.com/projectscylla/wsbench/tokens"
)

// Client is a single benchmark connection. It is not reused: one
// Client runs one connection to completion and returns its Result.
type Client struct {
	id     int
	cfg    *config.Config
	pool   *tokens.Pool
	stats  *LiveStats
	logger *slog.Logger
}

// New creates a client with the given unique id.
func New(id int, cfg *config.Config, pool *tokens.Pool, stats *LiveStats, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		id:     id,
		cfg:    cfg,
		pool:   pool,
		stats:  stats,
		logger: logger,
	}
}

// inbound is one frame handed from the read pump to the select loop.
type inbound struct {
	msgType int
	data    []byte
	err     error
}

// Run drives the connection until shutdown, remote close, or an
// unrecoverable transport error, and returns the owned result record.
func (c *Client) Run(shutdown <-chan struct{}) Result {
	result := NewResult()

	conn, _, err := websocket.DefaultDialer.Dial(c.cfg.URL(), nil)
	if err != nil {
		c.logger.Error("client_connect_failed", "id", c.id, "error", err)
		c.stats.ConnectionErrors.Add(1)
		result.ConnectionError = true
		return result
	}

	result.Connected = true
	c.stats.ActiveConnections.Add(1)
	c.logger.Debug("client_connected", "id", c.id)

	// The decrement is armed only after a successful connect, keeping
	// the gauge symmetric on every termination path.
	defer func() {
		conn.Close()
		c.stats.ActiveConnections.Add(-1)
		c.logger.Debug("client_disconnected", "id", c.id)
	}()

	// Read pump: the connection has exactly one reader. The done
	// channel unblocks it if the select loop returns first.
	frames := make(chan inbound)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			msgType, data, err := conn.ReadMessage()
			select {
			case frames <- inbound{msgType: msgType, data: data, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var tickCh <-chan time.Time
	if c.cfg.Scenario == 2 {
		ticker := time.NewTicker(c.cfg.FilterUpdateTick())
		defer ticker.Stop()
		tickCh = ticker.C
	}

	var (
		subscribeTime time.Time
		updateTime    time.Time
		subscribed    bool
		updating      bool
		loggedFirst   bool
	)

	for {
		// Shutdown wins over an already-ready frame.
		select {
		case <-shutdown:
			c.logger.Debug("client_shutdown", "id", c.id)
			return result
		default:
		}

		select {
		case <-shutdown:
			c.logger.Debug("client_shutdown", "id", c.id)
			return result

		case in := <-frames:
			if in.err != nil {
				if isCleanClose(in.err) {
					c.logger.Debug("client_stream_closed", "id", c.id)
				} else {
					c.logger.Error("client_read_error", "id", c.id, "error", in.err)
					result.ConnectionError = true
				}
				return result
			}
			if in.msgType != websocket.TextMessage {
				continue
			}

			if string(in.data) == protocol.RawPing {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(protocol.RawPong))
				continue
			}

			var msg protocol.Message
			if err := json.Unmarshal(in.data, &msg); err != nil {
				continue
			}

			switch msg.Event {
			case protocol.EventPing:
				_ = conn.WriteMessage(websocket.TextMessage, protocol.PongFrame)

			case protocol.EventConnectionEstablished:
				c.logger.Debug("client_established", "id", c.id)
				frame, err := json.Marshal(protocol.NewSubscribe(c.cfg.Channel, protocol.BuildFilter(c.cfg.Scenario, c.pool)))
				if err != nil {
					continue
				}
				subscribeTime = time.Now()
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					c.logger.Error("client_subscribe_failed", "id", c.id, "error", err)
					return result
				}

			case protocol.EventSubscriptionSucceeded:
				if updating {
					if !updateTime.IsZero() && c.stats.WarmupComplete() {
						result.FilterUpdateLatencies = append(result.FilterUpdateLatencies, time.Since(updateTime).Milliseconds())
					}
					updating = false
					continue
				}
				if !subscribeTime.IsZero() && !subscribed {
					lat := time.Since(subscribeTime).Milliseconds()
					result.SubscribeLatencyMs = &lat
					result.SubscribeSuccess = true
					c.stats.SubscribeSuccess.Add(1)
					subscribed = true
					c.logger.Debug("client_subscribed", "id", c.id, "latency_ms", lat)
				}

			case protocol.EventError:
				c.logger.Error("client_subscription_error", "id", c.id, "data", string(msg.Data))

			default:
				if !subscribed || msg.Channel != c.cfg.Channel {
					continue
				}
				c.stats.MessagesReceived.Add(1)

				if !loggedFirst {
					c.logger.Debug("client_first_message", "id", c.id, "event", msg.Event, "tags", string(msg.Tags))
					loggedFirst = true
				}

				if !c.stats.WarmupComplete() {
					result.MessagesDuringWarmup++
					continue
				}

				result.MessagesReceived++
				if ts, ok := protocol.ExtractTimestamp(&msg); ok {
					lat := protocol.E2ELatency(time.Now().UnixMilli(), ts)
					if lat < protocol.MaxLatencyMs {
						result.E2ELatencies = append(result.E2ELatencies, lat)
					}
				}
			}

		case <-tickCh:
			if !subscribed {
				continue
			}
			frame, err := json.Marshal(protocol.NewSubscribe(c.cfg.Channel, protocol.BuildFilter(c.cfg.Scenario, c.pool)))
			if err != nil {
				continue
			}
			// The flag goes up before the frame goes out so a fast
			// acknowledgment cannot race past the state update.
			updateTime = time.Now()
			updating = true
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error("client_filter_update_failed", "id", c.id, "error", err)
				return result
			}
		}
	}
}

// isCleanClose reports whether a read error represents an orderly end
// of stream rather than a transport fault.
func isCleanClose(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}
