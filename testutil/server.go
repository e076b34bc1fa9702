// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides an in-process fake Pusher server for
// exercising the harness end to end without a network.
package testutil

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/projectscylla/wsbench/config"
	"github.com/projectscylla/wsbench/protocol"
)

// Options scripts the server side of the transcript per test.
type Options struct {
	// Channel to stamp on published data frames.
	Channel string

	// OmitEstablished suppresses pusher:connection_established, so
	// clients hang in the handshake until shutdown.
	OmitEstablished bool

	// CloseOnAccept performs the close handshake immediately after
	// the upgrade.
	CloseOnAccept bool

	// SubscribeError answers every subscribe with pusher:error
	// instead of an acknowledgment.
	SubscribeError bool

	// AckDelay delays each subscription acknowledgment.
	AckDelay time.Duration

	// DataInterval, when non-zero, publishes a data frame per period
	// once the first subscribe has been acknowledged.
	DataInterval time.Duration

	// DataCount bounds the number of published frames; zero means
	// unbounded.
	DataCount int

	// TimestampSkewMs is subtracted from the server clock when
	// stamping data frames.
	TimestampSkewMs int64

	// TimestampAsString encodes the timestamp as a decimal string.
	TimestampAsString bool

	// SendHeartbeats sends one raw ping and one pusher:ping after the
	// handshake; replies are counted and exposed via Pongs.
	SendHeartbeats bool
}

// Server is a scriptable fake Pusher endpoint over httptest.
type Server struct {
	opts     Options
	httpSrv  *httptest.Server
	upgrader websocket.Upgrader

	mu           sync.Mutex
	subscribes   [][]byte
	rawPongs     int
	controlPongs int
}

// NewServer starts the fake server and registers cleanup with tb.
func NewServer(tb testing.TB, opts Options) *Server {
	tb.Helper()

	s := &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.httpSrv = httptest.NewServer(http.HandlerFunc(s.handle))
	tb.Cleanup(s.Close)

	return s
}

// Close shuts the server down.
func (s *Server) Close() {
	s.httpSrv.Close()
}

// Addr returns the host and numeric port the server listens on.
func (s *Server) Addr() (string, int) {
	addr := s.httpSrv.Listener.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// Configure points cfg at this server.
func (s *Server) Configure(cfg *config.Config) {
	cfg.Host, cfg.Port = s.Addr()
}

// Pongs returns how many raw "pong" texts and pusher:pong events have
// been received.
func (s *Server) Pongs() (raw, control int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rawPongs, s.controlPongs
}

// Subscribes returns a copy of every raw subscribe payload received.
func (s *Server) Subscribes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.subscribes))
	copy(out, s.subscribes)
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.opts.CloseOnAccept {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		return
	}

	var writeMu sync.Mutex
	write := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	if !s.opts.OmitEstablished {
		_ = write([]byte(`{"event":"pusher:connection_established","data":"{\"socket_id\":\"1.1\"}"}`))
	}

	if s.opts.SendHeartbeats {
		_ = write([]byte(protocol.RawPing))
		_ = write([]byte(`{"event":"pusher:ping"}`))
	}

	stop := make(chan struct{})
	defer close(stop)
	publishing := false

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if string(data) == protocol.RawPing {
			_ = write([]byte(protocol.RawPong))
			continue
		}
		if string(data) == protocol.RawPong {
			s.mu.Lock()
			s.rawPongs++
			s.mu.Unlock()
			continue
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Event {
		case protocol.EventPing:
			_ = write(protocol.PongFrame)

		case protocol.EventPong:
			s.mu.Lock()
			s.controlPongs++
			s.mu.Unlock()

		case protocol.EventSubscribe:
			s.mu.Lock()
			s.subscribes = append(s.subscribes, data)
			s.mu.Unlock()

			if s.opts.SubscribeError {
				_ = write([]byte(`{"event":"pusher:error","data":"{\"message\":\"subscription rejected\"}"}`))
				continue
			}

			if s.opts.AckDelay > 0 {
				time.Sleep(s.opts.AckDelay)
			}

			var sub protocol.SubscribeData
			_ = json.Unmarshal(msg.Data, &sub)
			ack := fmt.Sprintf(`{"event":"pusher_internal:subscription_succeeded","channel":%s,"data":"{}"}`,
				strconv.Quote(sub.Channel))
			if err := write([]byte(ack)); err != nil {
				return
			}

			if s.opts.DataInterval > 0 && !publishing {
				publishing = true
				go s.publish(write, stop)
			}
		}
	}
}

func (s *Server) publish(write func([]byte) error, stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.DataInterval)
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ts := time.Now().UnixMilli() - s.opts.TimestampSkewMs
			tags := fmt.Sprintf(`{"timestamp":%d}`, ts)
			if s.opts.TimestampAsString {
				tags = fmt.Sprintf(`{"timestamp":"%d"}`, ts)
			}
			frame := fmt.Sprintf(`{"event":"trade","channel":%s,"tags":%s,"data":"{}"}`,
				strconv.Quote(s.opts.Channel), tags)

			if err := write([]byte(frame)); err != nil {
				return
			}
			sent++
			if s.opts.DataCount > 0 && sent >= s.opts.DataCount {
				return
			}
		}
	}
}
