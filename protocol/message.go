// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package protocol holds the Pusher wire types spoken by the harness:
// control events, subscribe frames with tag filters, and the
// timestamp conventions used to compute end-to-end latency.
package protocol

import (
	"encoding/json"
	"strconv"
)

// Recognized Pusher event names.
const (
	EventSubscribe             = "pusher:subscribe"
	EventPing                  = "pusher:ping"
	EventPong                  = "pusher:pong"
	EventError                 = "pusher:error"
	EventConnectionEstablished = "pusher:connection_established"
	EventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
)

// Raw heartbeat text frames, exchanged outside the Pusher envelope.
const (
	RawPing = "ping"
	RawPong = "pong"
)

// PongFrame is the pre-serialized reply to a pusher:ping control event.
var PongFrame = []byte(`{"event":"pusher:pong","data":{}}`)

// Message is an inbound Pusher frame. Every field except Event is
// optional on the wire; Data and Tags are kept raw so the hot path
// only decodes them when a timestamp is actually needed.
type Message struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Tags    json.RawMessage `json:"tags,omitempty"`
}

// Subscribe is the outbound pusher:subscribe frame. Filter updates
// re-issue the same frame on the established connection.
type Subscribe struct {
	Event string        `json:"event"`
	Data  SubscribeData `json:"data"`
}

// SubscribeData carries the channel name and the tag filter.
type SubscribeData struct {
	Channel string `json:"channel"`
	Filter  Filter `json:"filter"`
}

// NewSubscribe builds a subscribe frame for the given channel and filter.
func NewSubscribe(channel string, filter Filter) Subscribe {
	return Subscribe{
		Event: EventSubscribe,
		Data: SubscribeData{
			Channel: channel,
			Filter:  filter,
		},
	}
}

// ExtractTimestamp searches a delivered message for a send timestamp
// in milliseconds. Locations are consulted in order: tags.timestamp at
// the message root, data.tags.timestamp, data.timestamp. Each location
// accepts an unsigned integer or a decimal string; the first value
// that parses wins.
func ExtractTimestamp(msg *Message) (uint64, bool) {
	if len(msg.Tags) > 0 {
		var tags struct {
			Timestamp json.RawMessage `json:"timestamp"`
		}
		if err := json.Unmarshal(msg.Tags, &tags); err == nil {
			if ts, ok := parseTimestamp(tags.Timestamp); ok {
				return ts, true
			}
		}
	}

	if len(msg.Data) > 0 {
		var data struct {
			Tags struct {
				Timestamp json.RawMessage `json:"timestamp"`
			} `json:"tags"`
			Timestamp json.RawMessage `json:"timestamp"`
		}
		if err := json.Unmarshal(msg.Data, &data); err == nil {
			if ts, ok := parseTimestamp(data.Tags.Timestamp); ok {
				return ts, true
			}
			if ts, ok := parseTimestamp(data.Timestamp); ok {
				return ts, true
			}
		}
	}

	return 0, false
}

func parseTimestamp(raw json.RawMessage) (uint64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}

	var v uint64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

// E2ELatency computes wall-clock receipt time minus the send
// timestamp, saturating at zero when clocks disagree.
func E2ELatency(nowMs int64, sentMs uint64) int64 {
	lat := nowMs - int64(sentMs)
	if lat < 0 {
		return 0
	}
	return lat
}

// MaxLatencyMs is the sanity clamp; samples at or above it are
// discarded as out-of-range rather than recorded.
const MaxLatencyMs = 60_000
