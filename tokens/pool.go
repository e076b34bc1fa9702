// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
)

// Pool errors.
var (
	ErrEmptyPool = errors.New("token pool is empty")
)

// Pool is an immutable set of token addresses shared by all clients.
// Sampling methods are safe for concurrent use.
type Pool struct {
	addrs []string
}

// Load reads a pool from a JSON file containing an array of strings.
func Load(path string) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var addrs []string
	if err := json.Unmarshal(data, &addrs); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if len(addrs) == 0 {
		return nil, ErrEmptyPool
	}

	return &Pool{addrs: addrs}, nil
}

// Synthesize builds a deterministic pool of n addresses of the form
// token_<8-hex-index>. Used when no token file is available.
func Synthesize(n int) *Pool {
	addrs := make([]string, n)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("token_%08x", i)
	}
	return &Pool{addrs: addrs}
}

// Len returns the number of addresses in the pool.
func (p *Pool) Len() int {
	return len(p.addrs)
}

// SampleOne returns one address drawn uniformly from the pool.
func (p *Pool) SampleOne() string {
	return p.addrs[rand.IntN(len(p.addrs))]
}

// SampleUnique returns k distinct addresses drawn without replacement.
// If k exceeds the pool size the whole pool is returned in random
// order. Draws are independent across calls.
func (p *Pool) SampleUnique(k int) []string {
	if k > len(p.addrs) {
		k = len(p.addrs)
	}

	out := make([]string, k)
	for i, idx := range rand.Perm(len(p.addrs))[:k] {
		out[i] = p.addrs[idx]
	}
	return out
}
