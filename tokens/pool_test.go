// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSynthesize(t *testing.T) {
	pool := Synthesize(10000)

	if pool.Len() != 10000 {
		t.Fatalf("expected 10000 addresses, got %d", pool.Len())
	}
	if pool.addrs[0] != "token_00000000" {
		t.Errorf("expected token_00000000, got %s", pool.addrs[0])
	}
	if pool.addrs[255] != "token_000000ff" {
		t.Errorf("expected token_000000ff, got %s", pool.addrs[255])
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "tokens.json")
	if err := os.WriteFile(path, []byte(`["addr_a","addr_b","addr_c"]`), 0o644); err != nil {
		t.Fatal(err)
	}

	pool, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if pool.Len() != 3 {
		t.Errorf("expected 3 addresses, got %d", pool.Len())
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	malformed := filepath.Join(dir, "malformed.json")
	if err := os.WriteFile(malformed, []byte(`{"not":"an array"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(malformed); err == nil {
		t.Error("expected error for malformed file")
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(empty); err == nil {
		t.Error("expected error for empty pool")
	}
}

func TestSampleOne(t *testing.T) {
	pool := Synthesize(16)
	members := make(map[string]bool, pool.Len())
	for _, a := range pool.addrs {
		members[a] = true
	}

	for i := 0; i < 100; i++ {
		if a := pool.SampleOne(); !members[a] {
			t.Fatalf("sampled address %q not in pool", a)
		}
	}
}

func TestSampleUnique(t *testing.T) {
	pool := Synthesize(1000)

	samples := pool.SampleUnique(100)
	if len(samples) != 100 {
		t.Fatalf("expected 100 samples, got %d", len(samples))
	}

	seen := make(map[string]bool, len(samples))
	for _, a := range samples {
		if seen[a] {
			t.Fatalf("duplicate address %q", a)
		}
		seen[a] = true
	}
}

func TestSampleUniqueExceedsPool(t *testing.T) {
	pool := Synthesize(7)

	samples := pool.SampleUnique(50)
	if len(samples) != 7 {
		t.Fatalf("expected pool-size result, got %d", len(samples))
	}

	seen := make(map[string]bool, len(samples))
	for _, a := range samples {
		if seen[a] {
			t.Fatalf("duplicate address %q", a)
		}
		seen[a] = true
	}
}

func TestSampleUniqueIndependentCalls(t *testing.T) {
	pool := Synthesize(20)

	// No de-duplication across calls: two draws of the full pool
	// must both return everything.
	a := pool.SampleUnique(20)
	b := pool.SampleUnique(20)
	if len(a) != 20 || len(b) != 20 {
		t.Fatalf("expected full pools, got %d and %d", len(a), len(b))
	}
}
