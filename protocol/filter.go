// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import "github.com/projectscylla/wsbench/tokens"

// FilterKey is the tag every benchmark filter predicates on.
const FilterKey = "token_address"

// Filter comparison operators.
const (
	CmpEq = "eq"
	CmpIn = "in"
)

// Filter is a server-evaluated predicate over message tags. Exactly
// one of Val and Vals is set: eq filters carry a single address,
// in filters carry a unique address list.
type Filter struct {
	Key  string   `json:"key"`
	Cmp  string   `json:"cmp"`
	Val  string   `json:"val,omitempty"`
	Vals []string `json:"vals,omitempty"`
}

// SingleFilter builds an eq filter over one address drawn from the pool.
func SingleFilter(pool *tokens.Pool) Filter {
	return Filter{Key: FilterKey, Cmp: CmpEq, Val: pool.SampleOne()}
}

// MultiFilter builds an in filter over k distinct addresses.
func MultiFilter(pool *tokens.Pool, k int) Filter {
	return Filter{Key: FilterKey, Cmp: CmpIn, Vals: pool.SampleUnique(k)}
}

// BuildFilter maps a scenario code to a filter document. Scenarios 1
// and 2 (and anything unrecognized) use a single-address eq filter;
// scenarios 3, 4 and 5 use in filters of 10, 100 and 500 addresses.
func BuildFilter(scenario int, pool *tokens.Pool) Filter {
	switch scenario {
	case 3:
		return MultiFilter(pool, 10)
	case 4:
		return MultiFilter(pool, 100)
	case 5:
		return MultiFilter(pool, 500)
	default:
		return SingleFilter(pool)
	}
}
