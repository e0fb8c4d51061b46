// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import (
	"context"
	"testing"

	"github.com/tamra-mesh/tamra/internal/comm"
)

func TestIsLoadBalancingNeededDetectsImbalance(t *testing.T) {
	cases := []struct {
		name   string
		prefix []float64
		maxPct float64
		want   bool
	}{
		{"even split exactly balanced", []float64{4, 8, 12}, 0.1, false},
		{"one rank carries everything", []float64{12, 12, 12}, 0.1, true},
		{"empty prefix", nil, 0.1, false},
		{"zero total load", []float64{0, 0, 0}, 0.1, false},
		{"small deviation within tolerance", []float64{5, 8, 12}, 0.2, false},
		{"small deviation outside tight tolerance", []float64{5, 8, 12}, 0.01, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsLoadBalancingNeeded(tc.prefix, tc.maxPct); got != tc.want {
				t.Errorf("IsLoadBalancingNeeded(%v, %v) = %v, want %v", tc.prefix, tc.maxPct, got, tc.want)
			}
		})
	}
}

func TestAssessLoadSumsOwnedLeaves(t *testing.T) {
	f := oneRootForest(t, Shape{N1: 2, N2: 2, N3: 1}, 3)
	root := f.Roots[0]
	if err := root.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split: %v", err)
	}
	markOwned(root)

	if got := f.AssessLoad(); got != 4 {
		t.Fatalf("AssessLoad = %v, want 4 (one per leaf)", got)
	}

	root.ChildCell(0).SetToOtherProc()
	if got := f.AssessLoad(); got != 3 {
		t.Fatalf("AssessLoad after disowning one leaf = %v, want 3", got)
	}
}

// TestLoadBalanceSingleRankIsNoop covers the boundary case: with a
// single rank, the even split already equals the whole forest, so
// LoadBalance must report no change without touching ownership.
func TestLoadBalanceSingleRankIsNoop(t *testing.T) {
	f := oneRootForest(t, Shape{N1: 2, N2: 2, N3: 1}, 3)
	root := f.Roots[0]
	if err := root.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split: %v", err)
	}
	markOwned(root)

	cfg := BalanceConfig[*ScalarPayload]{MaxPctUnbalance: 0.1, Extrapolate: ExtrapolateScalar}
	changed, err := f.LoadBalance(context.Background(), comm.LocalComm{}, cfg)
	if err != nil {
		t.Fatalf("LoadBalance: %v", err)
	}
	if changed {
		t.Error("LoadBalance with a single rank should never report a change")
	}
	for _, l := range f.Leaves() {
		if !l.Indicator().BelongsToThisProc() {
			t.Error("a single-rank LoadBalance must not alter ownership")
		}
	}
}

// TestLoadBalanceSharedForestSeesNoImbalance documents a consequence of the
// simulated ranks sharing one in-memory forest (see DESIGN.md): ownership is
// global state, not partitioned per rank, so every simulated rank's
// AssessLoad sums the same owned set and reports an identical local value.
// The resulting prefix-sum vector is therefore always a perfectly even ramp
// and LoadBalance always finds nothing to do, regardless of how leaves are
// marked beforehand.
func TestLoadBalanceSharedForestSeesNoImbalance(t *testing.T) {
	shape := Shape{N1: 2, N2: 2, N3: 1}
	f := oneRootForest(t, shape, 3)
	root := f.Roots[0]
	if err := root.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split: %v", err)
	}
	markOwned(root)

	const numRanks = 3
	cfg := BalanceConfig[*ScalarPayload]{MaxPctUnbalance: 0.1, Extrapolate: ExtrapolateScalar}
	comm.RunRanks(numRanks, func(rank int, c comm.Comm) {
		changed, err := f.LoadBalance(context.Background(), c, cfg)
		if err != nil {
			t.Errorf("rank %d: LoadBalance: %v", rank, err)
		}
		if changed {
			t.Errorf("rank %d: LoadBalance reported a change under identical per-rank loads", rank)
		}
	})

	if got := len(f.Leaves()); got != 4 {
		t.Errorf("leaf count changed from a no-op LoadBalance: got %d, want 4", got)
	}
	for _, l := range f.Leaves() {
		if !l.Indicator().BelongsToThisProc() {
			t.Error("ownership should be untouched by a no-op LoadBalance")
		}
	}
}
