// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import (
	"context"
	"math"

	"github.com/tamra-mesh/tamra/internal/cellid"
	"github.com/tamra-mesh/tamra/internal/comm"
)

// BalanceConfig bundles LoadBalance's parameters beyond the forest and
// communicator.
type BalanceConfig[P CellData] struct {
	// MaxPctUnbalance is the fraction of total load a rank's cumulative
	// share may deviate from an even split before LoadBalance acts.
	MaxPctUnbalance float64
	Extrapolate     ExtrapolateFunc[P]
}

// AssessLoad sums payload.Load(true) across every owned leaf.
func (f *Forest[P]) AssessLoad() float64 {
	total := 0.0
	it := NewIterator(f)
	if it.ToOwnedBegin(f.MaxLevel) {
		for {
			total += it.Current().Payload().Load(true)
			if !it.OwnedNext(f.MaxLevel) {
				break
			}
		}
	}
	return total
}

// IsLoadBalancingNeeded reports whether the global prefix-sum vector
// (cumulative load through rank p, for every p) deviates from an even
// split by more than maxPctUnbalance of the total.
func IsLoadBalancingNeeded(prefix []float64, maxPctUnbalance float64) bool {
	n := len(prefix)
	if n == 0 {
		return false
	}
	total := prefix[n-1]
	if total == 0 {
		return false
	}
	for p := 0; p < n; p++ {
		target := float64(p+1) / float64(n) * total
		if math.Abs(prefix[p]-target)/total > maxPctUnbalance {
			return true
		}
	}
	return false
}

// LoadBalance redistributes owned leaves along the SFC so each rank's
// cumulative load approximates an equal share of the total, within
// cfg.MaxPctUnbalance. It returns whether anything
// moved.
func (f *Forest[P]) LoadBalance(ctx context.Context, c comm.Comm, cfg BalanceConfig[P]) (bool, error) {
	ctx, span := startSpan(ctx, "tamra.LoadBalance")
	defer span.End()

	rank, size := c.Rank(), c.Size()

	local := f.AssessLoad()
	allLoads, err := c.AllGather(ctx, local)
	if err != nil {
		return false, err
	}

	prefix := make([]float64, size)
	running := 0.0
	for i, l := range allLoads {
		running += l
		prefix[i] = running
	}
	total := prefix[size-1]
	if !IsLoadBalancingNeeded(prefix, cfg.MaxPctUnbalance) {
		return false, nil
	}

	targetPrefix := make([]float64, size)
	for p := 0; p < size; p++ {
		targetPrefix[p] = float64(p+1) / float64(size) * total
	}
	base := 0.0
	if rank > 0 {
		base = prefix[rank-1]
	}

	type ownedLeaf struct {
		id   cellid.ID
		cell *Cell[P]
	}
	var leaves []ownedLeaf
	it := NewIterator(f)
	if it.ToOwnedBegin(f.MaxLevel) {
		for {
			leaves = append(leaves, ownedLeaf{id: it.CurrentID(), cell: it.Current()})
			if !it.OwnedNext(f.MaxLevel) {
				break
			}
		}
	}

	// Walk owned leaves in SFC order, assigning each to the rank whose
	// target-prefix boundary it crosses.
	cellsToSend := make([][]ownedLeaf, size)
	running = base
	for _, l := range leaves {
		running += l.cell.Payload().Load(true)
		owner := 0
		for owner < size-1 && running > targetPrefix[owner] {
			owner++
		}
		cellsToSend[owner] = append(cellsToSend[owner], l)
	}

	numChildren := f.Shape.NumChildren()
	sendBatches := make([][]byte, size)
	for p := 0; p < size; p++ {
		if p == rank {
			continue
		}
		var records []leafRecord
		for _, l := range cellsToSend[p] {
			records = append(records, leafRecord{
				structure: BuildSubtreeStructure(l.id, l.cell),
				payload:   l.cell.Payload().ToVectorOfData(),
			})
		}
		encoded, err := encodeBatch(numChildren, records)
		if err != nil {
			return false, err
		}
		sendBatches[p] = encoded
	}

	recvBatches, err := c.AllToAllV(ctx, sendBatches)
	if err != nil {
		return false, err
	}

	kept := make(map[*Cell[P]]bool, len(cellsToSend[rank]))
	for _, l := range cellsToSend[rank] {
		kept[l.cell] = true
	}
	f.withLock(func() {
		for _, l := range leaves {
			if !kept[l.cell] {
				l.cell.SetToOtherProc()
			}
		}
	})

	materialize := NewIterator(f)
	for src := 0; src < size; src++ {
		if src == rank || len(recvBatches[src]) == 0 {
			continue
		}
		records, err := decodeBatch(recvBatches[src], numChildren)
		if err != nil {
			return false, err
		}
		for _, rec := range records {
			var ok bool
			var matErr error
			f.withLock(func() {
				ok = materialize.ToCellId(rec.structure.Root, true, cfg.Extrapolate)
				if !ok {
					return
				}
				pos := 0
				matErr = MaterializeSubtreeStructure(materialize.Current(), rec.structure.Split, &pos, f.MaxLevel, cfg.Extrapolate)
			})
			if !ok {
				return false, NewAppError(CodePrecondition, "loadBalance: failed to materialize received cell")
			}
			if matErr != nil {
				return false, matErr
			}
			target := materialize.Current()
			if uint(len(rec.payload)) != target.Payload().DataSize() {
				return false, NewAppError(CodeSerializationSize, "loadBalance: received payload size mismatch")
			}
			target.Payload().FromVectorOfData(rec.payload)
			target.SetToThisProc()
		}
	}

	f.withLock(func() { BackPropagateOwnership(f) })
	return true, nil
}
