// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/tamra-mesh/tamra/internal/cellid"
)

// SubtreeStructure is the run-length shape ranks exchange alongside a
// cell's CellId: a pre-order flattening of "does this
// node have children" bits covering the whole subtree rooted at a cell
// (including the root itself). Balance and Ghost both use it to tell a
// receiver exactly which new cells to split to reproduce a sender's
// subtree, without sending full geometry.
type SubtreeStructure struct {
	Root  cellid.ID
	Split []bool
}

// BuildSubtreeStructure flattens cell's subtree into the pre-order bit
// sequence BuildSubtreeStructure/MaterializeSubtreeStructure agree on:
// one bool per visited cell, true iff it has a child oct.
func BuildSubtreeStructure[P CellData](root cellid.ID, cell *Cell[P]) SubtreeStructure {
	var bits []bool
	var rec func(c *Cell[P])
	rec = func(c *Cell[P]) {
		bits = append(bits, !c.IsLeaf())
		if !c.IsLeaf() {
			for _, ch := range c.ChildCells() {
				rec(ch)
			}
		}
	}
	rec(cell)
	return SubtreeStructure{Root: root, Split: bits}
}

// MaterializeSubtreeStructure splits cell (and its descendants) to match
// structure, consuming one bool per visited node starting at *pos.
func MaterializeSubtreeStructure[P CellData](cell *Cell[P], structure []bool, pos *int, maxLevel int, extrapolate ExtrapolateFunc[P]) error {
	if *pos >= len(structure) {
		return fmt.Errorf("tamra: subtree structure truncated")
	}
	hasChildren := structure[*pos]
	*pos++
	if !hasChildren {
		return nil
	}
	if cell.IsLeaf() {
		if err := cell.Split(maxLevel, extrapolate); err != nil {
			return err
		}
	}
	for _, ch := range cell.ChildCells() {
		if err := MaterializeSubtreeStructure(ch, structure, pos, maxLevel, extrapolate); err != nil {
			return err
		}
	}
	return nil
}

// EncodeStructureRun serializes a SubtreeStructure as the "run" wire
// format: the bit-stacked CellId, a 32-bit split-list length, then the
// split list itself bit-packed (one bit per node instead of one byte),
// backed by the same bits-and-blooms/bitset the CellId bit-stacked
// encoding uses.
func EncodeStructureRun(s SubtreeStructure, numChildren int) ([]byte, error) {
	idBytes, err := cellid.EncodeBitStacked(s.Root, numChildren)
	if err != nil {
		return nil, fmt.Errorf("tamra: encode structure run: %w", err)
	}

	bs := bitset.New(uint(len(s.Split)))
	for i, b := range s.Split {
		if b {
			bs.Set(uint(i))
		}
	}
	bitBytes, err := bs.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("tamra: encode structure run: %w", err)
	}

	out := make([]byte, 4+len(idBytes)+4+4+len(bitBytes))
	off := 0
	binary.BigEndian.PutUint32(out[off:], uint32(len(idBytes)))
	off += 4
	copy(out[off:], idBytes)
	off += len(idBytes)
	binary.BigEndian.PutUint32(out[off:], uint32(len(s.Split)))
	off += 4
	binary.BigEndian.PutUint32(out[off:], uint32(len(bitBytes)))
	off += 4
	copy(out[off:], bitBytes)
	return out, nil
}

// DecodeStructureRun is the inverse of EncodeStructureRun.
func DecodeStructureRun(buf []byte, numChildren int) (SubtreeStructure, error) {
	if len(buf) < 4 {
		return SubtreeStructure{}, fmt.Errorf("tamra: decode structure run: buffer too short")
	}
	idLen := int(binary.BigEndian.Uint32(buf))
	off := 4
	if len(buf) < off+int(idLen)+8 {
		return SubtreeStructure{}, fmt.Errorf("tamra: decode structure run: truncated header")
	}
	id, err := cellid.DecodeBitStacked(buf[off:off+idLen], numChildren)
	if err != nil {
		return SubtreeStructure{}, fmt.Errorf("tamra: decode structure run: %w", err)
	}
	off += idLen
	splitLen := int(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	bitBytesLen := int(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+bitBytesLen {
		return SubtreeStructure{}, fmt.Errorf("tamra: decode structure run: truncated bit list")
	}
	bs := &bitset.BitSet{}
	if err := bs.UnmarshalBinary(buf[off : off+bitBytesLen]); err != nil {
		return SubtreeStructure{}, fmt.Errorf("tamra: decode structure run: %w", err)
	}
	bits := make([]bool, splitLen)
	for i := range bits {
		bits[i] = bs.Test(uint(i))
	}
	return SubtreeStructure{Root: id, Split: bits}, nil
}
