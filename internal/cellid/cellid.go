// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package cellid implements CellId, an SFC-position identifier: a root
// index plus the per-level traversal order along the
// path from that root to a cell. It carries no reference to a Cell, Oct or
// Forest, so it is safe to exchange across ranks and to use as a map key.
package cellid

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// ID identifies a cell by the root it descends from and the SFC traversal
// order chosen at each level down to it. An empty Orders slice identifies
// the root cell itself.
type ID struct {
	Root   int
	Orders []int
}

// Level returns the depth of the identified cell (0 for a root).
func (id ID) Level() int { return len(id.Orders) }

// Compare orders two IDs in the forest's depth-first SFC traversal order:
// first by root index, then lexicographically by order path, where a
// strict ancestor sorts immediately before its descendants. It returns -1,
// 0 or 1.
func Compare(a, b ID) int {
	if a.Root != b.Root {
		if a.Root < b.Root {
			return -1
		}
		return 1
	}
	n := len(a.Orders)
	if len(b.Orders) < n {
		n = len(b.Orders)
	}
	for i := 0; i < n; i++ {
		if a.Orders[i] != b.Orders[i] {
			if a.Orders[i] < b.Orders[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a.Orders) == len(b.Orders):
		return 0
	case len(a.Orders) < len(b.Orders):
		return -1
	default:
		return 1
	}
}

// IsAncestorOf reports whether a identifies a strict ancestor of the cell b
// identifies.
func IsAncestorOf(a, b ID) bool {
	if a.Root != b.Root || len(a.Orders) >= len(b.Orders) {
		return false
	}
	for i, o := range a.Orders {
		if b.Orders[i] != o {
			return false
		}
	}
	return true
}

// Parent returns the ID of the identified cell's parent and true, or a
// zero ID and false if id is already a root.
func Parent(id ID) (ID, bool) {
	if len(id.Orders) == 0 {
		return ID{}, false
	}
	return ID{Root: id.Root, Orders: append([]int(nil), id.Orders[:len(id.Orders)-1]...)}, true
}

// Child returns the ID of the order-th child of the identified cell.
func Child(id ID, order int) ID {
	return ID{Root: id.Root, Orders: append(append([]int(nil), id.Orders...), order)}
}

// ToChild descends the ID in place to its order-th child.
func (id *ID) ToChild(order int) {
	id.Orders = append(id.Orders, order)
}

// ToParent ascends the ID in place to its parent, reporting false when it
// already identifies a root.
func (id *ID) ToParent() bool {
	if len(id.Orders) == 0 {
		return false
	}
	id.Orders = id.Orders[:len(id.Orders)-1]
	return true
}

// ToRoot truncates the ID in place to the root it descends from.
func (id *ID) ToRoot() {
	id.Orders = id.Orders[:0]
}

// Reset restores the ID to the zero value: root 0, empty path.
func (id *ID) Reset() {
	id.Root = 0
	id.Orders = id.Orders[:0]
}

// EncodePlain serializes an ID using the plain wire format: a
// big-endian uint32 root index, a big-endian uint32 order count, then one
// big-endian uint32 per order. It is simple to decode without knowing the
// forest's shape, at the cost of one full word per level.
func EncodePlain(id ID) []byte {
	buf := make([]byte, 8+4*len(id.Orders))
	binary.BigEndian.PutUint32(buf[0:4], uint32(id.Root))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(id.Orders)))
	for i, o := range id.Orders {
		binary.BigEndian.PutUint32(buf[8+4*i:12+4*i], uint32(o))
	}
	return buf
}

// DecodePlain is the inverse of EncodePlain.
func DecodePlain(buf []byte) (ID, error) {
	if len(buf) < 8 {
		return ID{}, fmt.Errorf("cellid: plain buffer too short: %d bytes", len(buf))
	}
	root := int(binary.BigEndian.Uint32(buf[0:4]))
	n := int(binary.BigEndian.Uint32(buf[4:8]))
	if len(buf) < 8+4*n {
		return ID{}, fmt.Errorf("cellid: plain buffer truncated: want %d levels", n)
	}
	orders := make([]int, n)
	for i := range orders {
		orders[i] = int(binary.BigEndian.Uint32(buf[8+4*i : 12+4*i]))
	}
	return ID{Root: root, Orders: orders}, nil
}

// EncodeBitStacked packs each order into the minimum number of bits that
// can hold numChildren-1, rather than a full word per level. numChildren
// is the forest shape's child count and must be passed identically to
// DecodeBitStacked. Backed by github.com/bits-and-blooms/bitset.
func EncodeBitStacked(id ID, numChildren int) ([]byte, error) {
	bitsPerOrder := bitsNeeded(numChildren)
	bs := bitset.New(64 + uint(bitsPerOrder*len(id.Orders)))
	pos := uint(0)
	pos = putBits(bs, pos, uint64(id.Root), 32)
	pos = putBits(bs, pos, uint64(len(id.Orders)), 32)
	for _, o := range id.Orders {
		pos = putBits(bs, pos, uint64(o), bitsPerOrder)
	}
	return bs.MarshalBinary()
}

// DecodeBitStacked is the inverse of EncodeBitStacked; numChildren must
// match the value used to encode.
func DecodeBitStacked(buf []byte, numChildren int) (ID, error) {
	bs := &bitset.BitSet{}
	if err := bs.UnmarshalBinary(buf); err != nil {
		return ID{}, fmt.Errorf("cellid: bit-stacked decode: %w", err)
	}
	bitsPerOrder := bitsNeeded(numChildren)
	pos := uint(0)
	var root, n uint64
	root, pos = getBits(bs, pos, 32)
	n, pos = getBits(bs, pos, 32)
	orders := make([]int, n)
	for i := range orders {
		var v uint64
		v, pos = getBits(bs, pos, bitsPerOrder)
		orders[i] = int(v)
	}
	return ID{Root: int(root), Orders: orders}, nil
}

func bitsNeeded(numChildren int) int {
	if numChildren <= 1 {
		return 1
	}
	b := 0
	for (1 << uint(b)) < numChildren {
		b++
	}
	return b
}

func putBits(bs *bitset.BitSet, pos uint, v uint64, n int) uint {
	for i := 0; i < n; i++ {
		if (v>>uint(n-1-i))&1 == 1 {
			bs.Set(pos)
		}
		pos++
	}
	return pos
}

func getBits(bs *bitset.BitSet, pos uint, n int) (uint64, uint) {
	var v uint64
	for i := 0; i < n; i++ {
		v <<= 1
		if bs.Test(pos) {
			v |= 1
		}
		pos++
	}
	return v, pos
}
