// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import "github.com/tamra-mesh/tamra/internal/cellid"

// Iterator walks a Forest in depth-first SFC order: roots in list order,
// each root's subtree ordered by the forest's SFCKind. An Iterator is
// only valid for the Forest it was
// built from, and is invalidated by any Split/Coarsen performed outside of
// it -- it does not observe topology changes made through other handles.
type Iterator[P CellData] struct {
	forest *Forest[P]

	rootIdx int
	current *Cell[P]
	// states[d] is the sfcState used to order the siblings at depth d+1,
	// i.e. the state that was consulted to choose the current path's step
	// into depth d+1. len(states) == current.Level() whenever current is
	// non-nil and started is true.
	states []sfcState
	// path[d] is the sibling index chosen at depth d+1 along the current
	// position; kept in lockstep with states for CurrentID.
	path []int

	started bool
	atEnd   bool
}

// NewIterator creates an iterator over forest, initially before the first
// position.
func NewIterator[P CellData](forest *Forest[P]) *Iterator[P] {
	return &Iterator[P]{forest: forest}
}

// Current returns the cell at the iterator's current position. It is
// undefined (may return nil) before ToBegin/ToEnd/ToCellId, or once the
// iterator has advanced past the end.
func (it *Iterator[P]) Current() *Cell[P] { return it.current }

// CurrentID returns the CellId of the iterator's current position.
func (it *Iterator[P]) CurrentID() cellid.ID {
	orders := make([]int, len(it.path))
	for d, sib := range it.path {
		orders[d] = it.states[d].orderOf(it.forest.Shape, sib)
	}
	return cellid.ID{Root: it.rootIdx, Orders: orders}
}

// CellIDOf computes the CellId of an arbitrary cell in forest, walking up
// to its root and replaying the SFC state top-down to convert each
// sibling index into its traversal order. Unlike Iterator.CurrentID, it
// works for any cell reached by a neighbor walk, not only the iterator's
// own traversal path -- the managers use it to name ghost and boundary
// cells discovered via Cell.GetNeighborCell/ApplyToNeighborLeafCells.
func CellIDOf[P CellData](f *Forest[P], cell *Cell[P]) cellid.ID {
	var siblings []int
	cur := cell
	for !cur.IsRoot() {
		siblings = append(siblings, cur.SiblingNumber())
		cur = cur.ParentOct().ParentCell()
	}
	rootIdx := cur.SiblingNumber()
	for i, j := 0, len(siblings)-1; i < j; i, j = i+1, j-1 {
		siblings[i], siblings[j] = siblings[j], siblings[i]
	}

	orders := make([]int, len(siblings))
	state := freshState(f.SFC, f.Shape)
	for i, sib := range siblings {
		orders[i] = state.orderOf(f.Shape, sib)
		state = state.childState(f.Shape, sib)
	}
	return cellid.ID{Root: rootIdx, Orders: orders}
}

// ToBegin moves to the first cell in traversal order, descending to a leaf
// or to a cell at sweepLevel, whichever comes first. It returns false if
// the forest has no roots.
func (it *Iterator[P]) ToBegin(sweepLevel int) bool {
	if len(it.forest.Roots) == 0 {
		it.started, it.atEnd, it.current = true, true, nil
		return false
	}
	it.rootIdx = 0
	it.current = it.forest.Roots[0]
	it.states, it.path = nil, nil
	it.descendLeft(sweepLevel)
	it.started, it.atEnd = true, false
	return true
}

// ToEnd moves to the last cell in traversal order (the mirror of
// ToBegin), descending rightmost. It returns false if the forest has no
// roots.
func (it *Iterator[P]) ToEnd(sweepLevel int) bool {
	if len(it.forest.Roots) == 0 {
		it.started, it.atEnd, it.current = true, true, nil
		return false
	}
	it.rootIdx = len(it.forest.Roots) - 1
	it.current = it.forest.Roots[it.rootIdx]
	it.states, it.path = nil, nil
	it.descendRight(sweepLevel)
	it.started, it.atEnd = true, false
	return true
}

func (it *Iterator[P]) isTraversalLeaf(cell *Cell[P], sweepLevel int) bool {
	return cell.IsLeaf() || cell.Level() >= sweepLevel
}

func (it *Iterator[P]) stateForChildrenOf(cell *Cell[P]) sfcState {
	if len(it.states) == 0 {
		return freshState(it.forest.SFC, it.forest.Shape)
	}
	return it.states[len(it.states)-1].childState(it.forest.Shape, cell.SiblingNumber())
}

func (it *Iterator[P]) descendLeft(sweepLevel int) {
	for !it.isTraversalLeaf(it.current, sweepLevel) {
		st := it.stateForChildrenOf(it.current)
		sibling := st.siblingAt(it.forest.Shape, 0)
		it.states = append(it.states, st)
		it.path = append(it.path, sibling)
		it.current = it.current.ChildCell(sibling)
	}
}

func (it *Iterator[P]) descendRight(sweepLevel int) {
	last := it.forest.Shape.NumChildren() - 1
	for !it.isTraversalLeaf(it.current, sweepLevel) {
		st := it.stateForChildrenOf(it.current)
		sibling := st.siblingAt(it.forest.Shape, last)
		it.states = append(it.states, st)
		it.path = append(it.path, sibling)
		it.current = it.current.ChildCell(sibling)
	}
}

// Next advances to the next cell in traversal order and returns true, or
// returns false and leaves the iterator past-the-end (only Prev is then
// valid).
func (it *Iterator[P]) Next(sweepLevel int) bool {
	if it.current == nil {
		// Before-the-beginning (left by Prev): Next moves to the first cell.
		if it.started && it.rootIdx < 0 {
			return it.ToBegin(sweepLevel)
		}
		return false
	}
	for {
		if it.current.IsRoot() {
			it.rootIdx++
			it.states, it.path = nil, nil
			if it.rootIdx >= len(it.forest.Roots) {
				it.atEnd, it.current = true, nil
				return false
			}
			it.current = it.forest.Roots[it.rootIdx]
			it.descendLeft(sweepLevel)
			return true
		}
		depth := it.current.Level()
		st := it.states[depth-1]
		order := st.orderOf(it.forest.Shape, it.current.SiblingNumber())
		if order+1 < it.forest.Shape.NumChildren() {
			nextSibling := st.siblingAt(it.forest.Shape, order+1)
			parentOct := it.current.ParentOct()
			it.states = it.states[:depth]
			it.path = it.path[:depth-1]
			it.path = append(it.path, nextSibling)
			it.current = parentOct.Child(nextSibling)
			it.descendLeft(sweepLevel)
			return true
		}
		it.states = it.states[:depth-1]
		it.path = it.path[:depth-1]
		it.current = it.current.ParentOct().ParentCell()
	}
}

// Prev is the mirror of Next: it moves to the previous cell in traversal
// order, or returns false and leaves the iterator before-the-beginning
// (only Next is then valid).
func (it *Iterator[P]) Prev(sweepLevel int) bool {
	if it.current == nil {
		// Past-the-end (left by Next): Prev moves to the last cell.
		if it.started && it.rootIdx >= len(it.forest.Roots) {
			return it.ToEnd(sweepLevel)
		}
		return false
	}
	for {
		if it.current.IsRoot() {
			it.rootIdx--
			it.states, it.path = nil, nil
			if it.rootIdx < 0 {
				it.atEnd, it.current = true, nil
				return false
			}
			it.current = it.forest.Roots[it.rootIdx]
			it.descendRight(sweepLevel)
			return true
		}
		depth := it.current.Level()
		st := it.states[depth-1]
		order := st.orderOf(it.forest.Shape, it.current.SiblingNumber())
		if order-1 >= 0 {
			prevSibling := st.siblingAt(it.forest.Shape, order-1)
			parentOct := it.current.ParentOct()
			it.states = it.states[:depth]
			it.path = it.path[:depth-1]
			it.path = append(it.path, prevSibling)
			it.current = parentOct.Child(prevSibling)
			it.descendRight(sweepLevel)
			return true
		}
		it.states = it.states[:depth-1]
		it.path = it.path[:depth-1]
		it.current = it.current.ParentOct().ParentCell()
	}
}

func owned[P CellData](c *Cell[P]) bool {
	return c != nil && c.Indicator().BelongsToThisProc()
}

// OwnedNext advances past every non-owned cell, stopping at the next
// owned cell.
func (it *Iterator[P]) OwnedNext(sweepLevel int) bool {
	for it.Next(sweepLevel) {
		if owned(it.current) {
			return true
		}
	}
	return false
}

// OwnedPrev is the mirror of OwnedNext.
func (it *Iterator[P]) OwnedPrev(sweepLevel int) bool {
	for it.Prev(sweepLevel) {
		if owned(it.current) {
			return true
		}
	}
	return false
}

// ToOwnedBegin is ToBegin followed by OwnedNext if the first cell isn't
// owned.
func (it *Iterator[P]) ToOwnedBegin(sweepLevel int) bool {
	if !it.ToBegin(sweepLevel) {
		return false
	}
	if owned(it.current) {
		return true
	}
	return it.OwnedNext(sweepLevel)
}

// ToOwnedEnd is ToEnd followed by OwnedPrev if the last cell isn't owned.
func (it *Iterator[P]) ToOwnedEnd(sweepLevel int) bool {
	if !it.ToEnd(sweepLevel) {
		return false
	}
	if owned(it.current) {
		return true
	}
	return it.OwnedPrev(sweepLevel)
}

// ToLeaf descends from the current position to its first (reverse=false)
// or last (reverse=true) leaf descendant, without otherwise moving the
// iterator.
func (it *Iterator[P]) ToLeaf(sweepLevel int, reverse bool) bool {
	if it.current == nil {
		return false
	}
	if reverse {
		it.descendRight(sweepLevel)
	} else {
		it.descendLeft(sweepLevel)
	}
	return true
}

// ToOwnedLeaf is ToLeaf restricted to the current position's own subtree:
// it returns the first (or last) owned leaf under the cell the iterator
// was on, or false if none of that subtree is owned (in which case the
// iterator is left on the first cell outside that subtree, or
// past-the-end / before-the-beginning if the traversal ran out).
func (it *Iterator[P]) ToOwnedLeaf(sweepLevel int, reverse bool) bool {
	subtreeRoot := it.current
	if !it.ToLeaf(sweepLevel, reverse) {
		return false
	}
	for !owned(it.current) {
		var ok bool
		if reverse {
			ok = it.Prev(sweepLevel)
		} else {
			ok = it.Next(sweepLevel)
		}
		if !ok || !it.isDescendantOf(subtreeRoot) {
			return false
		}
	}
	return true
}

func (it *Iterator[P]) isDescendantOf(root *Cell[P]) bool {
	for c := it.current; c != nil; {
		if c == root {
			return true
		}
		po := c.ParentOct()
		if po == nil {
			return false
		}
		c = po.ParentCell()
	}
	return false
}

// ToCellId moves the iterator to the cell identified by id. If a cell
// along the path doesn't exist yet, ToCellId splits it to materialize the
// path when create is true (the only mutation a plain traversal
// operation performs), or returns false when create is false.
func (it *Iterator[P]) ToCellId(id cellid.ID, create bool, extrapolate ExtrapolateFunc[P]) bool {
	if id.Root < 0 || id.Root >= len(it.forest.Roots) {
		return false
	}
	it.rootIdx = id.Root
	it.current = it.forest.Roots[id.Root]
	it.states, it.path = nil, nil

	for _, order := range id.Orders {
		st := it.stateForChildrenOf(it.current)
		sibling := st.siblingAt(it.forest.Shape, order)
		if it.current.IsLeaf() {
			if !create {
				return false
			}
			if err := it.current.Split(it.forest.MaxLevel, extrapolate); err != nil {
				return false
			}
		}
		it.states = append(it.states, st)
		it.path = append(it.path, sibling)
		it.current = it.current.ChildCell(sibling)
	}
	it.started, it.atEnd = true, false
	return true
}

// CellIdGt reports whether the iterator's current position sorts after
// id in SFC traversal order.
func (it *Iterator[P]) CellIdGt(id cellid.ID) bool { return cellid.Compare(it.CurrentID(), id) > 0 }

// CellIdGte reports whether the iterator's current position sorts at or
// after id in SFC traversal order.
func (it *Iterator[P]) CellIdGte(id cellid.ID) bool { return cellid.Compare(it.CurrentID(), id) >= 0 }

// CellIdLt reports whether the iterator's current position sorts before
// id in SFC traversal order.
func (it *Iterator[P]) CellIdLt(id cellid.ID) bool { return cellid.Compare(it.CurrentID(), id) < 0 }

// CellIdLte reports whether the iterator's current position sorts at or
// before id in SFC traversal order.
func (it *Iterator[P]) CellIdLte(id cellid.ID) bool { return cellid.Compare(it.CurrentID(), id) <= 0 }
