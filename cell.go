// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import "fmt"

// Cell is a node of the forest: either a leaf carrying a user payload, or an
// interior cell owning a child Oct.
type Cell[P CellData] struct {
	shape Shape

	parentOct *Oct[P]
	childOct  *Oct[P]

	indicator Indicator
	payload   P

	// siblingIndex is this cell's position in parentOct.children; for a
	// root cell (parentOct == nil) it is unused and rootIndex applies
	// instead.
	siblingIndex int
	rootIndex    int

	// rootNeighbors holds the 2*Dimensions() face-adjacency wiring from the
	// RootEntry table; only valid when parentOct == nil.
	rootNeighbors []*Cell[P]
}

// newRootCell constructs an unattached root cell; callers wire
// rootNeighbors via Forest construction.
func newRootCell[P CellData](shape Shape, rootIndex int) *Cell[P] {
	return &Cell[P]{
		shape:     shape,
		rootIndex: rootIndex,
		indicator: newIndicator(OwnershipThisProc, ActionNone),
	}
}

// IsLeaf reports whether the cell has no child oct.
func (c *Cell[P]) IsLeaf() bool { return c.childOct == nil }

// IsRoot reports whether the cell has no parent oct.
func (c *Cell[P]) IsRoot() bool { return c.parentOct == nil }

// Level returns the cell's level: level(cell) = level(parent oct), and
// roots are level 0.
func (c *Cell[P]) Level() int {
	if c.parentOct == nil {
		return 0
	}
	return c.parentOct.level
}

// ChildOct returns the cell's child oct, or nil for a leaf.
func (c *Cell[P]) ChildOct() *Oct[P] { return c.childOct }

// ParentOct returns the cell's parent oct, or nil for a root.
func (c *Cell[P]) ParentOct() *Oct[P] { return c.parentOct }

// ChildCell returns a specific child cell by sibling number.
func (c *Cell[P]) ChildCell(sibling int) *Cell[P] {
	if c.childOct == nil {
		return nil
	}
	return c.childOct.children[sibling]
}

// ChildCells returns every child cell in canonical sibling order, or nil for
// a leaf.
func (c *Cell[P]) ChildCells() []*Cell[P] {
	if c.childOct == nil {
		return nil
	}
	return c.childOct.children
}

// SiblingNumber returns this cell's position in its parent oct (or its root
// index, for a root cell).
func (c *Cell[P]) SiblingNumber() int {
	if c.parentOct == nil {
		return c.rootIndex
	}
	return c.siblingIndex
}

// Payload returns the cell's current payload value.
func (c *Cell[P]) Payload() P { return c.payload }

// SetPayload overwrites the cell's payload value.
func (c *Cell[P]) SetPayload(p P) { c.payload = p }

// Shape returns the forest-wide split shape this cell belongs to.
func (c *Cell[P]) Shape() Shape { return c.shape }

// Split creates the child oct of a leaf cell, allocating shape.NumChildren()
// children at level+1 and copying/extrapolating the payload through
// extrapolate. Before creating the oct, every direct-neighbor direction
// (face, edge and corner) whose neighbor is coarser than this cell is
// recursively split first, cascading the 2:1 invariant.
//
// Split fails if the cell is already split or level == maxLevel.
func (c *Cell[P]) Split(maxLevel int, extrapolate ExtrapolateFunc[P]) error {
	if !c.IsLeaf() {
		return fmt.Errorf("tamra: split: cell at level %d is already split", c.Level())
	}
	if c.Level() >= maxLevel {
		return fmt.Errorf("tamra: split: cell at level %d is already at max level %d", c.Level(), maxLevel)
	}

	for _, dir := range directionsFor(c.shape).dirs {
		neighbor := c.GetNeighborCell(dir)
		if neighbor != nil && neighbor.Level() < c.Level() {
			if err := neighbor.Split(maxLevel, extrapolate); err != nil {
				return fmt.Errorf("tamra: split: 2:1 cascade: %w", err)
			}
		}
	}

	c.childOct = newOct(c.shape, c)
	if extrapolate != nil {
		extrapolate(c)
	}
	return nil
}

// SplitRoot is Split for a root cell: a root has no parent oct, so the
// new oct's children back-reference the root cell itself. SplitRoot only
// adds the root-only guard over Split.
func (c *Cell[P]) SplitRoot(maxLevel int, extrapolate ExtrapolateFunc[P]) error {
	if !c.IsRoot() {
		return fmt.Errorf("tamra: splitRoot: cell is not a root")
	}
	return c.Split(maxLevel, extrapolate)
}

// Coarsen collapses c's child oct if every child is a leaf marked
// ActionCoarsen, c.Level() >= minLevel, and every face/edge/corner neighbor
// leaf would still satisfy 2:1 after the collapse. It returns whether the
// collapse happened; every other case is a no-op, never an error.
func (c *Cell[P]) Coarsen(minLevel int, interpolate InterpolateFunc[P]) bool {
	if c.IsLeaf() {
		return false
	}
	if c.Level() < minLevel {
		return false
	}
	for _, ch := range c.childOct.children {
		if !ch.IsLeaf() || !ch.indicator.IsToCoarsen() {
			return false
		}
	}
	for _, dir := range directionsFor(c.shape).dirs {
		for _, leaf := range c.neighborLeaves(dir) {
			if leaf.Level() > c.Level()+1 {
				return false
			}
			if leaf.Level() > c.Level() && !leaf.indicator.IsToCoarsen() {
				return false
			}
		}
	}

	if interpolate != nil {
		interpolate(c)
	}
	c.childOct = nil
	c.indicator = c.indicator.withAction(ActionNone)
	return true
}

// directFaceNeighbor resolves a single face direction without the
// edge/corner decomposition GetNeighborCell performs; Oct construction uses
// it directly to seed its neighbor array.
func (c *Cell[P]) directFaceNeighbor(dir Direction) *Cell[P] {
	if c.parentOct == nil {
		idx := indexOfDirection(directionsFor(c.shape).dirs, dir)
		if idx < 0 || idx >= len(c.rootNeighbors) {
			return nil
		}
		return c.rootNeighbors[idx]
	}

	table := directionsFor(c.shape)
	dirIdx := indexOfDirection(table.dirs, dir)
	info := table.neighborInfo[c.siblingIndex][dirIdx]
	if info.sameParent {
		return c.parentOct.children[info.neighborSibling]
	}

	octNeighbor := c.parentOct.neighbors[dirIdx]
	if octNeighbor == nil {
		return nil
	}
	if octNeighbor.IsLeaf() {
		return octNeighbor
	}
	return octNeighbor.childOct.children[info.neighborSibling]
}

// GetNeighborCell returns the neighbor cell in direction dir: the same-level
// neighbor if one exists, otherwise the coarser ancestor at the interface,
// otherwise the matching sibling reached via an oct-face transition,
// otherwise nil (domain boundary). Edge and corner directions are resolved
// by combining two or three sequential face walks.
func (c *Cell[P]) GetNeighborCell(dir Direction) *Cell[P] {
	if dir.Kind == DirFace {
		return c.directFaceNeighbor(dir)
	}

	table := directionsFor(c.shape)
	dirIdx := indexOfDirection(table.dirs, dir)
	cur := c
	for _, faceIdx := range table.decompose[dirIdx] {
		if cur == nil {
			return nil
		}
		cur = cur.directFaceNeighbor(table.dirs[faceIdx])
	}
	return cur
}

// neighborLeaves gathers every leaf cell adjacent to c from direction dir:
// none if the neighbor is absent (domain boundary), one if it exists at the
// same level or coarser, otherwise the neighbor's leaves that touch the
// shared face, edge or corner (shape.NumChildren()/axisLen(axis) of them
// across a face when the neighbor subtree is one level finer).
func (c *Cell[P]) neighborLeaves(dir Direction) []*Cell[P] {
	neighbor := c.GetNeighborCell(dir)
	if neighbor == nil {
		return nil
	}
	return gatherTouchingLeaves(neighbor, oppositeDirection(dir))
}

func gatherTouchingLeaves[P CellData](cell *Cell[P], touchDir Direction) []*Cell[P] {
	if cell.IsLeaf() {
		return []*Cell[P]{cell}
	}
	table := directionsFor(cell.shape)
	touchIdx := indexOfDirection(table.dirs, touchDir)
	var out []*Cell[P]
	for _, sib := range table.touching[touchIdx] {
		out = append(out, gatherTouchingLeaves(cell.childOct.children[sib], touchDir)...)
	}
	return out
}

func oppositeDirection(dir Direction) Direction {
	out := dir
	for a := 0; a < 3; a++ {
		out.Off[a] = -dir.Off[a]
	}
	return out
}

// ApplyToNeighborLeafCells invokes f(c, neighbor, dir) once per leaf cell
// adjacent to c in any of dirs (or every direction, if dirs is nil); f is
// called with neighbor == nil when dir exits the domain.
func (c *Cell[P]) ApplyToNeighborLeafCells(f func(this, neighbor *Cell[P], dir Direction), dirs []Direction) {
	if dirs == nil {
		dirs = directionsFor(c.shape).dirs
	}
	for _, dir := range dirs {
		leaves := c.neighborLeaves(dir)
		if len(leaves) == 0 {
			f(c, nil, dir)
			continue
		}
		for _, leaf := range leaves {
			f(c, leaf, dir)
		}
	}
}
