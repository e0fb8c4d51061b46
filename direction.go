// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import (
	"fmt"
	"sync"
)

// DirKind classifies a Direction by how many axes it moves along: a face
// moves along exactly one axis, an edge along exactly two (3-D only), a
// corner along every active axis.
type DirKind byte

const (
	DirFace DirKind = iota
	DirEdge
	DirCorner
)

// Direction is a generalized face/edge/corner offset: one step of -1, 0 or
// +1 per active axis, never all zero.
type Direction struct {
	Kind DirKind
	// Off holds one entry per axis (0,1,2), values in {-1,0,1}; an entry is
	// always 0 for an inactive axis.
	Off [3]int
}

// directionTable is the full, precomputed set of tables for one Shape:
// every direction total-ordered (faces first, then edges, then corners),
// plus the per-(sibling,direction) neighbor lookup and the per-direction
// "touches this face" sibling sets.
type directionTable struct {
	shape Shape
	dirs  []Direction

	// neighborInfo[sibling][dir] gives, for a child at `sibling` inside its
	// oct, whether the direct neighbor in `dir` lives in the same oct
	// (sameParent=true, neighborSibling valid) or must be reached by
	// exiting through the oct face (sameParent=false, neighborSibling names
	// the mirrored sibling in the neighboring oct).
	neighborInfo [][]neighborInfo

	// touching[dir] is the set of sibling indices whose position inside the
	// oct touches direction dir (i.e. is on the oct's boundary in that
	// direction).
	touching [][]int

	// decompose[dir] lists the face directions (indices into dirs) an
	// edge/corner direction decomposes into, in axis order. Empty for faces.
	decompose [][]int
}

type neighborInfo struct {
	sameParent      bool
	neighborSibling int
}

var (
	dirTableCache   = map[Shape]*directionTable{}
	dirTableCacheMu sync.Mutex
)

// directionsFor returns the cached direction table for shape, building it on
// first use. Tables are pure functions of Shape, so caching is safe and
// avoids rebuilding the O(3^d * numChildren) tables on every Cell method
// call.
func directionsFor(shape Shape) *directionTable {
	dirTableCacheMu.Lock()
	defer dirTableCacheMu.Unlock()

	if t, ok := dirTableCache[shape]; ok {
		return t
	}
	t := buildDirectionTable(shape)
	dirTableCache[shape] = t
	return t
}

func buildDirectionTable(shape Shape) *directionTable {
	if err := shape.Validate(); err != nil {
		panic(err)
	}

	axes := shape.activeAxes()
	dirs := enumerateDirections(axes)

	t := &directionTable{shape: shape, dirs: dirs}

	n := shape.NumChildren()
	t.neighborInfo = make([][]neighborInfo, n)
	for s := 0; s < n; s++ {
		t.neighborInfo[s] = make([]neighborInfo, len(dirs))
		for d, dir := range dirs {
			t.neighborInfo[s][d] = computeNeighborInfo(shape, s, dir)
		}
	}

	t.touching = make([][]int, len(dirs))
	for d, dir := range dirs {
		t.touching[d] = computeTouching(shape, dir)
	}

	t.decompose = make([][]int, len(dirs))
	for d, dir := range dirs {
		if dir.Kind == DirFace {
			continue
		}
		t.decompose[d] = decomposeDirection(dirs, dir)
	}

	return t
}

// enumerateDirections builds every nonzero {-1,0,1}^axes combination,
// ordered faces (exactly one nonzero axis), then edges (exactly two), then
// corners (every active axis nonzero) -- totaling 3^d-1 directions
// (2, 8, 26 for d=1,2,3).
func enumerateDirections(axes []int) []Direction {
	var faces, edges, corners []Direction

	var rec func(idx int, off [3]int, nonzero int)
	rec = func(idx int, off [3]int, nonzero int) {
		if idx == len(axes) {
			if nonzero == 0 {
				return
			}
			d := Direction{Off: off}
			switch {
			case nonzero == len(axes):
				d.Kind = DirCorner
			case nonzero == 1:
				d.Kind = DirFace
			default:
				d.Kind = DirEdge
			}
			switch d.Kind {
			case DirFace:
				faces = append(faces, d)
			case DirEdge:
				edges = append(edges, d)
			case DirCorner:
				corners = append(corners, d)
			}
			return
		}
		axis := axes[idx]
		for _, v := range []int{-1, 0, 1} {
			next := off
			next[axis] = v
			nz := nonzero
			if v != 0 {
				nz++
			}
			rec(idx+1, next, nz)
		}
	}
	rec(0, [3]int{}, 0)

	out := make([]Direction, 0, len(faces)+len(edges)+len(corners))
	out = append(out, faces...)
	out = append(out, edges...)
	out = append(out, corners...)
	return out
}

func computeNeighborInfo(shape Shape, sibling int, dir Direction) neighborInfo {
	c := shape.siblingToCoords(sibling)
	nc := c
	exit := false
	for a := 0; a < 3; a++ {
		if dir.Off[a] == 0 {
			continue
		}
		nc[a] = c[a] + dir.Off[a]
		if nc[a] < 0 {
			nc[a] = shape.axisLen(a) - 1
			exit = true
		} else if nc[a] >= shape.axisLen(a) {
			nc[a] = 0
			exit = true
		}
	}
	return neighborInfo{sameParent: !exit, neighborSibling: shape.coordsToSibling(nc)}
}

// computeTouching returns the siblings whose position touches the oct
// boundary in direction dir: the children lying on the far side of the
// oct along every axis dir moves on (a single child for a corner).
func computeTouching(shape Shape, dir Direction) []int {
	var out []int
	for s := 0; s < shape.NumChildren(); s++ {
		c := shape.siblingToCoords(s)
		touches := true
		for a := 0; a < 3; a++ {
			if (dir.Off[a] < 0 && c[a] != 0) || (dir.Off[a] > 0 && c[a] != shape.axisLen(a)-1) {
				touches = false
			}
		}
		if touches {
			out = append(out, s)
		}
	}
	return out
}

// decomposeDirection finds, for an edge or corner direction, the indices
// (into dirs) of its single-axis face components, in axis order -- the
// decomposition the edge and corner neighbor walks are built on.
func decomposeDirection(dirs []Direction, dir Direction) []int {
	var out []int
	for a := 0; a < 3; a++ {
		if dir.Off[a] == 0 {
			continue
		}
		var face Direction
		face.Kind = DirFace
		face.Off[a] = dir.Off[a]
		idx := indexOfDirection(dirs, face)
		if idx < 0 {
			panic(fmt.Sprintf("tamra: face component %+v not found while decomposing %+v", face, dir))
		}
		out = append(out, idx)
	}
	return out
}

func indexOfDirection(dirs []Direction, want Direction) int {
	for i, d := range dirs {
		if d.Off == want.Off {
			return i
		}
	}
	return -1
}

// NumDirections returns the total number of face+edge+corner directions for
// shape (2, 8 or 26 for 1/2/3-D).
func NumDirections(shape Shape) int {
	return len(directionsFor(shape).dirs)
}
