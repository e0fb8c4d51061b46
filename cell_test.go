// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import "testing"

func oneRootForest(t *testing.T, shape Shape, maxLevel int) *Forest[*ScalarPayload] {
	t.Helper()
	numFaces := 2 * shape.Dimensions()
	boundary := make([]int, numFaces)
	for i := range boundary {
		boundary[i] = -1
	}
	f, err := NewForest[*ScalarPayload](shape, maxLevel, SFCMorton,
		[]RootEntry{{NeighborRoots: boundary}},
		func(rootIndex int) *ScalarPayload { return &ScalarPayload{Value: float64(rootIndex)} },
	)
	if err != nil {
		t.Fatalf("NewForest: %v", err)
	}
	return f
}

func twoRootForestX(t *testing.T, shape Shape, maxLevel int) *Forest[*ScalarPayload] {
	t.Helper()
	dirs := directionsFor(shape).dirs
	posX := indexOfDirection(dirs, Direction{Kind: DirFace, Off: [3]int{1, 0, 0}})
	negX := indexOfDirection(dirs, Direction{Kind: DirFace, Off: [3]int{-1, 0, 0}})
	if posX < 0 || negX < 0 {
		t.Fatalf("shape %+v has no +x/-x face direction", shape)
	}
	numFaces := 2 * shape.Dimensions()
	n0 := make([]int, numFaces)
	n1 := make([]int, numFaces)
	for i := range n0 {
		n0[i], n1[i] = -1, -1
	}
	n0[posX] = 1
	n1[negX] = 0
	f, err := NewForest[*ScalarPayload](shape, maxLevel, SFCMorton,
		[]RootEntry{{NeighborRoots: n0}, {NeighborRoots: n1}},
		func(rootIndex int) *ScalarPayload { return &ScalarPayload{Value: float64(rootIndex)} },
	)
	if err != nil {
		t.Fatalf("NewForest: %v", err)
	}
	return f
}

func TestSplitCreatesChildren(t *testing.T) {
	f := oneRootForest(t, DefaultShape, 3)
	root := f.Roots[0]
	if !root.IsLeaf() {
		t.Fatal("fresh root should be a leaf")
	}
	if err := root.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split: %v", err)
	}
	if root.IsLeaf() {
		t.Fatal("split root should no longer be a leaf")
	}
	children := root.ChildCells()
	if len(children) != DefaultShape.NumChildren() {
		t.Fatalf("got %d children, want %d", len(children), DefaultShape.NumChildren())
	}
	for i, ch := range children {
		if ch.Level() != 1 {
			t.Errorf("child %d level = %d, want 1", i, ch.Level())
		}
		if !ch.IsLeaf() {
			t.Errorf("child %d should be a fresh leaf", i)
		}
		if ch.ParentOct().ParentCell() != root {
			t.Errorf("child %d's parent oct does not point back to root", i)
		}
	}
}

func TestSplitPastMaxLevelFails(t *testing.T) {
	f := oneRootForest(t, DefaultShape, 0)
	if err := f.Roots[0].Split(f.MaxLevel, ExtrapolateScalar); err == nil {
		t.Error("expected error splitting at max level")
	}
}

func TestSplitAlreadySplitFails(t *testing.T) {
	f := oneRootForest(t, DefaultShape, 3)
	root := f.Roots[0]
	if err := root.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split: %v", err)
	}
	if err := root.Split(f.MaxLevel, ExtrapolateScalar); err == nil {
		t.Error("expected error splitting an already-split cell")
	}
}

func TestExtrapolateCopiesPayload(t *testing.T) {
	f := oneRootForest(t, DefaultShape, 2)
	root := f.Roots[0]
	root.SetPayload(&ScalarPayload{Value: 42})
	if err := root.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split: %v", err)
	}
	for _, ch := range root.ChildCells() {
		if ch.Payload().Value != 42 {
			t.Errorf("child payload = %v, want 42", ch.Payload().Value)
		}
	}
}

// TestCrossRootTwoOneCascade exercises the 2:1 split propagation
// across a root boundary: splitting a cell two levels deeper than its
// neighbor must first cascade-split that neighbor.
func TestCrossRootTwoOneCascade(t *testing.T) {
	shape := Shape{N1: 2, N2: 2, N3: 1}
	f := twoRootForestX(t, shape, 3)
	root0, root1 := f.Roots[0], f.Roots[1]

	if err := root0.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split root0: %v", err)
	}

	dirs := directionsFor(shape).dirs
	posX := indexOfDirection(dirs, Direction{Kind: DirFace, Off: [3]int{1, 0, 0}})
	touching := directionsFor(shape).touching[posX]
	if len(touching) == 0 {
		t.Fatal("no siblings touch the +x face")
	}
	// Any sibling touching +x is adjacent to root1 (still a leaf at level 0).
	boundaryChild := root0.ChildCell(touching[0])

	if root1.Level() != 0 || !root1.IsLeaf() {
		t.Fatal("root1 should still be an unsplit leaf before the cascade")
	}
	if err := boundaryChild.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split boundaryChild: %v", err)
	}
	if root1.IsLeaf() {
		t.Error("splitting boundaryChild to level 2 should have cascade-split root1 to satisfy 2:1")
	}
	if boundaryChild.IsLeaf() {
		t.Error("boundaryChild itself should be split")
	}
	assertTwoToOneBalanced(t, f)
}

// assertTwoToOneBalanced checks the 2:1 invariant over every pair of
// adjacent leaves.
func assertTwoToOneBalanced[P CellData](t *testing.T, f *Forest[P]) {
	t.Helper()
	for _, leaf := range f.Leaves() {
		leaf.ApplyToNeighborLeafCells(func(this, neighbor *Cell[P], dir Direction) {
			if neighbor == nil {
				return
			}
			diff := this.Level() - neighbor.Level()
			if diff < -1 || diff > 1 {
				t.Errorf("2:1 violated: cell at level %d has neighbor at level %d (dir %+v)", this.Level(), neighbor.Level(), dir)
			}
		}, nil)
	}
}

func TestGetNeighborCellAcrossRoots(t *testing.T) {
	shape := Shape{N1: 2, N2: 2, N3: 1}
	f := twoRootForestX(t, shape, 2)
	root0, root1 := f.Roots[0], f.Roots[1]

	dirs := directionsFor(shape).dirs
	posX := indexOfDirection(dirs, Direction{Kind: DirFace, Off: [3]int{1, 0, 0}})
	negX := indexOfDirection(dirs, Direction{Kind: DirFace, Off: [3]int{-1, 0, 0}})

	if got := root0.GetNeighborCell(dirs[posX]); got != root1 {
		t.Errorf("root0's +x neighbor = %v, want root1", got)
	}
	if got := root1.GetNeighborCell(dirs[negX]); got != root0 {
		t.Errorf("root1's -x neighbor = %v, want root0", got)
	}
	if got := root0.GetNeighborCell(dirs[negX]); got != nil {
		t.Errorf("root0's -x neighbor should be the domain boundary (nil), got %v", got)
	}
}

func TestApplyToNeighborLeafCellsFinerNeighbor(t *testing.T) {
	shape := Shape{N1: 2, N2: 2, N3: 1}
	f := oneRootForest(t, shape, 3)
	root := f.Roots[0]
	if err := root.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split root: %v", err)
	}
	c0, c1 := root.ChildCell(0), root.ChildCell(1)
	if err := c1.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split c1: %v", err)
	}

	dirs := directionsFor(shape).dirs
	posX := indexOfDirection(dirs, Direction{Kind: DirFace, Off: [3]int{1, 0, 0}})

	var touched []*Cell[*ScalarPayload]
	c0.ApplyToNeighborLeafCells(func(_, neighbor *Cell[*ScalarPayload], _ Direction) {
		if neighbor != nil {
			touched = append(touched, neighbor)
		}
	}, []Direction{dirs[posX]})

	if len(touched) != 2 {
		t.Fatalf("expected 2 finer leaf neighbors across the +x face, got %d", len(touched))
	}
	for _, n := range touched {
		if n.Level() != 2 {
			t.Errorf("neighbor level = %d, want 2", n.Level())
		}
		if n.ParentOct().ParentCell() != c1 {
			t.Errorf("neighbor %v is not a child of c1", n)
		}
	}
}

func TestCoarsenCollapsesAllLeafChildren(t *testing.T) {
	f := oneRootForest(t, DefaultShape, 2)
	root := f.Roots[0]
	if err := root.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split: %v", err)
	}
	root.SetActionRecursive(ActionCoarsen)

	if !root.Coarsen(0, InterpolateScalar) {
		t.Fatal("Coarsen should have succeeded")
	}
	if !root.IsLeaf() {
		t.Error("root should be a leaf again after coarsening")
	}
}

func TestCoarsenBlockedByFinerUnmarkedNeighbor(t *testing.T) {
	shape := Shape{N1: 2, N2: 2, N3: 1}
	f := oneRootForest(t, shape, 3)
	root := f.Roots[0]
	if err := root.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split root: %v", err)
	}
	c0, c1 := root.ChildCell(0), root.ChildCell(1)
	if err := c0.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split c0: %v", err)
	}
	if err := c1.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split c1: %v", err)
	}
	c0.SetActionRecursive(ActionCoarsen)

	if c0.Coarsen(0, InterpolateScalar) {
		t.Fatal("Coarsen should be blocked by c1's unmarked finer leaves")
	}
	if c0.IsLeaf() {
		t.Error("c0 must remain split after a blocked coarsen attempt")
	}

	c1.SetActionRecursive(ActionCoarsen)
	if !c0.Coarsen(0, InterpolateScalar) {
		t.Fatal("Coarsen should succeed once the neighboring finer leaves are also marked Coarsen")
	}
}

func TestCoarsenBelowMinLevelIsNoop(t *testing.T) {
	f := oneRootForest(t, DefaultShape, 2)
	root := f.Roots[0]
	if err := root.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split: %v", err)
	}
	root.SetActionRecursive(ActionCoarsen)
	if root.Coarsen(1, InterpolateScalar) {
		t.Error("Coarsen should be a no-op when the parent level is below minLevel")
	}
}

func TestCoarsenNonLeafChildrenIsNoop(t *testing.T) {
	f := oneRootForest(t, DefaultShape, 3)
	root := f.Roots[0]
	if err := root.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split: %v", err)
	}
	child := root.ChildCell(0)
	if err := child.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split child: %v", err)
	}
	root.SetActionRecursive(ActionCoarsen)
	if root.Coarsen(0, InterpolateScalar) {
		t.Error("Coarsen must be a no-op when a child is not a leaf")
	}
}

func TestInterpolateAveragesChildren(t *testing.T) {
	f := oneRootForest(t, DefaultShape, 2)
	root := f.Roots[0]
	if err := root.Split(f.MaxLevel, ExtrapolateScalar); err != nil {
		t.Fatalf("Split: %v", err)
	}
	sum := 0.0
	for i, ch := range root.ChildCells() {
		ch.SetPayload(&ScalarPayload{Value: float64(i)})
		sum += float64(i)
	}
	root.SetActionRecursive(ActionCoarsen)
	if !root.Coarsen(0, InterpolateScalar) {
		t.Fatal("Coarsen should have succeeded")
	}
	want := sum / float64(DefaultShape.NumChildren())
	if root.Payload().Value != want {
		t.Errorf("interpolated payload = %v, want %v", root.Payload().Value, want)
	}
}
