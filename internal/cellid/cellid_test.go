// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package cellid

import (
	"reflect"
	"testing"
)

func TestCompareTotalOrder(t *testing.T) {
	cases := []struct {
		name string
		a, b ID
		want int
	}{
		{"different roots", ID{Root: 0}, ID{Root: 1}, -1},
		{"equal", ID{Root: 0, Orders: []int{1, 2}}, ID{Root: 0, Orders: []int{1, 2}}, 0},
		{"diverge at level 1", ID{Root: 0, Orders: []int{1, 2}}, ID{Root: 0, Orders: []int{2, 0}}, -1},
		{"ancestor sorts before descendant", ID{Root: 0, Orders: []int{1}}, ID{Root: 0, Orders: []int{1, 2}}, -1},
		{"descendant sorts after ancestor", ID{Root: 0, Orders: []int{1, 2}}, ID{Root: 0, Orders: []int{1}}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(tc.a, tc.b); got != tc.want {
				t.Errorf("Compare(%+v, %+v) = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestIsAncestorOf(t *testing.T) {
	a := ID{Root: 0, Orders: []int{1}}
	b := ID{Root: 0, Orders: []int{1, 2}}
	if !IsAncestorOf(a, b) {
		t.Error("expected a to be an ancestor of b")
	}
	if IsAncestorOf(b, a) {
		t.Error("descendant must not be reported as ancestor of its own ancestor")
	}
	if IsAncestorOf(a, a) {
		t.Error("a cell is not a strict ancestor of itself")
	}
}

func TestParentChildRoundTrip(t *testing.T) {
	id := ID{Root: 2, Orders: []int{0, 3, 1}}
	child := Child(id, 5)
	if !reflect.DeepEqual(child.Orders, []int{0, 3, 1, 5}) {
		t.Errorf("Child() = %+v, want orders [0 3 1 5]", child)
	}
	parent, ok := Parent(child)
	if !ok {
		t.Fatal("Parent() reported no parent for a non-root id")
	}
	if !reflect.DeepEqual(parent, id) {
		t.Errorf("Parent(Child(id)) = %+v, want %+v", parent, id)
	}
	if _, ok := Parent(ID{Root: 0}); ok {
		t.Error("Parent() of a root id should report false")
	}
}

func TestInPlaceNavigation(t *testing.T) {
	id := ID{Root: 3}
	id.ToChild(2)
	id.ToChild(1)
	if !reflect.DeepEqual(id.Orders, []int{2, 1}) {
		t.Fatalf("after ToChild twice: orders = %v, want [2 1]", id.Orders)
	}
	if !id.ToParent() {
		t.Fatal("ToParent should succeed on a non-root id")
	}
	if !reflect.DeepEqual(id.Orders, []int{2}) {
		t.Errorf("after ToParent: orders = %v, want [2]", id.Orders)
	}
	id.ToRoot()
	if len(id.Orders) != 0 || id.Root != 3 {
		t.Errorf("after ToRoot: %+v, want root 3 with empty path", id)
	}
	if id.ToParent() {
		t.Error("ToParent on a root id should report false")
	}
	id.ToChild(0)
	id.Reset()
	if id.Root != 0 || len(id.Orders) != 0 {
		t.Errorf("after Reset: %+v, want zero id", id)
	}
}

// TestPlainRoundTrip round-trips order paths through the plain encoding.
func TestPlainRoundTrip(t *testing.T) {
	paths := []ID{
		{Root: 0, Orders: nil},
		{Root: 1, Orders: []int{0}},
		{Root: 3, Orders: []int{7, 2, 5, 0, 1}},
	}
	for _, id := range paths {
		buf := EncodePlain(id)
		got, err := DecodePlain(buf)
		if err != nil {
			t.Fatalf("DecodePlain: %v", err)
		}
		if got.Root != id.Root || !reflect.DeepEqual(normalize(got.Orders), normalize(id.Orders)) {
			t.Errorf("plain round trip: got %+v, want %+v", got, id)
		}
	}
}

// TestBitStackedRoundTrip round-trips order paths through the
// bit-stacked encoding.
func TestBitStackedRoundTrip(t *testing.T) {
	const numChildren = 8
	paths := []ID{
		{Root: 0, Orders: nil},
		{Root: 1, Orders: []int{0}},
		{Root: 2, Orders: []int{7, 2, 5, 0, 1, 6}},
	}
	for _, id := range paths {
		buf, err := EncodeBitStacked(id, numChildren)
		if err != nil {
			t.Fatalf("EncodeBitStacked: %v", err)
		}
		got, err := DecodeBitStacked(buf, numChildren)
		if err != nil {
			t.Fatalf("DecodeBitStacked: %v", err)
		}
		if got.Root != id.Root || !reflect.DeepEqual(normalize(got.Orders), normalize(id.Orders)) {
			t.Errorf("bit-stacked round trip: got %+v, want %+v", got, id)
		}
	}
}

func normalize(orders []int) []int {
	if orders == nil {
		return []int{}
	}
	return orders
}

func TestBitsNeeded(t *testing.T) {
	cases := []struct {
		numChildren int
		want        int
	}{
		{1, 1},
		{2, 1},
		{4, 2},
		{8, 3},
		{5, 3},
	}
	for _, tc := range cases {
		if got := bitsNeeded(tc.numChildren); got != tc.want {
			t.Errorf("bitsNeeded(%d) = %d, want %d", tc.numChildren, got, tc.want)
		}
	}
}
