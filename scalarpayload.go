// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

// ScalarPayload is a minimal CellData implementation carrying a single
// float64 value: tests and cmd/tamractl's demo driver use it so they
// don't need a bespoke payload type of their own. Load reports a
// uniform cost of 1 per leaf, so Balance treats cell count as load.
type ScalarPayload struct {
	Value float64
}

func (p *ScalarPayload) ToVectorOfData() []float64 { return []float64{p.Value} }

func (p *ScalarPayload) FromVectorOfData(data []float64) { p.Value = data[0] }

func (p *ScalarPayload) DataSize() uint { return 1 }

func (p *ScalarPayload) Load(isLeaf bool) float64 {
	if !isLeaf {
		return 0
	}
	return 1
}

// ExtrapolateScalar copies a parent's value unchanged into every newly
// split child.
func ExtrapolateScalar(cell *Cell[*ScalarPayload]) {
	parentValue := cell.Payload().Value
	for _, ch := range cell.ChildCells() {
		ch.SetPayload(&ScalarPayload{Value: parentValue})
	}
}

// InterpolateScalar averages the children's values back into the parent
// before the child oct is discarded.
func InterpolateScalar(cell *Cell[*ScalarPayload]) {
	children := cell.ChildCells()
	sum := 0.0
	for _, ch := range children {
		sum += ch.Payload().Value
	}
	cell.SetPayload(&ScalarPayload{Value: sum / float64(len(children))})
}
