// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package tamra provides a distributed, adaptive tree-structured mesh for
// scientific computing over 1/2/3-dimensional Cartesian domains.
//
// A forest of root cells is recursively subdivided into a tree of octs
// (generalized 2^d children blocks), partitioned across the ranks of a
// message-passing cluster, kept refinement-balanced (2:1) and load-balanced,
// and surrounded with a one-cell ghost layer so stencil operators on leaf
// cells can reach remote neighbors.
//
// The package exposes five distributed managers built on a shared Cell/Oct
// topology and a space-filling-curve iterator: MeshAtMinLevel, Refine,
// Coarsen, LoadBalance and BuildGhostLayer. User payload, transport and
// persistence are deliberately out of scope: payload is modeled as the
// CellData capability set, transport as the Comm interface in the internal
// comm package.
package tamra
