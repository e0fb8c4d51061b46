// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package comm

import "context"

// LocalComm is the N=1 communicator: every collective is a no-op that
// returns the local buffer unchanged.
type LocalComm struct{}

func (LocalComm) Rank() int { return 0 }
func (LocalComm) Size() int { return 1 }

func (LocalComm) AllGather(_ context.Context, local float64) ([]float64, error) {
	return []float64{local}, nil
}

func (LocalComm) AllGatherV(_ context.Context, local []float64) ([][]float64, error) {
	return [][]float64{local}, nil
}

func (LocalComm) AllToAll(_ context.Context, send []float64) ([]float64, error) {
	return send, nil
}

func (LocalComm) AllToAllV(_ context.Context, send [][]byte) ([][]byte, error) {
	return send, nil
}

func (LocalComm) AllReduce(_ context.Context, local float64, _ ReduceOp) (float64, error) {
	return local, nil
}

func (LocalComm) Broadcast(_ context.Context, _ int, value []byte) ([]byte, error) {
	return value, nil
}

func (LocalComm) Gather(_ context.Context, _ int, local float64) ([]float64, error) {
	return []float64{local}, nil
}
