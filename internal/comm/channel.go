// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package comm

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc"
)

// hub is the shared rendezvous point for one group of ChannelComm ranks.
// Every collective call blocks the calling goroutine until all n ranks
// have arrived for the current generation, then hands back everyone's
// contribution.
type hub struct {
	n int

	mu      sync.Mutex
	cond    *sync.Cond
	gen     int
	arrived int
	buf     []any

	lastGen    int
	lastResult []any
}

func newHub(n int) *hub {
	h := &hub{n: n, buf: make([]any, n)}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *hub) rendezvous(rank int, contribution any) []any {
	h.mu.Lock()
	defer h.mu.Unlock()

	myGen := h.gen
	h.buf[rank] = contribution
	h.arrived++
	if h.arrived == h.n {
		result := make([]any, h.n)
		copy(result, h.buf)
		h.buf = make([]any, h.n)
		h.arrived = 0
		h.gen++
		h.lastGen = myGen
		h.lastResult = result
		h.cond.Broadcast()
		return result
	}
	for h.gen == myGen {
		h.cond.Wait()
	}
	if h.lastGen != myGen {
		panic("tamra/comm: rendezvous generation mismatch: a rank called a different collective, or out of step with its peers")
	}
	return h.lastResult
}

// ChannelComm simulates an N-rank SPMD group as N goroutines in the same
// process, exchanging Go values directly rather than serialized bytes --
// suitable for tests and the demo CLI's num_procs setting, not a real
// distributed transport. Every rank in a group must
// call collectives in the same order. A rank that makes an extra or a
// missing call is not detected and leaves its peers blocked; ranks that
// pass different value types to the same rendezvous panic on the type
// assertion.
type ChannelComm struct {
	rank int
	size int
	hub  *hub
}

// NewChannelGroup builds size ChannelComm handles sharing one hub, one per
// simulated rank.
func NewChannelGroup(size int) []*ChannelComm {
	if size < 1 {
		panic("tamra/comm: channel group size must be >= 1")
	}
	h := newHub(size)
	out := make([]*ChannelComm, size)
	for r := 0; r < size; r++ {
		out[r] = &ChannelComm{rank: r, size: size, hub: h}
	}
	return out
}

// RunRanks launches fn concurrently for each of n simulated ranks sharing
// one ChannelComm group, using conc.WaitGroup so a panic in any rank's
// goroutine propagates to the caller instead of hanging the others.
func RunRanks(n int, fn func(rank int, c Comm)) {
	comms := NewChannelGroup(n)
	var wg conc.WaitGroup
	for r := 0; r < n; r++ {
		r := r
		wg.Go(func() { fn(r, comms[r]) })
	}
	wg.Wait()
}

func (c *ChannelComm) Rank() int { return c.rank }
func (c *ChannelComm) Size() int { return c.size }

func (c *ChannelComm) AllGather(_ context.Context, local float64) ([]float64, error) {
	raw := c.hub.rendezvous(c.rank, local)
	out := make([]float64, c.size)
	for i, v := range raw {
		out[i] = v.(float64)
	}
	return out, nil
}

func (c *ChannelComm) AllGatherV(_ context.Context, local []float64) ([][]float64, error) {
	raw := c.hub.rendezvous(c.rank, local)
	out := make([][]float64, c.size)
	for i, v := range raw {
		out[i], _ = v.([]float64)
	}
	return out, nil
}

func (c *ChannelComm) AllToAll(_ context.Context, send []float64) ([]float64, error) {
	if len(send) != c.size {
		return nil, fmt.Errorf("tamra/comm: alltoall: send length %d != group size %d", len(send), c.size)
	}
	raw := c.hub.rendezvous(c.rank, send)
	out := make([]float64, c.size)
	for src, v := range raw {
		out[src] = v.([]float64)[c.rank]
	}
	return out, nil
}

func (c *ChannelComm) AllToAllV(_ context.Context, send [][]byte) ([][]byte, error) {
	if len(send) != c.size {
		return nil, fmt.Errorf("tamra/comm: alltoallv: send length %d != group size %d", len(send), c.size)
	}
	raw := c.hub.rendezvous(c.rank, send)
	out := make([][]byte, c.size)
	for src, v := range raw {
		out[src] = v.([][]byte)[c.rank]
	}
	return out, nil
}

func (c *ChannelComm) AllReduce(_ context.Context, local float64, op ReduceOp) (float64, error) {
	raw := c.hub.rendezvous(c.rank, local)
	result := raw[0].(float64)
	for _, v := range raw[1:] {
		f := v.(float64)
		switch op {
		case OpSum:
			result += f
		case OpMin:
			if f < result {
				result = f
			}
		case OpAnd:
			if f == 0 || result == 0 {
				result = 0
			} else {
				result = 1
			}
		}
	}
	return result, nil
}

func (c *ChannelComm) Broadcast(_ context.Context, root int, value []byte) ([]byte, error) {
	raw := c.hub.rendezvous(c.rank, value)
	out, _ := raw[root].([]byte)
	return out, nil
}

func (c *ChannelComm) Gather(_ context.Context, root int, local float64) ([]float64, error) {
	raw := c.hub.rendezvous(c.rank, local)
	if c.rank != root {
		return nil, nil
	}
	out := make([]float64, c.size)
	for i, v := range raw {
		out[i] = v.(float64)
	}
	return out, nil
}
