// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/tamra-mesh/tamra"
	"github.com/tamra-mesh/tamra/internal/comm"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build a demo forest and drive it through mesh/refine/ghost/balance",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Int("rounds", 1, "number of refine passes to apply before balancing/ghosting")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	rounds, err := cmd.Flags().GetInt("rounds")
	if err != nil {
		return err
	}

	shape := tamra.Shape{N1: cfg.Shape.N1, N2: cfg.Shape.N2, N3: cfg.Shape.N3}
	sfc := tamra.SFCMorton
	if cfg.SFC == "hilbert" {
		sfc = tamra.SFCHilbert
	}

	numFaces := 2 * shape.Dimensions()
	boundary := make([]int, numFaces)
	for i := range boundary {
		boundary[i] = -1
	}

	forest, err := tamra.NewForest[*tamra.ScalarPayload](shape, cfg.MaxLevel, sfc,
		[]tamra.RootEntry{{NeighborRoots: boundary}},
		func(rootIndex int) *tamra.ScalarPayload { return &tamra.ScalarPayload{Value: float64(rootIndex)} },
	)
	if err != nil {
		return fmt.Errorf("tamractl: build forest: %w", err)
	}

	if err := forest.MeshAtMinLevel(cfg.MinLevel, tamra.ExtrapolateScalar); err != nil {
		return fmt.Errorf("tamractl: mesh at min level: %w", err)
	}
	log.Printf("meshed at level %d: %d leaves", cfg.MinLevel, len(forest.Leaves()))

	comm.RunRanks(cfg.NumProcs, func(rank int, c comm.Comm) {
		driveRank(cmd.Context(), forest, c, rank, cfg, rounds)
	})

	log.Printf("final leaf count: %d", len(forest.Leaves()))
	return nil
}

// driveRank runs this rank's share of the refine/ghost/balance
// sequence against the shared demo forest, logging what it observes.
func driveRank(ctx context.Context, forest *tamra.Forest[*tamra.ScalarPayload], c comm.Comm, rank int, cfg *Config, rounds int) {
	for round := 0; round < rounds; round++ {
		markEveryOther(forest, rank)
		changed, err := forest.Refine(ctx, c, tamra.ExtrapolateScalar)
		if err != nil {
			log.Printf("rank %d: refine: %v", rank, err)
			return
		}
		if rank == 0 {
			log.Printf("round %d: refine changed=%v", round, changed)
		}
	}

	task := tamra.NewGhostTask[*tamra.ScalarPayload](nil,
		[]tamra.OwnedStrategy{tamra.OwnedExtrapolate},
		[]tamra.GhostStrategy{tamra.GhostExtrapolate},
		true,
	)
	for {
		if err := forest.BuildGhostLayer(ctx, c, task, tamra.ExtrapolateScalar, tamra.InterpolateScalar); err != nil {
			log.Printf("rank %d: build ghost layer: %v", rank, err)
			return
		}
		if err := forest.ContinueTask(ctx, c, task); err != nil {
			log.Printf("rank %d: continue ghost task: %v", rank, err)
			return
		}
		// Every rank must agree the round converged before leaving the
		// loop, or the next collective would go out of step.
		fin := 0.0
		if task.IsFinished {
			fin = 1
		}
		agreed, err := c.AllReduce(ctx, fin, comm.OpMin)
		if err != nil {
			log.Printf("rank %d: ghost convergence reduce: %v", rank, err)
			return
		}
		if agreed > 0 {
			break
		}
	}

	moved, err := forest.LoadBalance(ctx, c, tamra.BalanceConfig[*tamra.ScalarPayload]{
		MaxPctUnbalance: cfg.MaxPctUnbalance,
		Extrapolate:     tamra.ExtrapolateScalar,
	})
	if err != nil {
		log.Printf("rank %d: load balance: %v", rank, err)
		return
	}
	if rank == 0 {
		log.Printf("load balance moved cells: %v", moved)
	}
}

// markEveryOther marks every other owned leaf ActionRefine, a cheap
// deterministic demo workload standing in for a real error-indicator
// computation.
func markEveryOther(forest *tamra.Forest[*tamra.ScalarPayload], rank int) {
	leaves := forest.Leaves()
	for i, leaf := range leaves {
		if leaf.Indicator().BelongsToThisProc() && i%2 == rank%2 {
			leaf.SetToRefine()
		}
	}
}
