// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tamractl",
	Short: "Inspect and drive a tamra forest from the command line",
	Long: `tamractl is a demo/inspection tool for the tamra distributed adaptive
forest-of-octrees mesh library. It builds a forest from a config file,
runs the mesh managers against it using a scalar demo payload, and
prints summary statistics -- it exercises the library, it is not part
of it.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetFlags(log.Lmicroseconds)
		} else {
			log.SetFlags(0)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to tamractl config file (default: ./tamractl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.AddCommand(runCmd)
}
