// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Command tamractl is a small inspection driver for the tamra forest
// library: it builds a forest from a config file, runs the managers, and
// prints summary stats. It is not part of the library's public API.
package main

func main() {
	Execute()
}
