// Package main is the entry point for vaultctl, a command line client for the
// secrets service.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
