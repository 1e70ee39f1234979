// Package main is the entry point for splitwise-export CLI.
package main

import (
	"os"

	"github.com/shunichi-ikebuchi/splitwise-export/cmd/splitwise-export/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
