package main

import (
	"os"

	"github.com/wonny/factorlab/cmd/quant/commands"
)

// main is the entry point of the factorlab CLI: go run ./cmd/quant [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
