// Package main is the entry point for batchctl, the batch job runner.
package main

import (
	"os"

	"batchplane/cmd/batchctl/cmd"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
