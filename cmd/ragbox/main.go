// Command ragbox is the entry point for the ragbox retrieval engine.
// It provides a CLI interface (via Cobra) for document ingestion and
// one-shot questions, and an HTTP server for interactive use.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/m0rfeo/ragbox/cmd/ragbox/commands"
)

func main() {
	// Load .env from the working directory if present. Real env vars are
	// never overwritten.
	_ = godotenv.Load()

	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
