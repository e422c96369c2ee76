package main

import (
	"os"

	"github.com/joho/godotenv"

	foliocmder "github.com/papercomputeco/folio/cmd/folio"
)

func main() {
	// Load .env if present; the environment wins on conflicts.
	_ = godotenv.Load()

	cmd := foliocmder.NewFolioCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
