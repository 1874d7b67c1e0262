package main

import (
	"os"

	"github.com/conduit-lang/seedling/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
