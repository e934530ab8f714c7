package main

import (
	"os"

	"github.com/edgewise-labs/kalsim/cmd/kalsim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
