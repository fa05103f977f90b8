package main

import (
	"os"

	"github.com/fwbundle/fwbundle/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
