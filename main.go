package main

import (
	"os"

	"github.com/davin/traceo/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
