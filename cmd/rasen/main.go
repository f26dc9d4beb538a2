package main

import (
	"os"

	"github.com/rasen-dev/rasen/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
