package main

import (
	"os"

	"github.com/conneroisu/tilestack/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
