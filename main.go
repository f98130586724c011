package main

import (
	"os"

	"github.com/girowatch/girowatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
