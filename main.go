package main

import (
	"os"

	"github.com/tidestore/tidestore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
