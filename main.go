package main

import (
	"os"

	"github.com/redink/outliner/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
