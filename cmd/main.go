package main

import (
	"os"

	"github.com/maluguiro/examen-proctor/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
