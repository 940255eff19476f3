package main

import (
	"os"

	"github.com/coffersTech/logpile/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
