package main

import (
	"os"

	"github.com/mmynk/splitit/cmd/splitctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
