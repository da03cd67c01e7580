package main

import (
	"os"

	"github.com/fieldline/slacksync/cmd/slacksync/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.OutputError("%v", err)
		os.Exit(1)
	}
}
