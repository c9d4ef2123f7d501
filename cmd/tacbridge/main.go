package main

import (
	"os"

	"github.com/v-starostin/tacbridge/cmd/tacbridge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
