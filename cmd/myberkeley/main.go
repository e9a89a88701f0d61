package main

import (
	"os"

	// Notice and notification dates are resolved in campus time zones.
	_ "time/tzdata"

	"github.com/ets-berkeley-edu/myberkeley/cmd/myberkeley/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
