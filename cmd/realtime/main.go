package main

import (
	"os"

	"github.com/emrsoft/realtime/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
