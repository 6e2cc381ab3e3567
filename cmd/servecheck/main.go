package main

import (
	"os"

	"servecheck/internal/cli"
)

func main() {
	os.Exit(cli.Main())
}
