package main

import (
	"fmt"
	"os"

	"github.com/runnerr0/linktrail/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Run(version); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
