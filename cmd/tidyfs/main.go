// Package main provides the entry point for the tidyfs CLI.
package main

import (
	"os"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/logging"
)

func main() {
	err := Execute()
	_ = logging.Close()
	if err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}
