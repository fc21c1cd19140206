// Command epcore converts, validates and measures board test documents.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/EPC-MSU/EPCore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Errors from command bodies were already written by the formatter.
		// Anything else comes from flag or argument parsing.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(cli.ExitCommandError)
		}
		os.Exit(exitErr.Code)
	}
}
