// Command labelprep converts polygon annotation exports into training
// datasets.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/flxnaf/beamestraight/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}

	// ExitErrors have already been reported by the command.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(exitErr.Code)
}
