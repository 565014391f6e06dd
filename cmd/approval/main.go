// Command approval stages edits to live records until they are approved.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/approval/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands print their own errors; anything else (flag parsing,
		// unknown commands) is printed here.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
