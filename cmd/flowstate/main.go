// Command flowstate drives workflow instances from the command line.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}
