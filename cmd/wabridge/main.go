// Command wabridge relays one WhatsApp group to a controller process.
package main

import (
	"fmt"
	"os"

	"wabridge/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
