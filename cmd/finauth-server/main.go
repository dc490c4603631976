// Command finauth-server serves the finauth HTTP API.
//
// Usage:
//
//	finauth-server [serve]
//	finauth-server migrate [up|down]
//	finauth-server healthcheck
//
// Configuration comes from the environment and an optional .env file; see
// internal/config.
package main

import (
	"fmt"
	"os"

	"github.com/MrEthical07/finauth/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "finauth-server: %v\n", err)
		os.Exit(1)
	}
}
