// Command cub runs home's edge service: host-routed page serving, asset
// and derivation proxying, and a local byte-budgeted cache.
package main

import (
	"log"

	"home.systems/cli"
)

func main() {
	if err := cli.CubCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
