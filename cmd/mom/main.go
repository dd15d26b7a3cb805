// Command mom runs home's origin service: deploy ingest, revision
// storage, derivation production, and identity exchange.
package main

import (
	"log"

	"home.systems/cli"
)

func main() {
	if err := cli.MomCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
