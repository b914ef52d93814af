// Command delivery sends and receives files over the delivery protocol on
// a WebSocket connection.
//
// Usage:
//
//	delivery serve --listen :8080 --output ./received
//	delivery send ws://localhost:8080/delivery report.pdf notes.txt
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
