// Package main implements the conformance test adapter for the Go client.
//
// This adapter communicates with the test runner via stdin/stdout using
// a JSON-line protocol. Run with:
//
//	go run ./cmd/conformance-adapter
//
// Or build and run:
//
//	go build -o adapter ./cmd/conformance-adapter
//	./adapter
package main

import (
	"fmt"
	"os"
)

func main() {
	a := newAdapter()
	defer a.close()

	if err := a.run(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "scanner error: %v\n", err)
		os.Exit(1)
	}
}
