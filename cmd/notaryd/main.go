// Command notaryd runs the receipt notarization service: it ingests
// execution receipts over HTTP, aggregates them into signed LogBlocks
// per namespace, and hands the blocks to the downstream consumer.
//
// Subcommands:
//
//	server  Run the notary server (default)
//	keygen  Generate a master-seed keystore
//	verify  Verify a sealed LogBlock file offline
package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServer

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return startServer()
	}

	switch args[1] {
	case "server":
		return startServer()
	case "keygen":
		return runKeygenCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: notaryd <command> [arguments]")
	_, _ = fmt.Fprintln(w, "\nCommands:")
	_, _ = fmt.Fprintln(w, "  server   Run the notary server (default)")
	_, _ = fmt.Fprintln(w, "  keygen   Generate a master-seed keystore")
	_, _ = fmt.Fprintln(w, "  verify   Verify a sealed LogBlock file")
}
