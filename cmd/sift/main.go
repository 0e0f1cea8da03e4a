package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command; it only dispatches to subcommands.
var rootCmd = &cobra.Command{
	Use:   "sift",
	Short: "Extract comment threads from captured JSON documents",
	Long: `sift pulls discussion threads out of JSON documents captured from an
external source. The comment collection has no fixed location in the
document, so sift searches for it heuristically, normalizes the known
reply encodings into one shape, and drops top-level entries that are
really replies nested under another thread.

Run "sift extract" to process a file locally, or "sift submit" to send
a captured document to a running threadsift API.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
