package main

import (
	"encoding/json"
	"fmt"
	"os"

	"threadsift/internal/extract"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	extractInput  string
	extractOutput string
	extractPretty bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract comment threads from a local document",
	Long: `Reads a captured JSON document, locates the comment collection, and
writes the normalized threads to the output file as a JSON array.

A document with no recognizable comment data is not an error: the
output file still receives an empty array and a warning is printed.
A missing input file or malformed JSON stops the run without writing
anything.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractInput, "input", "i", "post.json", "captured document to read")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "comments.json", "file to write the thread array to")
	extractCmd.Flags().BoolVar(&extractPretty, "pretty", false, "indent the output JSON")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	f, err := os.Open(extractInput)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	doc, err := extract.DecodeDocument(f)
	if err != nil {
		return fmt.Errorf("%s: %w", extractInput, err)
	}

	fmt.Println(color.CyanString("searching %s for comment data", extractInput))
	result := extract.Run(doc)

	if result.Found {
		dropped := result.TopLevelCount - result.RootCount
		fmt.Printf("found %d top-level comments, kept %d threads (%d nested replies dropped), %d comments total\n",
			result.TopLevelCount, result.RootCount, dropped, result.CommentCount)
	} else {
		fmt.Println(color.YellowString("no comment data found, writing empty array"))
	}

	var out []byte
	if extractPretty {
		out, err = json.MarshalIndent(result.Roots, "", "  ")
	} else {
		out, err = json.Marshal(result.Roots)
	}
	if err != nil {
		return fmt.Errorf("encode threads: %w", err)
	}
	out = append(out, '\n')

	if err := os.WriteFile(extractOutput, out, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	fmt.Println(color.GreenString("wrote %s", extractOutput))
	return nil
}
