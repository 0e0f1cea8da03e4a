package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	submitFile   string
	submitServer string
	submitKey    string
	submitTitle  string
	submitOrigin string
	submitSource string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a captured document to a threadsift API",
	Long: `Wraps the captured document in a submission envelope and posts it to a
running threadsift API, which runs the same extraction pipeline as
"sift extract" and stores the result.

The API key needs the ingest scope. Pass --source to record the
document as a new revision of an existing source.`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "post.json", "captured document to submit")
	submitCmd.Flags().StringVar(&submitServer, "server", "http://localhost:8080", "threadsift API base URL")
	submitCmd.Flags().StringVar(&submitKey, "key", "", "API key with ingest scope (required)")
	submitCmd.Flags().StringVar(&submitTitle, "title", "", "source title")
	submitCmd.Flags().StringVar(&submitOrigin, "origin", "", "URL the document was captured from")
	submitCmd.Flags().StringVar(&submitSource, "source", "", "existing source id to append a revision to")
	submitCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(submitFile)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("%s: not valid JSON", submitFile)
	}

	envelope, err := json.Marshal(struct {
		SourceID  string          `json:"sourceId,omitempty"`
		Title     string          `json:"title,omitempty"`
		OriginURL string          `json:"originUrl,omitempty"`
		Document  json.RawMessage `json:"document"`
	}{
		SourceID:  submitSource,
		Title:     submitTitle,
		OriginURL: submitOrigin,
		Document:  raw,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimRight(submitServer, "/") + "/api/documents"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(envelope))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+submitKey)

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("submit document: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("server returned %s: %s", resp.Status, apiErrorMessage(body))
	}

	var reply struct {
		Source struct {
			ID string `json:"id"`
		} `json:"source"`
		Extraction struct {
			Found        bool `json:"found"`
			RootCount    int  `json:"rootCount"`
			CommentCount int  `json:"commentCount"`
		} `json:"extraction"`
		Commit *struct {
			Hash string `json:"hash"`
		} `json:"commit"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if reply.Extraction.Found {
		fmt.Println(color.GreenString("accepted: %d threads, %d comments",
			reply.Extraction.RootCount, reply.Extraction.CommentCount))
	} else {
		fmt.Println(color.YellowString("accepted, but no comment data was found in the document"))
	}
	fmt.Printf("source %s", reply.Source.ID)
	if reply.Commit != nil {
		fmt.Printf(", revision %s", shortHash(reply.Commit.Hash))
	}
	fmt.Println()
	return nil
}

// apiErrorMessage pulls the "error" field out of an API error body, falling
// back to the raw body when it is not the usual shape.
func apiErrorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return string(bytes.TrimSpace(body))
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
