package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2"

	"threadsift/internal/extract"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetThread(ctx context.Context, id string) (ThreadInfo, error)
	GetSource(ctx context.Context, id string) (SourceInfo, error)
}

// ThreadInfo holds the thread row fields exports need
type ThreadInfo struct {
	ID           string
	SourceID     string
	Author       string
	CommentCount int
	Tree         []byte
}

// SourceInfo holds source metadata
type SourceInfo struct {
	ID        string
	Title     string
	OriginURL string
}

// Service renders thread exports, memoizing by thread, format, and tree digest.
type Service struct {
	store DataStore
	memo  *lru.Cache[string, *Result]
}

// NewService creates a new export service
func NewService(store DataStore) (*Service, error) {
	memo, err := lru.New[string, *Result](128)
	if err != nil {
		return nil, err
	}
	return &Service{store: store, memo: memo}, nil
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	thread, err := s.store.GetThread(ctx, req.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}

	// The digest keys the memo so a re-extraction invalidates naturally.
	key := memoKey(req, thread.Tree)
	if cached, ok := s.memo.Get(key); ok {
		return cached, nil
	}

	source, err := s.store.GetSource(ctx, thread.SourceID)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}

	root, err := decodeTree(thread.Tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	title := exportTitle(source, thread)
	data := TemplateData{
		Title:        title,
		SourceTitle:  source.Title,
		OriginURL:    source.OriginURL,
		Author:       thread.Author,
		CommentCount: thread.CommentCount,
		GeneratedAt:  time.Now(),
		TreeHTML:     template.HTML(TreeToHTML(root)),
	}

	html, err := RenderThreadHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var result *Result
	switch req.Format {
	case FormatHTML:
		result = &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}
	case FormatPDF:
		result, err = renderPDF(html, title)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	s.memo.Add(key, result)
	return result, nil
}

func memoKey(req Request, tree []byte) string {
	sum := sha256.Sum256(tree)
	return req.ThreadID + ":" + string(req.Format) + ":" + hex.EncodeToString(sum[:])
}

// decodeTree unmarshals the stored thread tree. UseNumber keeps opaque
// comment ids exact instead of widening them to float64.
func decodeTree(tree []byte) (extract.Comment, error) {
	dec := json.NewDecoder(bytes.NewReader(tree))
	dec.UseNumber()
	var root extract.Comment
	if err := dec.Decode(&root); err != nil {
		return extract.Comment{}, err
	}
	return root, nil
}

func exportTitle(src SourceInfo, thread ThreadInfo) string {
	author := thread.Author
	if author == "" {
		author = extract.UnknownAuthor
	}
	if strings.TrimSpace(src.Title) != "" {
		return fmt.Sprintf("%s: thread by %s", src.Title, author)
	}
	return "Thread by " + author
}
