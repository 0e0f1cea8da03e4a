// Package app wires the extraction pipeline to storage, history, search,
// archiving and notifications, and exposes the result over HTTP.
package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"threadsift/internal/archive"
	"threadsift/internal/auth"
	"threadsift/internal/cache"
	"threadsift/internal/config"
	"threadsift/internal/export"
	"threadsift/internal/extract"
	"threadsift/internal/gitrepo"
	"threadsift/internal/notify"
	"threadsift/internal/search"
	"threadsift/internal/store"
	"threadsift/internal/util"
)

var validate = validator.New()

// errInvalidKey covers every way a presented credential can fail to match,
// so responses never reveal which part was wrong.
var errInvalidKey = errors.New("invalid api key")

// Caller identifies an authenticated API client. KeyID is empty when the
// configured admin token was used instead of a stored key.
type Caller struct {
	KeyID string
	Name  string
	Scope auth.Scope
}

type SubmitDocumentInput struct {
	SourceID  string          `json:"sourceId" validate:"omitempty,max=64"`
	Title     string          `json:"title" validate:"max=300"`
	OriginURL string          `json:"originUrl" validate:"omitempty,url,max=2000"`
	Document  json.RawMessage `json:"document" validate:"required"`
}

type CreateKeyInput struct {
	Name  string `json:"name" validate:"required,min=1,max=120"`
	Scope string `json:"scope" validate:"omitempty,oneof=ingest admin"`
}

type dataStore interface {
	Ping(ctx context.Context) error
	InsertSource(ctx context.Context, source store.Source) error
	GetSource(ctx context.Context, sourceID string) (store.Source, error)
	TouchSource(ctx context.Context, sourceID, title, originURL, documentSHA string) error
	ListSources(ctx context.Context) ([]store.SourceSummary, error)
	DeleteSource(ctx context.Context, sourceID string) (bool, error)
	InsertExtraction(ctx context.Context, extraction store.Extraction) error
	ListExtractions(ctx context.Context, sourceID string, limit int) ([]store.Extraction, error)
	ReplaceThreads(ctx context.Context, sourceID string, threads []store.Thread, comments []store.CommentRow) error
	ListThreadsBySource(ctx context.Context, sourceID string) ([]store.Thread, error)
	ListCommentIDsBySource(ctx context.Context, sourceID string) ([]string, error)
	GetThread(ctx context.Context, threadID string) (store.Thread, error)
	InsertAPIKey(ctx context.Context, key store.APIKey) error
	ListAPIKeysByPrefix(ctx context.Context, prefix string) ([]store.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]store.APIKey, error)
	DeleteAPIKey(ctx context.Context, keyID string) (bool, error)
	MarkAPIKeyUsed(ctx context.Context, keyID string) error
	SummaryCounts(ctx context.Context) (store.Stats, error)
}

type gitService interface {
	RecordExtraction(sourceID string, threads []byte, author, message string) (store.CommitInfo, bool, error)
	History(sourceID string, limit int) ([]store.CommitInfo, error)
	GetThreadsAt(sourceID, hash string) ([]byte, error)
}

type searchService interface {
	Search(query search.Query) search.Response
	IndexSource(record search.SourceRecord)
	IndexComments(records []search.CommentRecord)
	DeleteSource(sourceID string)
	DeleteComments(ids []string)
}

type resultCache interface {
	Get(ctx context.Context, documentSHA string) (extract.Result, bool, error)
	Put(ctx context.Context, documentSHA string, result extract.Result) error
}

type documentArchive interface {
	PutDocument(ctx context.Context, sourceID, documentSHA string, raw []byte) error
	GetDocument(ctx context.Context, sourceID, documentSHA string) ([]byte, error)
	PresignDocument(ctx context.Context, sourceID, documentSHA string) (string, error)
}

type notifier interface {
	ExtractionCompleted(event notify.Event)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type Service struct {
	cfg     config.Config
	store   dataStore
	git     gitService
	search  searchService
	cache   resultCache     // nil when Redis is not configured
	archive documentArchive // nil when S3 is not configured
	notify  notifier
	export  exporter
}

func New(cfg config.Config, pg *store.PostgresStore, gitSvc *gitrepo.Service, searchSvc *search.Service, cacheSvc *cache.ResultCache, archiveSvc *archive.Service, notifySvc *notify.Service) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		store:  pg,
		git:    gitSvc,
		search: searchSvc,
		notify: notifySvc,
	}
	// Assign optional subsystems only when present; a typed nil pointer in
	// the interface field would defeat the nil checks below.
	if cacheSvc != nil {
		s.cache = cacheSvc
	}
	if archiveSvc != nil {
		s.archive = archiveSvc
	}
	exportSvc, err := export.NewService(exportStore{store: pg})
	if err != nil {
		return nil, fmt.Errorf("export service: %w", err)
	}
	s.export = exportSvc
	return s, nil
}

// exportStore narrows the data store to the two reads the export renderer
// needs.
type exportStore struct {
	store dataStore
}

func (e exportStore) GetThread(ctx context.Context, threadID string) (export.ThreadInfo, error) {
	row, err := e.store.GetThread(ctx, threadID)
	if err != nil {
		return export.ThreadInfo{}, err
	}
	return export.ThreadInfo{
		ID:           row.ID,
		SourceID:     row.SourceID,
		Author:       row.Author,
		CommentCount: row.CommentCount,
		Tree:         row.Tree,
	}, nil
}

func (e exportStore) GetSource(ctx context.Context, sourceID string) (export.SourceInfo, error) {
	src, err := e.store.GetSource(ctx, sourceID)
	if err != nil {
		return export.SourceInfo{}, err
	}
	return export.SourceInfo{ID: src.ID, Title: src.Title, OriginURL: src.OriginURL}, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) maxBodyBytes() int64 {
	limit := s.cfg.MaxDocumentBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	// Envelope fields sit alongside the document in the request body.
	return limit + 64<<10
}

// AuthenticateKey resolves a bearer credential to a caller. The configured
// admin token short-circuits the key table so a fresh deployment can mint
// its first key.
func (s *Service) AuthenticateKey(ctx context.Context, presented string) (Caller, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return Caller{}, errInvalidKey
	}
	if auth.VerifyAdminToken(presented, s.cfg.AdminToken) {
		return Caller{Name: "admin", Scope: auth.ScopeAdmin}, nil
	}
	prefix, err := auth.LookupPrefix(presented)
	if err != nil {
		return Caller{}, errInvalidKey
	}
	keys, err := s.store.ListAPIKeysByPrefix(ctx, prefix)
	if err != nil {
		return Caller{}, fmt.Errorf("lookup api key: %w", err)
	}
	for _, key := range keys {
		if !auth.Verify(presented, key.KeyHash) {
			continue
		}
		scope, err := auth.ParseScope(key.Scope)
		if err != nil {
			log.Printf("app: key %s has unknown scope %q", key.ID, key.Scope)
			continue
		}
		if err := s.store.MarkAPIKeyUsed(ctx, key.ID); err != nil {
			log.Printf("app: mark key used: %v", err)
		}
		return Caller{KeyID: key.ID, Name: key.Name, Scope: scope}, nil
	}
	return Caller{}, errInvalidKey
}

// SubmitDocument runs the full capture pipeline: decode, extract (or reuse a
// cached result), persist rows, commit history, archive the raw document,
// refresh the search index and fire the webhook. Archive and webhook
// failures are logged rather than failing a capture that already landed.
func (s *Service) SubmitDocument(ctx context.Context, input SubmitDocumentInput, submittedBy string) (map[string]any, error) {
	if err := validateStruct(input); err != nil {
		return nil, validationError(err.Error(), nil)
	}

	raw := []byte(input.Document)
	if limit := s.cfg.MaxDocumentBytes; limit > 0 && int64(len(raw)) > limit {
		return nil, domainError(http.StatusRequestEntityTooLarge, "DOCUMENT_TOO_LARGE",
			fmt.Sprintf("document exceeds %d bytes", limit), nil)
	}

	doc, err := extract.DecodeDocument(bytes.NewReader(raw))
	if err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_DOCUMENT", "document is not valid JSON", nil)
	}

	documentSHA := util.DocumentSHA(raw)

	result, cacheHit := s.runExtraction(ctx, documentSHA, doc)

	source, err := s.upsertSource(ctx, input, documentSHA)
	if err != nil {
		return nil, err
	}

	extraction := store.Extraction{
		ID:            util.NewID("ext"),
		SourceID:      source.ID,
		DocumentSHA:   documentSHA,
		Found:         result.Found,
		TopLevelCount: result.TopLevelCount,
		RootCount:     result.RootCount,
		CommentCount:  result.CommentCount,
		CacheHit:      cacheHit,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.InsertExtraction(ctx, extraction); err != nil {
		return nil, err
	}

	threads, comments, err := buildRows(source.ID, extraction.ID, result.Roots)
	if err != nil {
		return nil, err
	}

	// Comment ids about to be replaced; the search index drops them after
	// the new rows land.
	staleIDs, err := s.store.ListCommentIDsBySource(ctx, source.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceThreads(ctx, source.ID, threads, comments); err != nil {
		return nil, err
	}

	threadsJSON, err := json.Marshal(result.Roots)
	if err != nil {
		return nil, fmt.Errorf("encode threads: %w", err)
	}

	var commit map[string]any
	info, committed, err := s.git.RecordExtraction(source.ID, threadsJSON, submittedBy, commitMessage(result))
	if err != nil {
		log.Printf("app: record history for %s: %v", source.ID, err)
	} else {
		commit = commitPayload(info, committed)
	}

	if s.archive != nil {
		if err := s.archive.PutDocument(ctx, source.ID, documentSHA, raw); err != nil {
			log.Printf("app: archive document for %s: %v", source.ID, err)
		}
	}

	s.search.DeleteComments(staleIDs)
	s.search.IndexSource(search.SourceRecord{ID: source.ID, Title: source.Title, OriginURL: source.OriginURL})
	s.search.IndexComments(commentRecords(comments))

	s.notify.ExtractionCompleted(notify.Event{
		SourceID:     source.ID,
		ExtractionID: extraction.ID,
		Found:        result.Found,
		RootCount:    result.RootCount,
		CommentCount: result.CommentCount,
		CacheHit:     cacheHit,
	})

	return map[string]any{
		"source":     sourcePayload(source),
		"extraction": extractionPayload(extraction),
		"commit":     commit,
		"threads":    json.RawMessage(threadsJSON),
	}, nil
}

// runExtraction consults the compute cache before walking the document.
// Cache trouble never fails a capture; extraction just runs again.
func (s *Service) runExtraction(ctx context.Context, documentSHA string, doc any) (extract.Result, bool) {
	if s.cache != nil {
		cached, hit, err := s.cache.Get(ctx, documentSHA)
		if err != nil {
			log.Printf("app: result cache get: %v", err)
		} else if hit {
			return cached, true
		}
	}
	result := extract.Run(doc)
	if s.cache != nil {
		if err := s.cache.Put(ctx, documentSHA, result); err != nil {
			log.Printf("app: result cache put: %v", err)
		}
	}
	return result, false
}

func (s *Service) upsertSource(ctx context.Context, input SubmitDocumentInput, documentSHA string) (store.Source, error) {
	title := strings.TrimSpace(input.Title)
	originURL := strings.TrimSpace(input.OriginURL)

	if input.SourceID != "" {
		source, err := s.store.GetSource(ctx, input.SourceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.Source{}, notFound("source not found")
			}
			return store.Source{}, err
		}
		if err := s.store.TouchSource(ctx, source.ID, title, originURL, documentSHA); err != nil {
			return store.Source{}, err
		}
		if title != "" {
			source.Title = title
		}
		if originURL != "" {
			source.OriginURL = originURL
		}
		source.DocumentSHA = documentSHA
		source.UpdatedAt = time.Now().UTC()
		return source, nil
	}

	now := time.Now().UTC()
	source := store.Source{
		ID:          util.NewID("src"),
		Title:       title,
		OriginURL:   originURL,
		DocumentSHA: documentSHA,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertSource(ctx, source); err != nil {
		return store.Source{}, err
	}
	return source, nil
}

func (s *Service) ListSources(ctx context.Context) ([]map[string]any, error) {
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(sources))
	for _, item := range sources {
		items = append(items, sourceSummaryPayload(item))
	}
	return items, nil
}

func (s *Service) GetSource(ctx context.Context, sourceID string) (map[string]any, error) {
	source, err := s.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	extractions, err := s.store.ListExtractions(ctx, sourceID, 20)
	if err != nil {
		return nil, err
	}
	payload := sourcePayload(source)
	history := make([]map[string]any, 0, len(extractions))
	for _, extraction := range extractions {
		history = append(history, extractionPayload(extraction))
	}
	payload["extractions"] = history
	return payload, nil
}

// SourceThreads returns the current thread forest for a source, or the
// forest as of a historical commit when atHash is set.
func (s *Service) SourceThreads(ctx context.Context, sourceID, atHash string) (map[string]any, error) {
	if _, err := s.store.GetSource(ctx, sourceID); err != nil {
		return nil, err
	}

	if atHash != "" {
		data, err := s.git.GetThreadsAt(sourceID, atHash)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"sourceId": sourceID,
			"at":       atHash,
			"threads":  json.RawMessage(bytes.TrimSpace(data)),
		}, nil
	}

	rows, err := s.store.ListThreadsBySource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	trees := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		trees = append(trees, json.RawMessage(row.Tree))
	}
	return map[string]any{
		"sourceId": sourceID,
		"threads":  trees,
	}, nil
}

func (s *Service) SourceHistory(ctx context.Context, sourceID string) (map[string]any, error) {
	if _, err := s.store.GetSource(ctx, sourceID); err != nil {
		return nil, err
	}
	commits, err := s.git.History(sourceID, 50)
	if err != nil && !errors.Is(err, gitrepo.ErrNoHistory) {
		return nil, err
	}
	items := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		items = append(items, map[string]any{
			"hash":      commit.Hash,
			"message":   commit.Message,
			"meta":      fmt.Sprintf("%s, %s", commit.Author, relative(commit.CreatedAt)),
			"createdAt": commit.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{
		"sourceId": sourceID,
		"commits":  items,
	}, nil
}

// SourceDocumentURL presigns a short-lived download link for the raw
// document behind the source's latest capture.
func (s *Service) SourceDocumentURL(ctx context.Context, sourceID string) (map[string]any, error) {
	source, err := s.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if s.archive == nil {
		return nil, domainError(http.StatusNotFound, "ARCHIVE_DISABLED", "document archiving is not enabled", nil)
	}
	if source.DocumentSHA == "" {
		return nil, notFound("no document captured for source")
	}
	url, err := s.archive.PresignDocument(ctx, sourceID, source.DocumentSHA)
	if err != nil {
		return nil, fmt.Errorf("presign document: %w", err)
	}
	return map[string]any{
		"url":         url,
		"documentSha": source.DocumentSHA,
	}, nil
}

// SourceDocumentRaw streams the archived document bytes through the API, for
// callers that cannot reach the object store directly.
func (s *Service) SourceDocumentRaw(ctx context.Context, sourceID string) ([]byte, error) {
	source, err := s.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if s.archive == nil {
		return nil, domainError(http.StatusNotFound, "ARCHIVE_DISABLED", "document archiving is not enabled", nil)
	}
	if source.DocumentSHA == "" {
		return nil, notFound("no document captured for source")
	}
	raw, err := s.archive.GetDocument(ctx, sourceID, source.DocumentSHA)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return nil, notFound("archived document is missing")
		}
		return nil, fmt.Errorf("fetch archived document: %w", err)
	}
	return raw, nil
}

func (s *Service) DeleteSource(ctx context.Context, sourceID string) error {
	staleIDs, err := s.store.ListCommentIDsBySource(ctx, sourceID)
	if err != nil {
		return err
	}
	ok, err := s.store.DeleteSource(ctx, sourceID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("source not found")
	}
	s.search.DeleteSource(sourceID)
	s.search.DeleteComments(staleIDs)
	return nil
}

func (s *Service) GetThread(ctx context.Context, threadID string) (map[string]any, error) {
	row, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":           row.ID,
		"sourceId":     row.SourceID,
		"extractionId": row.ExtractionID,
		"position":     row.Position,
		"author":       row.Author,
		"excerpt":      row.Excerpt,
		"commentCount": row.CommentCount,
		"tree":         json.RawMessage(row.Tree),
		"createdAt":    row.CreatedAt.Format(time.RFC3339),
	}, nil
}

func (s *Service) ExportThread(ctx context.Context, threadID, format string) (*export.Result, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, validationError("format must be 'html' or 'pdf'", nil)
	}
	result, err := s.export.Export(ctx, export.Request{ThreadID: threadID, Format: parsed})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE",
				"pdf rendering is not available on this host", nil)
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) Search(ctx context.Context, text, filterType, sourceID string, limit, offset int) (map[string]any, error) {
	var resultType search.ResultType
	switch filterType {
	case "":
	case string(search.ResultSource):
		resultType = search.ResultSource
	case string(search.ResultComment):
		resultType = search.ResultComment
	default:
		return nil, validationError("type must be 'source' or 'comment'", nil)
	}
	resp := s.search.Search(search.Query{
		Text:           text,
		FilterType:     resultType,
		FilterSourceID: sourceID,
		Limit:          limit,
		Offset:         offset,
	})
	return map[string]any{
		"results": resp.Results,
		"total":   resp.Total,
		"query":   resp.Query,
	}, nil
}

func (s *Service) Stats(ctx context.Context) (map[string]any, error) {
	stats, err := s.store.SummaryCounts(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"sources":     stats.Sources,
		"extractions": stats.Extractions,
		"threads":     stats.Threads,
		"comments":    stats.Comments,
	}, nil
}

// CreateAPIKey mints a key and returns the plaintext exactly once; only the
// bcrypt hash is stored.
func (s *Service) CreateAPIKey(ctx context.Context, input CreateKeyInput) (map[string]any, error) {
	if err := validateStruct(input); err != nil {
		return nil, validationError(err.Error(), nil)
	}
	scope := auth.ScopeIngest
	if input.Scope != "" {
		parsed, err := auth.ParseScope(input.Scope)
		if err != nil {
			return nil, validationError("scope must be 'ingest' or 'admin'", nil)
		}
		scope = parsed
	}
	plaintext, prefix, hash, err := auth.NewKey()
	if err != nil {
		return nil, fmt.Errorf("mint key: %w", err)
	}
	key := store.APIKey{
		ID:        util.NewID("key"),
		Name:      strings.TrimSpace(input.Name),
		KeyPrefix: prefix,
		KeyHash:   hash,
		Scope:     string(scope),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertAPIKey(ctx, key); err != nil {
		return nil, err
	}
	payload := keyPayload(key)
	payload["key"] = plaintext
	return payload, nil
}

func (s *Service) ListAPIKeys(ctx context.Context) ([]map[string]any, error) {
	keys, err := s.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		items = append(items, keyPayload(key))
	}
	return items, nil
}

func (s *Service) DeleteAPIKey(ctx context.Context, keyID string) error {
	ok, err := s.store.DeleteAPIKey(ctx, keyID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("key not found")
	}
	return nil
}

func buildRows(sourceID, extractionID string, roots []extract.Comment) ([]store.Thread, []store.CommentRow, error) {
	threads := make([]store.Thread, 0, len(roots))
	comments := make([]store.CommentRow, 0)
	for i, root := range roots {
		tree, err := json.Marshal(root)
		if err != nil {
			return nil, nil, fmt.Errorf("encode thread tree: %w", err)
		}
		threadID := util.NewID("th")
		threads = append(threads, store.Thread{
			ID:           threadID,
			SourceID:     sourceID,
			ExtractionID: extractionID,
			Position:     i,
			Author:       root.Author,
			Excerpt:      excerpt(root.Text),
			CommentCount: 1 + extract.CountComments(root.Replies),
			Tree:         tree,
		})
		flattenComments(&comments, threadID, sourceID, root, 0, 0)
	}
	return threads, comments, nil
}

// flattenComments appends node and its replies in pre-order. Returns the
// next position within the thread.
func flattenComments(out *[]store.CommentRow, threadID, sourceID string, node extract.Comment, depth, position int) int {
	*out = append(*out, store.CommentRow{
		ID:       util.NewID("cmt"),
		ThreadID: threadID,
		SourceID: sourceID,
		NodeID:   nodeIDString(node.ID),
		Author:   node.Author,
		Body:     node.Text,
		Depth:    depth,
		Position: position,
	})
	position++
	for _, reply := range node.Replies {
		position = flattenComments(out, threadID, sourceID, reply, depth+1, position)
	}
	return position
}

func nodeIDString(id any) string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf("%v", id)
}

const excerptRunes = 140

func excerpt(text string) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= excerptRunes {
		return flat
	}
	return string(runes[:excerptRunes])
}

func commitMessage(result extract.Result) string {
	if !result.Found {
		return "capture: no comment data found"
	}
	return fmt.Sprintf("capture: %d threads, %d comments", result.RootCount, result.CommentCount)
}

func commentRecords(rows []store.CommentRow) []search.CommentRecord {
	records := make([]search.CommentRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, search.CommentRecord{
			ID:       row.ID,
			Author:   row.Author,
			Body:     row.Body,
			SourceID: row.SourceID,
			ThreadID: row.ThreadID,
			Depth:    row.Depth,
		})
	}
	return records
}

func sourcePayload(source store.Source) map[string]any {
	return map[string]any{
		"id":          source.ID,
		"title":       source.Title,
		"originUrl":   source.OriginURL,
		"documentSha": source.DocumentSHA,
		"createdAt":   source.CreatedAt.Format(time.RFC3339),
		"updatedAt":   source.UpdatedAt.Format(time.RFC3339),
	}
}

func sourceSummaryPayload(summary store.SourceSummary) map[string]any {
	payload := sourcePayload(summary.Source)
	if summary.ExtractedAt != nil {
		payload["lastExtraction"] = map[string]any{
			"found":        summary.Found,
			"rootCount":    summary.RootCount,
			"commentCount": summary.CommentCount,
			"extractedAt":  summary.ExtractedAt.Format(time.RFC3339),
		}
	} else {
		payload["lastExtraction"] = nil
	}
	return payload
}

func extractionPayload(extraction store.Extraction) map[string]any {
	return map[string]any{
		"id":            extraction.ID,
		"sourceId":      extraction.SourceID,
		"documentSha":   extraction.DocumentSHA,
		"found":         extraction.Found,
		"topLevelCount": extraction.TopLevelCount,
		"rootCount":     extraction.RootCount,
		"commentCount":  extraction.CommentCount,
		"cacheHit":      extraction.CacheHit,
		"createdAt":     extraction.CreatedAt.Format(time.RFC3339),
	}
}

func commitPayload(info store.CommitInfo, committed bool) map[string]any {
	return map[string]any{
		"hash":      info.Hash,
		"message":   info.Message,
		"committed": committed,
	}
}

func keyPayload(key store.APIKey) map[string]any {
	payload := map[string]any{
		"id":        key.ID,
		"name":      key.Name,
		"keyPrefix": key.KeyPrefix,
		"scope":     key.Scope,
		"createdAt": key.CreatedAt.Format(time.RFC3339),
	}
	if key.LastUsedAt != nil {
		payload["lastUsedAt"] = key.LastUsedAt.Format(time.RFC3339)
	} else {
		payload["lastUsedAt"] = nil
	}
	return payload
}

func validateStruct(value any) error {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		messages := make([]string, 0, len(fieldErrs))
		for _, fieldErr := range fieldErrs {
			messages = append(messages, formatFieldError(fieldErr))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatFieldError(err validator.FieldError) string {
	field := err.Field()
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, err.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, err.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func relative(value time.Time) string {
	minutes := int(time.Since(value).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm ago", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}
	days := hours / 24
	return fmt.Sprintf("%dd ago", days)
}
