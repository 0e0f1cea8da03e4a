package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxSources  = "threadsift_sources"
	idxComments = "threadsift_comments"
)

// indexSpec describes one Meilisearch index and how its hits map back onto
// the shared result shape.
type indexSpec struct {
	uid          string
	resultType   ResultType
	filterable   []string
	searchable   []string
	titleField   string
	snippetField string
	sourceFilter string
}

var meiliIndexes = []indexSpec{
	{
		uid:          idxSources,
		resultType:   ResultSource,
		filterable:   []string{"id"},
		searchable:   []string{"title", "originUrl"},
		titleField:   "title",
		snippetField: "originUrl",
		sourceFilter: "id",
	},
	{
		uid:          idxComments,
		resultType:   ResultComment,
		filterable:   []string{"sourceId", "threadId", "depth"},
		searchable:   []string{"author", "body"},
		titleField:   "author",
		snippetField: "body",
		sourceFilter: "sourceId",
	},
}

func specByUID(uid string) (indexSpec, bool) {
	for _, spec := range meiliIndexes {
		if spec.uid == uid {
			return spec, true
		}
	}
	return indexSpec{}, false
}

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili connects to Meilisearch and ensures the indexes exist. When the
// first connection fails the client keeps probing in the background, so a
// late-starting Meilisearch is picked up without a restart.
func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
	}

	if m.probe() {
		m.ensureIndexes()
	} else {
		log.Printf("search: meilisearch unavailable at %s", url)
	}

	go m.watch()
	return m
}

// probe pings the server and records the result.
func (m *Meili) probe() bool {
	_, err := m.client.Health()
	m.healthy.Store(err == nil)
	return err == nil
}

func (m *Meili) watch() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			was := m.healthy.Load()
			if m.probe() && !was {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.ensureIndexes()
			}
		}
	}
}

func (m *Meili) ensureIndexes() {
	for _, spec := range meiliIndexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        spec.uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", spec.uid, err)
		}

		index := m.client.Index(spec.uid)
		filterable := make([]interface{}, len(spec.filterable))
		for i, field := range spec.filterable {
			filterable[i] = field
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", spec.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&spec.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", spec.uid, err)
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search fans the query out to the selected indexes and merges the hits.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	requests := buildRequests(q)
	if len(requests) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: requests})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, indexResp := range resp.Results {
		spec, ok := specByUID(indexResp.IndexUID)
		if !ok {
			continue
		}
		total += int(indexResp.EstimatedTotalHits)
		for _, hit := range indexResp.Hits {
			results = append(results, resultFromHit(hit, spec))
		}
	}

	return results, total, nil
}

// buildRequests prepares one search request per index the query targets.
func buildRequests(q Query) []*meili.SearchRequest {
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}

	var requests []*meili.SearchRequest
	for _, spec := range meiliIndexes {
		if q.FilterType != "" && q.FilterType != spec.resultType {
			continue
		}
		req := &meili.SearchRequest{
			IndexUID:              spec.uid,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}
		if q.FilterSourceID != "" {
			req.Filter = []string{fmt.Sprintf("%s = %q", spec.sourceFilter, q.FilterSourceID)}
		}
		requests = append(requests, req)
	}
	return requests
}

// resultFromHit maps one hit back onto the shared result shape, preferring
// highlighted field values when Meilisearch returned them.
func resultFromHit(hit meili.Hit, spec indexSpec) Result {
	formatted := formattedFields(hit)
	r := Result{
		Type:     spec.resultType,
		ID:       hitString(hit, "id"),
		SourceID: hitString(hit, "sourceId"),
		ThreadID: hitString(hit, "threadId"),
		Title:    pickField(formatted, hit, spec.titleField),
		Snippet:  pickField(formatted, hit, spec.snippetField),
	}
	if spec.resultType == ResultSource {
		r.SourceID = r.ID
	}
	return r
}

// formattedFields decodes the _formatted block of a hit. Non-string values
// (numeric record fields come back as numbers) are dropped.
func formattedFields(hit meili.Hit) map[string]string {
	raw, ok := hit["_formatted"]
	if !ok {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	fields := make(map[string]string, len(decoded))
	for key, value := range decoded {
		if s, ok := value.(string); ok {
			fields[key] = s
		}
	}
	return fields
}

func pickField(formatted map[string]string, hit meili.Hit, key string) string {
	if v := strings.TrimSpace(formatted[key]); v != "" {
		return v
	}
	return hitString(hit, key)
}

func hitString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// IndexSource adds or updates a source in the search index.
func (m *Meili) IndexSource(s SourceRecord) error {
	_, err := m.client.Index(idxSources).AddDocuments([]SourceRecord{s}, nil)
	return err
}

// IndexComments bulk-indexes the comment rows of an extraction.
func (m *Meili) IndexComments(comments []CommentRecord) error {
	if len(comments) == 0 {
		return nil
	}
	_, err := m.client.Index(idxComments).AddDocuments(comments, nil)
	return err
}

// DeleteSource removes a source from the search index.
func (m *Meili) DeleteSource(id string) error {
	_, err := m.client.Index(idxSources).DeleteDocument(id, nil)
	return err
}

// DeleteComments removes comment entries from the search index.
func (m *Meili) DeleteComments(ids []string) error {
	for _, id := range ids {
		if _, err := m.client.Index(idxComments).DeleteDocument(id, nil); err != nil {
			return err
		}
	}
	return nil
}
