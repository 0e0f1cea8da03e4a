package search

import (
	"context"
	"fmt"
	"log"
)

// Service fronts the two search backends. Meilisearch serves queries when it
// is reachable; Postgres FTS answers the rest, so results degrade rather
// than disappear.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meiliReady() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return newResponse(q, results, total)
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return newResponse(q, nil, 0)
	}
	return newResponse(q, results, total)
}

func newResponse(q Query, results []Result, total int) Response {
	if results == nil {
		results = []Result{}
	}
	return Response{Results: results, Total: total, Query: q.Text}
}

// async runs one Meilisearch write off the request path. Failures are logged
// and dropped; Postgres stays the source of truth and a reindex repairs
// drift.
func (s *Service) async(op string, fn func() error) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := fn(); err != nil {
			log.Printf("search: %s: %v", op, err)
		}
	}()
}

// IndexSource pushes a source record to Meilisearch.
func (s *Service) IndexSource(src SourceRecord) {
	s.async("index source "+src.ID, func() error {
		return s.meili.IndexSource(src)
	})
}

// IndexComments pushes the comment rows of an extraction to Meilisearch.
func (s *Service) IndexComments(comments []CommentRecord) {
	if len(comments) == 0 {
		return
	}
	s.async(fmt.Sprintf("index %d comments", len(comments)), func() error {
		return s.meili.IndexComments(comments)
	})
}

// DeleteSource removes a source from the search index.
func (s *Service) DeleteSource(id string) {
	s.async("delete source "+id, func() error {
		return s.meili.DeleteSource(id)
	})
}

// DeleteComments removes comment entries from the search index.
func (s *Service) DeleteComments(ids []string) {
	if len(ids) == 0 {
		return
	}
	s.async(fmt.Sprintf("delete %d comments", len(ids)), func() error {
		return s.meili.DeleteComments(ids)
	})
}

// ReindexAll pushes the given records to Meilisearch synchronously.
func (s *Service) ReindexAll(sources []SourceRecord, comments []CommentRecord) {
	if !s.meiliReady() {
		return
	}

	for _, src := range sources {
		if err := s.meili.IndexSource(src); err != nil {
			log.Printf("search: reindex source %s: %v", src.ID, err)
		}
	}
	if len(comments) > 0 {
		if err := s.meili.IndexComments(comments); err != nil {
			log.Printf("search: reindex comments: %v", err)
		}
	}
}

// ReindexAllFromPG reloads every source and comment row from Postgres and
// pushes them into Meilisearch. Run at startup so a wiped Meilisearch
// volume rebuilds itself.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.meiliReady() || s.pgfts == nil {
		return
	}
	sources, comments, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(sources, comments)
}
