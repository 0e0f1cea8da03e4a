package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across sources and comments using
// plainto_tsquery and ts_rank, with ts_headline for snippets. The 'simple'
// config matches the generated fts columns.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Sources sub-query
	if q.FilterType == "" || q.FilterType == ResultSource {
		srcWhere := "s.fts @@ " + tsQuery
		if q.FilterSourceID != "" {
			srcWhere += fmt.Sprintf(" AND s.id = $%d", argN)
			args = append(args, q.FilterSourceID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'source'::text AS type, s.id, s.title,
				ts_headline('simple', coalesce(s.origin_url, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				s.id AS source_id,
				''::text AS thread_id,
				ts_rank(s.fts, %s) AS rank
			FROM sources s
			WHERE %s`, tsQuery, tsQuery, srcWhere))
	}

	// Comments sub-query
	if q.FilterType == "" || q.FilterType == ResultComment {
		cmtWhere := "c.fts @@ " + tsQuery
		if q.FilterSourceID != "" {
			cmtWhere += fmt.Sprintf(" AND c.source_id = $%d", argN)
			args = append(args, q.FilterSourceID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, c.id, c.author AS title,
				ts_headline('simple', coalesce(c.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.source_id,
				c.thread_id,
				ts_rank(c.fts, %s) AS rank
			FROM comments c
			WHERE %s`, tsQuery, tsQuery, cmtWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	// Count query
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	// Data query
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, source_id, thread_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.SourceID, &r.ThreadID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]SourceRecord, []CommentRecord, error) {
	srcRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, origin_url
		FROM sources
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load sources: %w", err)
	}
	defer srcRows.Close()

	sources := make([]SourceRecord, 0)
	for srcRows.Next() {
		var s SourceRecord
		if err := srcRows.Scan(&s.ID, &s.Title, &s.OriginURL); err != nil {
			return nil, nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, s)
	}
	if err := srcRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate sources: %w", err)
	}

	cmtRows, err := p.db.QueryContext(ctx, `
		SELECT id, author, body, source_id, thread_id, depth
		FROM comments
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer cmtRows.Close()

	comments := make([]CommentRecord, 0)
	for cmtRows.Next() {
		var c CommentRecord
		if err := cmtRows.Scan(&c.ID, &c.Author, &c.Body, &c.SourceID, &c.ThreadID, &c.Depth); err != nil {
			return nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := cmtRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	return sources, comments, nil
}
