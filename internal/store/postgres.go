package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) InsertSource(ctx context.Context, source Source) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, title, origin_url, document_sha)
		VALUES ($1, $2, $3, $4)
	`, source.ID, source.Title, source.OriginURL, source.DocumentSHA)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSource(ctx context.Context, sourceID string) (Source, error) {
	var item Source
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, origin_url, document_sha, created_at, updated_at
		FROM sources
		WHERE id=$1
	`, sourceID).Scan(&item.ID, &item.Title, &item.OriginURL, &item.DocumentSHA, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Source{}, err
	}
	return item, nil
}

func (s *PostgresStore) TouchSource(ctx context.Context, sourceID, title, originURL, documentSHA string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources
		SET title=CASE WHEN $2 <> '' THEN $2 ELSE title END,
		    origin_url=CASE WHEN $3 <> '' THEN $3 ELSE origin_url END,
		    document_sha=$4,
		    updated_at=NOW()
		WHERE id=$1
	`, sourceID, title, originURL, documentSHA)
	if err != nil {
		return fmt.Errorf("touch source: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]SourceSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.title, s.origin_url, s.document_sha, s.created_at, s.updated_at,
			COALESCE(e.found, FALSE), COALESCE(e.root_count, 0), COALESCE(e.comment_count, 0), e.created_at
		FROM sources s
		LEFT JOIN LATERAL (
			SELECT found, root_count, comment_count, created_at
			FROM extractions
			WHERE source_id = s.id
			ORDER BY created_at DESC
			LIMIT 1
		) e ON TRUE
		ORDER BY s.updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	items := make([]SourceSummary, 0)
	for rows.Next() {
		var item SourceSummary
		if err := rows.Scan(
			&item.ID,
			&item.Title,
			&item.OriginURL,
			&item.DocumentSHA,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.Found,
			&item.RootCount,
			&item.CommentCount,
			&item.ExtractedAt,
		); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteSource(ctx context.Context, sourceID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id=$1`, sourceID)
	if err != nil {
		return false, fmt.Errorf("delete source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete source rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) InsertExtraction(ctx context.Context, extraction Extraction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extractions (id, source_id, document_sha, found, top_level_count, root_count, comment_count, cache_hit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, extraction.ID, extraction.SourceID, extraction.DocumentSHA, extraction.Found,
		extraction.TopLevelCount, extraction.RootCount, extraction.CommentCount, extraction.CacheHit)
	if err != nil {
		return fmt.Errorf("insert extraction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListExtractions(ctx context.Context, sourceID string, limit int) ([]Extraction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, document_sha, found, top_level_count, root_count, comment_count, cache_hit, created_at
		FROM extractions
		WHERE source_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	defer rows.Close()

	items := make([]Extraction, 0)
	for rows.Next() {
		var item Extraction
		if err := rows.Scan(
			&item.ID,
			&item.SourceID,
			&item.DocumentSHA,
			&item.Found,
			&item.TopLevelCount,
			&item.RootCount,
			&item.CommentCount,
			&item.CacheHit,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extractions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) LatestExtraction(ctx context.Context, sourceID string) (*Extraction, error) {
	var item Extraction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, document_sha, found, top_level_count, root_count, comment_count, cache_hit, created_at
		FROM extractions
		WHERE source_id=$1
		ORDER BY created_at DESC
		LIMIT 1
	`, sourceID).Scan(
		&item.ID,
		&item.SourceID,
		&item.DocumentSHA,
		&item.Found,
		&item.TopLevelCount,
		&item.RootCount,
		&item.CommentCount,
		&item.CacheHit,
		&item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest extraction: %w", err)
	}
	return &item, nil
}

// ReplaceThreads swaps a source's thread and comment rows for the ones
// produced by a new extraction. One transaction so readers never observe a
// partially-replaced source.
func (s *PostgresStore) ReplaceThreads(ctx context.Context, sourceID string, threads []Thread, comments []CommentRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace threads: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE source_id=$1`, sourceID); err != nil {
		return fmt.Errorf("clear threads: %w", err)
	}

	for _, thread := range threads {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO threads (id, source_id, extraction_id, position, author, excerpt, comment_count, tree)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		`, thread.ID, thread.SourceID, thread.ExtractionID, thread.Position,
			thread.Author, thread.Excerpt, thread.CommentCount, string(thread.Tree)); err != nil {
			return fmt.Errorf("insert thread: %w", err)
		}
	}

	for _, comment := range comments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO comments (id, thread_id, source_id, node_id, author, body, depth, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, comment.ID, comment.ThreadID, comment.SourceID, comment.NodeID,
			comment.Author, comment.Body, comment.Depth, comment.Position); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace threads: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListThreadsBySource(ctx context.Context, sourceID string) ([]Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, extraction_id, position, author, excerpt, comment_count, tree, created_at
		FROM threads
		WHERE source_id=$1
		ORDER BY position ASC
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	items := make([]Thread, 0)
	for rows.Next() {
		var item Thread
		if err := rows.Scan(
			&item.ID,
			&item.SourceID,
			&item.ExtractionID,
			&item.Position,
			&item.Author,
			&item.Excerpt,
			&item.CommentCount,
			&item.Tree,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListCommentIDsBySource(ctx context.Context, sourceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM comments WHERE source_id=$1`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list comment ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan comment id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) GetThread(ctx context.Context, threadID string) (Thread, error) {
	var item Thread
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, extraction_id, position, author, excerpt, comment_count, tree, created_at
		FROM threads
		WHERE id=$1
	`, threadID).Scan(
		&item.ID,
		&item.SourceID,
		&item.ExtractionID,
		&item.Position,
		&item.Author,
		&item.Excerpt,
		&item.CommentCount,
		&item.Tree,
		&item.CreatedAt,
	)
	if err != nil {
		return Thread{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertAPIKey(ctx context.Context, key APIKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, name, key_prefix, key_hash, scope)
		VALUES ($1, $2, $3, $4, $5)
	`, key.ID, key.Name, key.KeyPrefix, key.KeyHash, key.Scope)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// ListAPIKeysByPrefix returns candidate rows for a presented key. The prefix
// narrows the bcrypt comparisons to a handful of rows.
func (s *PostgresStore) ListAPIKeysByPrefix(ctx context.Context, prefix string) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, key_prefix, key_hash, scope, created_at, last_used_at
		FROM api_keys
		WHERE key_prefix=$1
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("lookup api keys: %w", err)
	}
	defer rows.Close()

	items := make([]APIKey, 0)
	for rows.Next() {
		var item APIKey
		if err := rows.Scan(&item.ID, &item.Name, &item.KeyPrefix, &item.KeyHash, &item.Scope, &item.CreatedAt, &item.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, key_prefix, key_hash, scope, created_at, last_used_at
		FROM api_keys
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	items := make([]APIKey, 0)
	for rows.Next() {
		var item APIKey
		if err := rows.Scan(&item.ID, &item.Name, &item.KeyPrefix, &item.KeyHash, &item.Scope, &item.CreatedAt, &item.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteAPIKey(ctx context.Context, keyID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id=$1`, keyID)
	if err != nil {
		return false, fmt.Errorf("delete api key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete api key rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) MarkAPIKeyUsed(ctx context.Context, keyID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at=NOW() WHERE id=$1`, keyID)
	if err != nil {
		return fmt.Errorf("mark api key used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SummaryCounts(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&stats.Sources); err != nil {
		return Stats{}, fmt.Errorf("count sources: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extractions`).Scan(&stats.Extractions); err != nil {
		return Stats{}, fmt.Errorf("count extractions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads`).Scan(&stats.Threads); err != nil {
		return Stats{}, fmt.Errorf("count threads: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments`).Scan(&stats.Comments); err != nil {
		return Stats{}, fmt.Errorf("count comments: %w", err)
	}
	return stats, nil
}
