package store

import "time"

type Source struct {
	ID          string
	Title       string
	OriginURL   string
	DocumentSHA string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SourceSummary is a Source joined with its latest extraction counts.
type SourceSummary struct {
	Source
	Found        bool
	RootCount    int
	CommentCount int
	ExtractedAt  *time.Time
}

type Extraction struct {
	ID            string
	SourceID      string
	DocumentSHA   string
	Found         bool
	TopLevelCount int
	RootCount     int
	CommentCount  int
	CacheHit      bool
	CreatedAt     time.Time
}

// Thread is one root comment tree from a source's latest extraction. Tree
// holds the serialized node exactly as the pipeline produced it.
type Thread struct {
	ID           string
	SourceID     string
	ExtractionID string
	Position     int
	Author       string
	Excerpt      string
	CommentCount int
	Tree         []byte
	CreatedAt    time.Time
}

// CommentRow is one flattened comment node, stored for full-text search.
type CommentRow struct {
	ID       string
	ThreadID string
	SourceID string
	NodeID   string
	Author   string
	Body     string
	Depth    int
	Position int
}

type APIKey struct {
	ID         string
	Name       string
	KeyPrefix  string
	KeyHash    string
	Scope      string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

type Stats struct {
	Sources     int
	Extractions int
	Threads     int
	Comments    int
}

// CommitInfo describes one commit in a source's extraction history.
type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
