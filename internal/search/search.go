package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultSource  ResultType = "source"
	ResultComment ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	SourceID string     `json:"sourceId"`
	ThreadID string     `json:"threadId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterType     ResultType // empty = all types
	FilterSourceID string
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexSource(s SourceRecord) error
	IndexComments(comments []CommentRecord) error
	DeleteSource(id string) error
	DeleteComments(ids []string) error
}

// SourceRecord is the data we index for a captured source.
type SourceRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	OriginURL string `json:"originUrl"`
}

// CommentRecord is the data we index for one comment node.
type CommentRecord struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	Body     string `json:"body"`
	SourceID string `json:"sourceId"`
	ThreadID string `json:"threadId"`
	Depth    int    `json:"depth"`
}
