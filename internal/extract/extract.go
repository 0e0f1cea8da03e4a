// Package extract pulls discussion threads out of arbitrarily-shaped JSON
// documents captured from an external source. The document schema varies per
// capture: the comment collection has no fixed location and nested replies
// appear in one of three encodings, so extraction is a heuristic search
// followed by recursive normalization and top-level deduplication.
//
// Every function here is a pure function of its input. Callers own logging,
// storage, and transport.
package extract

// Comment is the normalized form of one comment node. ID is kept as the
// decoded JSON scalar and treated as an opaque key; it is never assumed to be
// a string or a number.
type Comment struct {
	ID      any       `json:"id"`
	Author  string    `json:"author"`
	Text    string    `json:"text"`
	Replies []Comment `json:"replies"`
}

// UnknownAuthor is substituted when a node carries no author information.
const UnknownAuthor = "Unknown"

// Result is the outcome of running the pipeline over one document.
type Result struct {
	// Roots holds the independent threads, in source order. Non-nil even
	// when empty so it serializes as [].
	Roots []Comment `json:"threads"`
	// Found reports whether the locator identified a comment collection
	// anywhere in the document.
	Found bool `json:"found"`
	// TopLevelCount is the number of normalized top-level nodes before
	// duplicate removal.
	TopLevelCount int `json:"topLevelCount"`
	// RootCount is the number of threads kept after duplicate removal.
	RootCount int `json:"rootCount"`
	// CommentCount is the total number of normalized nodes at all depths.
	CommentCount int `json:"commentCount"`
}

// Run executes the full pipeline: locate the comment collection, normalize it
// into a forest, then keep only the independent root threads. A document with
// no recognizable comment collection yields Found=false and an empty Roots,
// a recognized outcome rather than an error.
func Run(doc any) Result {
	collection, found := FindCommentCollection(doc)
	if !found {
		return Result{Roots: []Comment{}}
	}

	forest := Normalize(collection)
	roots := SelectRoots(forest)

	return Result{
		Roots:         roots,
		Found:         true,
		TopLevelCount: len(forest),
		RootCount:     len(roots),
		CommentCount:  CountComments(forest),
	}
}

// CountComments returns the number of nodes in the forest at all depths.
func CountComments(forest []Comment) int {
	total := 0
	for i := range forest {
		total += 1 + CountComments(forest[i].Replies)
	}
	return total
}
