package extract

// replySource identifies which of the known reply encodings a node uses.
// The source emits nested replies in three structurally different shapes,
// and a node's replies may use a different shape than its parent's.
type replySource int

const (
	replyNone          replySource = iota
	replyFeedbackNodes             // feedback.replies.nodes
	replyDirectNodes               // replies.nodes
	replyEdges                     // feedback.replies_connection.edges, one node per edge
)

// Normalize converts a located collection into a uniform comment forest,
// resolving the reply shape at every depth. It fails soft: absent or
// non-sequence input yields an empty forest, and nodes missing author, text,
// or reply information get the documented defaults. The returned slice is
// never nil.
func Normalize(v any) []Comment {
	nodes, ok := v.([]any)
	if !ok {
		return []Comment{}
	}
	comments := make([]Comment, 0, len(nodes))
	for _, node := range nodes {
		comments = append(comments, normalizeNode(node))
	}
	return comments
}

func normalizeNode(raw any) Comment {
	comment := Comment{Author: UnknownAuthor, Replies: []Comment{}}
	node, ok := raw.(map[string]any)
	if !ok {
		return comment
	}

	comment.ID = node["id"]
	if name, ok := stringAt(node, "author", "name"); ok {
		comment.Author = name
	}
	if text, ok := stringAt(node, "body", "text"); ok {
		comment.Text = text
	} else if text, ok := stringAt(node, "message", "text"); ok {
		comment.Text = text
	}

	if source, rawReplies := resolveReplies(node); source != replyNone && len(rawReplies) > 0 {
		comment.Replies = Normalize(rawReplies)
	}
	return comment
}

// resolveReplies picks the node's reply encoding and returns the raw reply
// collection. Exactly one variant fires: the first whose full path is present
// wins, even when its value turns out to be empty or malformed. Later
// variants are never consulted for the same node.
func resolveReplies(node map[string]any) (replySource, []any) {
	if v, ok := lookup(node, "feedback", "replies", "nodes"); ok {
		return replyFeedbackNodes, asArray(v)
	}
	if v, ok := lookup(node, "replies", "nodes"); ok {
		return replyDirectNodes, asArray(v)
	}
	if v, ok := lookup(node, "feedback", "replies_connection", "edges"); ok {
		return replyEdges, unwrapEdges(asArray(v))
	}
	return replyNone, nil
}

// unwrapEdges maps each edge to its node field, preserving edge order. An
// edge without a node keeps its slot as a nil entry, which normalizes to the
// all-defaults comment.
func unwrapEdges(edges []any) []any {
	nodes := make([]any, 0, len(edges))
	for _, edge := range edges {
		wrapper, ok := edge.(map[string]any)
		if !ok {
			nodes = append(nodes, nil)
			continue
		}
		nodes = append(nodes, wrapper["node"])
	}
	return nodes
}

// lookup walks a chain of object keys and reports whether the full path is
// present. Presence means every intermediate step is an object containing the
// next key; the final value itself may be anything, including null.
func lookup(node map[string]any, path ...string) (any, bool) {
	var current any = node
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringAt(node map[string]any, path ...string) (string, bool) {
	v, ok := lookup(node, path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func asArray(v any) []any {
	arr, _ := v.([]any)
	return arr
}
