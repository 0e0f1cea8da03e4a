package extract

import "sort"

// Keys tried first when searching an object, in this order. Captured
// documents usually hang the comment collection off one of these.
var priorityKeys = []string{"nodes", "comments", "feedback"}

// FindCommentCollection walks an arbitrary decoded JSON value depth-first and
// returns the first array that looks like a collection of comment nodes, or
// false if the document contains none. The search is deterministic: arrays
// are scanned in element order, objects try the priority keys first and the
// remaining keys in sorted order. The first match wins; there is no scoring
// of competing candidates.
func FindCommentCollection(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		// Sample only the first element. A matching first element makes
		// the whole array the collection; anything else sends the search
		// into the elements one by one.
		if len(val) > 0 && looksLikeComment(val[0]) {
			return val, true
		}
		for _, item := range val {
			if found, ok := FindCommentCollection(item); ok {
				return found, true
			}
		}
		return nil, false
	case map[string]any:
		for _, key := range priorityKeys {
			if child, ok := val[key]; ok {
				if found, ok := FindCommentCollection(child); ok {
					return found, true
				}
			}
		}
		rest := make([]string, 0, len(val))
		for key := range val {
			if isPriorityKey(key) {
				continue
			}
			rest = append(rest, key)
		}
		sort.Strings(rest)
		for _, key := range rest {
			if found, ok := FindCommentCollection(val[key]); ok {
				return found, true
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

// looksLikeComment reports whether a value has the shape of a single comment
// node: an object with an id and at least one of body/author/message. A
// comet_sections key marks the value as a post/story object, which also
// carries id and message and must not be mistaken for a comment.
func looksLikeComment(v any) bool {
	node, ok := v.(map[string]any)
	if !ok {
		return false
	}
	if _, ok := node["id"]; !ok {
		return false
	}
	if _, ok := node["comet_sections"]; ok {
		return false
	}
	_, hasBody := node["body"]
	_, hasAuthor := node["author"]
	_, hasMessage := node["message"]
	return hasBody || hasAuthor || hasMessage
}

func isPriorityKey(key string) bool {
	for _, priority := range priorityKeys {
		if key == priority {
			return true
		}
	}
	return false
}
