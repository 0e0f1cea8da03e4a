package extract

import "fmt"

// SelectRoots filters a normalized forest down to its independent threads.
// The source sometimes flattens a reply into the top-level collection as well
// as nesting it under its parent, so any top-level node whose id also occurs
// in reply position (at any depth, not just as an immediate child) is a
// duplicate and is dropped. Survivors keep their original order. Nested
// replies are never deduplicated, only the top level is filtered.
func SelectRoots(forest []Comment) []Comment {
	replyIDs := make(map[string]struct{})
	for i := range forest {
		markReplyIDs(&forest[i], replyIDs)
	}

	roots := make([]Comment, 0, len(forest))
	for _, comment := range forest {
		if _, isReply := replyIDs[idKey(comment.ID)]; isReply {
			continue
		}
		roots = append(roots, comment)
	}
	return roots
}

func markReplyIDs(c *Comment, replyIDs map[string]struct{}) {
	for i := range c.Replies {
		replyIDs[idKey(c.Replies[i].ID)] = struct{}{}
		markReplyIDs(&c.Replies[i], replyIDs)
	}
}

// idKey builds a comparable key for an id value. The dynamic type is part of
// the key so ids of different JSON types never compare equal, and a malformed
// non-scalar id still produces a key instead of panicking.
func idKey(id any) string {
	return fmt.Sprintf("%T:%v", id, id)
}
