package extract

import (
	"reflect"
	"testing"
)

func TestNormalize_ReplyShapeEquivalence(t *testing.T) {
	// The same logical thread in all three reply encodings must normalize
	// to the same tree.
	shapes := map[string]string{
		"feedback.replies.nodes": `[
			{"id":"1","body":{"text":"root"},
			 "feedback":{"replies":{"nodes":[{"id":"2","body":{"text":"child"}}]}}}
		]`,
		"replies.nodes": `[
			{"id":"1","body":{"text":"root"},
			 "replies":{"nodes":[{"id":"2","body":{"text":"child"}}]}}
		]`,
		"feedback.replies_connection.edges": `[
			{"id":"1","body":{"text":"root"},
			 "feedback":{"replies_connection":{"edges":[{"node":{"id":"2","body":{"text":"child"}}}]}}}
		]`,
	}

	want := []Comment{{
		ID:     "1",
		Author: UnknownAuthor,
		Text:   "root",
		Replies: []Comment{{
			ID:      "2",
			Author:  UnknownAuthor,
			Text:    "child",
			Replies: []Comment{},
		}},
	}}

	for name, raw := range shapes {
		t.Run(name, func(t *testing.T) {
			got := Normalize(asArray(mustDecode(t, raw)))
			if !reflect.DeepEqual(got, want) {
				t.Errorf("got %+v, want %+v", got, want)
			}
		})
	}
}

func TestNormalize_FirstReplyShapeWins(t *testing.T) {
	// When a node carries more than one reply encoding, only the first
	// present path is read; the others are ignored entirely.
	raw := `[
		{"id":"1",
		 "feedback":{"replies":{"nodes":[{"id":"a"}]}},
		 "replies":{"nodes":[{"id":"b"}]}}
	]`

	got := Normalize(asArray(mustDecode(t, raw)))
	if len(got) != 1 || len(got[0].Replies) != 1 {
		t.Fatalf("expected one root with one reply, got %+v", got)
	}
	if got[0].Replies[0].ID != "a" {
		t.Errorf("expected the feedback.replies.nodes branch, got reply id %v", got[0].Replies[0].ID)
	}
}

func TestNormalize_PresentButEmptyShapeDoesNotFallThrough(t *testing.T) {
	// feedback.replies.nodes resolves to an empty list; replies.nodes must
	// not be consulted even though it holds data.
	raw := `[
		{"id":"1",
		 "feedback":{"replies":{"nodes":[]}},
		 "replies":{"nodes":[{"id":"b"}]}}
	]`

	got := Normalize(asArray(mustDecode(t, raw)))
	if len(got) != 1 {
		t.Fatalf("expected one root, got %d", len(got))
	}
	if len(got[0].Replies) != 0 {
		t.Errorf("expected no replies, got %+v", got[0].Replies)
	}
}

func TestNormalize_AuthorFallbacks(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"author.name", `[{"id":"1","author":{"name":"Ann"}}]`, "Ann"},
		{"missing author", `[{"id":"1"}]`, UnknownAuthor},
		{"author without name", `[{"id":"1","author":{}}]`, UnknownAuthor},
		{"author is a string", `[{"id":"1","author":"Ann"}]`, UnknownAuthor},
		{"name is not a string", `[{"id":"1","author":{"name":7}}]`, UnknownAuthor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(asArray(mustDecode(t, tt.raw)))
			if len(got) != 1 {
				t.Fatalf("expected one node, got %d", len(got))
			}
			if got[0].Author != tt.want {
				t.Errorf("author = %q, want %q", got[0].Author, tt.want)
			}
		})
	}
}

func TestNormalize_TextFallbacks(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"body.text", `[{"id":"1","body":{"text":"hi"}}]`, "hi"},
		{"message.text", `[{"id":"1","message":{"text":"hello"}}]`, "hello"},
		{"body.text wins over message.text", `[{"id":"1","body":{"text":"hi"},"message":{"text":"hello"}}]`, "hi"},
		{"missing both", `[{"id":"1"}]`, ""},
		{"body.text not a string", `[{"id":"1","body":{"text":9},"message":{"text":"hello"}}]`, "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(asArray(mustDecode(t, tt.raw)))
			if len(got) != 1 {
				t.Fatalf("expected one node, got %d", len(got))
			}
			if got[0].Text != tt.want {
				t.Errorf("text = %q, want %q", got[0].Text, tt.want)
			}
		})
	}
}

func TestNormalize_NonObjectMemberYieldsDefaults(t *testing.T) {
	got := Normalize(asArray(mustDecode(t, `["stray", {"id":"1","body":{"text":"hi"}}]`)))
	if len(got) != 2 {
		t.Fatalf("expected two nodes, got %d", len(got))
	}
	if got[0].ID != nil || got[0].Author != UnknownAuthor || got[0].Text != "" || len(got[0].Replies) != 0 {
		t.Errorf("stray member should normalize to defaults, got %+v", got[0])
	}
	if got[1].ID != "1" {
		t.Errorf("second node id = %v, want 1", got[1].ID)
	}
}

func TestNormalize_EdgeOrderAndMissingNodes(t *testing.T) {
	raw := `[
		{"id":"1",
		 "feedback":{"replies_connection":{"edges":[
			{"node":{"id":"a"}},
			{"cursor":"only"},
			{"node":{"id":"c"}}
		 ]}}}
	]`

	got := Normalize(asArray(mustDecode(t, raw)))
	if len(got) != 1 {
		t.Fatalf("expected one root, got %d", len(got))
	}
	replies := got[0].Replies
	if len(replies) != 3 {
		t.Fatalf("expected three reply slots, got %d", len(replies))
	}
	if replies[0].ID != "a" || replies[2].ID != "c" {
		t.Errorf("edge order not preserved: %+v", replies)
	}
	if replies[1].ID != nil || replies[1].Author != UnknownAuthor {
		t.Errorf("edge without node should yield a default slot, got %+v", replies[1])
	}
}

func TestNormalize_MixedShapesAcrossDepths(t *testing.T) {
	raw := `[
		{"id":"1",
		 "replies":{"nodes":[
			{"id":"2",
			 "feedback":{"replies_connection":{"edges":[{"node":{"id":"3"}}]}}}
		 ]}}
	]`

	got := Normalize(asArray(mustDecode(t, raw)))
	if len(got) != 1 || len(got[0].Replies) != 1 || len(got[0].Replies[0].Replies) != 1 {
		t.Fatalf("expected a three-level chain, got %+v", got)
	}
	if got[0].Replies[0].Replies[0].ID != "3" {
		t.Errorf("deepest id = %v, want 3", got[0].Replies[0].Replies[0].ID)
	}
}

func TestNormalize_NonSequenceInput(t *testing.T) {
	for _, v := range []any{nil, "text", map[string]any{"id": "1"}, 3.5} {
		got := Normalize(v)
		if got == nil {
			t.Fatal("Normalize must never return nil")
		}
		if len(got) != 0 {
			t.Errorf("Normalize(%v) = %+v, want empty", v, got)
		}
	}
}

func TestNormalize_RepliesAlwaysInitialized(t *testing.T) {
	got := Normalize(asArray(mustDecode(t, `[{"id":"1"}]`)))
	if got[0].Replies == nil {
		t.Error("leaf replies must be an empty slice, not nil")
	}
}
