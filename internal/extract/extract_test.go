package extract

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRun_EndToEnd(t *testing.T) {
	doc := mustDecode(t, `{
		"data": {
			"comments": [
				{"id":"1","author":{"name":"Ann"},"body":{"text":"hi"},
				 "feedback":{"replies":{"nodes":[
					{"id":"2","author":{"name":"Bo"},"body":{"text":"hey"}}
				 ]}}}
			]
		}
	}`)

	res := Run(doc)
	if !res.Found {
		t.Fatal("expected the collection to be found")
	}
	if res.TopLevelCount != 1 || res.RootCount != 1 || res.CommentCount != 2 {
		t.Errorf("counts = %d/%d/%d, want 1/1/2", res.TopLevelCount, res.RootCount, res.CommentCount)
	}

	out, err := json.Marshal(res.Roots)
	if err != nil {
		t.Fatalf("marshal roots: %v", err)
	}
	want := `[{"id":"1","author":"Ann","text":"hi","replies":[{"id":"2","author":"Bo","text":"hey","replies":[]}]}]`
	if string(out) != want {
		t.Errorf("serialized roots:\n got %s\nwant %s", out, want)
	}
}

func TestRun_NoCollection(t *testing.T) {
	res := Run(mustDecode(t, `{"title":"no comments here","views":12}`))
	if res.Found {
		t.Error("expected Found=false")
	}
	if res.Roots == nil {
		t.Fatal("roots must be empty, not nil")
	}

	out, err := json.Marshal(res.Roots)
	if err != nil {
		t.Fatalf("marshal roots: %v", err)
	}
	if string(out) != "[]" {
		t.Errorf("empty result must serialize as [], got %s", out)
	}
}

func TestRun_DeduplicatesTopLevel(t *testing.T) {
	doc := mustDecode(t, `[
		{"id":"A","body":{"text":"root"},
		 "replies":{"nodes":[{"id":"B","body":{"text":"child"}}]}},
		{"id":"B","body":{"text":"child"}}
	]`)

	res := Run(doc)
	if res.TopLevelCount != 2 {
		t.Errorf("top-level count = %d, want 2", res.TopLevelCount)
	}
	if res.RootCount != 1 {
		t.Errorf("root count = %d, want 1", res.RootCount)
	}
	if res.CommentCount != 2 {
		t.Errorf("comment count = %d, want 2", res.CommentCount)
	}
	if len(res.Roots) != 1 || res.Roots[0].ID != "A" {
		t.Errorf("expected only A, got %+v", res.Roots)
	}
}

func TestRun_OutputIsShapeStable(t *testing.T) {
	// Feeding an already-normalized forest back through the pipeline must
	// reproduce the ids and structure (soft fields were lost in the flat
	// encoding, so author falls back and text empties out).
	doc := mustDecode(t, `[
		{"id":"1","author":"Ann","text":"hi","replies":[]}
	]`)

	res := Run(doc)
	if !res.Found {
		t.Fatal("flat encoding should still look like a comment collection")
	}
	if len(res.Roots) != 1 {
		t.Fatalf("expected one root, got %d", len(res.Roots))
	}
	got := res.Roots[0]
	if got.ID != "1" || got.Author != UnknownAuthor || got.Text != "" || len(got.Replies) != 0 {
		t.Errorf("unexpected normalization of flat node: %+v", got)
	}
}

func TestRun_NumericIDsStayExact(t *testing.T) {
	doc := mustDecode(t, `[{"id":10000000000000001,"body":{"text":"big"}}]`)

	res := Run(doc)
	if len(res.Roots) != 1 {
		t.Fatalf("expected one root, got %d", len(res.Roots))
	}
	num, ok := res.Roots[0].ID.(json.Number)
	if !ok {
		t.Fatalf("id decoded as %T, want json.Number", res.Roots[0].ID)
	}
	if num.String() != "10000000000000001" {
		t.Errorf("id = %s, lost precision", num)
	}

	out, err := json.Marshal(res.Roots[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"id":10000000000000001`) {
		t.Errorf("id must round-trip unquoted and exact, got %s", out)
	}
}

func TestDecodeDocument(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		doc, err := DecodeDocument(strings.NewReader(`{"a":[1,2]}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := doc.(map[string]any); !ok {
			t.Errorf("decoded as %T, want map", doc)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := DecodeDocument(strings.NewReader(`{"a":`)); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("trailing data", func(t *testing.T) {
		_, err := DecodeDocument(strings.NewReader(`{} {"second":true}`))
		if !errors.Is(err, ErrTrailingData) {
			t.Fatalf("error = %v, want ErrTrailingData", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if _, err := DecodeDocument(strings.NewReader("")); err == nil {
			t.Fatal("expected an error for empty input")
		}
	})
}

func TestCountComments(t *testing.T) {
	forest := []Comment{
		{ID: "1", Replies: []Comment{
			{ID: "2", Replies: []Comment{{ID: "3", Replies: []Comment{}}}},
		}},
		{ID: "4", Replies: []Comment{}},
	}
	if got := CountComments(forest); got != 4 {
		t.Errorf("CountComments = %d, want 4", got)
	}
	if got := CountComments(nil); got != 0 {
		t.Errorf("CountComments(nil) = %d, want 0", got)
	}
}
