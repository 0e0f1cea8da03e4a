package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSourceHistoryLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first := []byte(`[{"id":"1","author":"Ann","text":"hi","replies":[]}]`)
	info, committed, err := svc.RecordExtraction("src-1", first, "api", "Extract 1 thread")
	if err != nil {
		t.Fatalf("RecordExtraction() error = %v", err)
	}
	if !committed {
		t.Fatal("first extraction must commit")
	}
	if info.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "src-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// Identical output: no new commit.
	again, committed, err := svc.RecordExtraction("src-1", first, "api", "Extract 1 thread")
	if err != nil {
		t.Fatalf("RecordExtraction() repeat error = %v", err)
	}
	if committed {
		t.Fatal("unchanged output must not create a commit")
	}
	if again.Hash != info.Hash {
		t.Fatalf("repeat should report the existing head, got %s want %s", again.Hash, info.Hash)
	}

	second := []byte(`[{"id":"1","author":"Ann","text":"hi","replies":[{"id":"2","author":"Bo","text":"hey","replies":[]}]}]`)
	updated, committed, err := svc.RecordExtraction("src-1", second, "api", "Extract reply")
	if err != nil {
		t.Fatalf("RecordExtraction() update error = %v", err)
	}
	if !committed {
		t.Fatal("changed output must commit")
	}

	history, err := svc.History("src-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
	if history[0].Hash != updated.Hash {
		t.Fatalf("newest commit first: got %s want %s", history[0].Hash, updated.Hash)
	}

	// Replay the first version through its short hash.
	old, err := svc.GetThreadsAt("src-1", info.Hash)
	if err != nil {
		t.Fatalf("GetThreadsAt() error = %v", err)
	}
	if strings.TrimSpace(string(old)) != string(first) {
		t.Fatalf("historical threads mismatch:\n got %s\nwant %s", old, first)
	}
}

func TestHistoryForUnknownSource(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.History("never-seen", 10); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("History() error = %v, want ErrNoHistory", err)
	}
	if _, err := svc.GetThreadsAt("never-seen", "abc1234"); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("GetThreadsAt() error = %v, want ErrNoHistory", err)
	}
}

func TestConcurrentRecordExtractionSameSource(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if _, _, err := svc.RecordExtraction("src-1", []byte(`[]`), "api", "Initial"); err != nil {
		t.Fatalf("RecordExtraction() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf(`[{"id":"%02d","author":"Unknown","text":"","replies":[]}]`, idx))
			if _, _, err := svc.RecordExtraction("src-1", payload, "api", fmt.Sprintf("Extract %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("RecordExtraction() concurrent error = %v", err)
		}
	}

	history, err := svc.History("src-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	// Every writer produced distinct bytes, so every write commits.
	if len(history) != writers+1 {
		t.Fatalf("expected %d commits in history, got %d", writers+1, len(history))
	}
}
