// Package gitrepo versions each source's normalized thread output. Every
// extraction that changes the output lands as one commit on main, so the
// history endpoints can replay what a source looked like at any capture.
package gitrepo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"threadsift/internal/store"
)

const threadsFile = "threads.json"

var (
	ErrNoHistory       = errors.New("source has no recorded history")
	ErrUnknownRevision = errors.New("unknown revision")
)

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// RecordExtraction commits the serialized thread output for a source. When
// the bytes match HEAD the commit is skipped and committed is false.
func (s *Service) RecordExtraction(sourceID string, threads []byte, author, message string) (store.CommitInfo, bool, error) {
	lock := s.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(sourceID)
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		info, initErr := s.initRepo(path, threads, author, message)
		if initErr != nil {
			return store.CommitInfo{}, false, initErr
		}
		return info, true, nil
	}
	if err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("open repo: %w", err)
	}

	head, headErr := headCommit(repo)
	if headErr == nil {
		current, readErr := readThreadsFromCommit(head)
		if readErr == nil && bytes.Equal(current, withTrailingNewline(threads)) {
			return toCommitInfo(head), false, nil
		}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, threadsFile), withTrailingNewline(threads), 0o644); err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("write threads file: %w", err)
	}
	if _, err := worktree.Add(threadsFile); err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("git add threads file: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("commit threads: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), true, nil
}

func (s *Service) initRepo(path string, threads []byte, author, message string) (store.CommitInfo, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return store.CommitInfo{}, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("init repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, threadsFile), withTrailingNewline(threads), 0o644); err != nil {
		return store.CommitInfo{}, fmt.Errorf("write threads file: %w", err)
	}
	if _, err := worktree.Add(threadsFile); err != nil {
		return store.CommitInfo{}, fmt.Errorf("git add threads file: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("commit initial threads: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return store.CommitInfo{}, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return store.CommitInfo{}, fmt.Errorf("set HEAD to main: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History returns the source's extraction commits, newest first.
func (s *Service) History(sourceID string, limit int) ([]store.CommitInfo, error) {
	lock := s.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(sourceID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := headCommit(repo)
	if err != nil {
		return nil, err
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// GetThreadsAt returns the serialized thread output as of a commit. Short
// hashes resolve the way git does.
func (s *Service) GetThreadsAt(sourceID, hash string) ([]byte, error) {
	lock := s.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(sourceID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", hash, ErrUnknownRevision)
	}
	return readThreadsFromCommit(commitObj)
}

func (s *Service) repoPath(sourceID string) string {
	return filepath.Join(s.baseDir, sourceID)
}

func (s *Service) sourceLock(sourceID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[sourceID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[sourceID] = lock
	return lock
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	return commitObj, nil
}

func readThreadsFromCommit(commitObj *object.Commit) ([]byte, error) {
	file, err := commitObj.File(threadsFile)
	if err != nil {
		return nil, fmt.Errorf("load threads file from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open threads reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read threads bytes: %w", err)
	}
	return data, nil
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.threadsift.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "service"
	}
	return string(out)
}

func withTrailingNewline(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\n' {
		return data
	}
	return append(append([]byte{}, data...), '\n')
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%q: %w", hash, ErrUnknownRevision)
	}
	return *resolved, nil
}
