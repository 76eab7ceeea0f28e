package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitProviderOptions configures a GitFileProvider.
type GitProviderOptions struct {
	Path        string
	AuthorName  string
	AuthorEmail string
	// InitIfMissing creates the repository when Path holds none.
	InitIfMissing bool
}

// GitFileProvider keeps mirrored archives in a git working tree. Every write that changes
// a file becomes one commit, so the history shows when each archive grew.
type GitFileProvider struct {
	root   string
	repo   *git.Repository
	author object.Signature

	mu sync.Mutex
}

func NewGitFileProvider(opts GitProviderOptions) (*GitFileProvider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("repository path is required")
	}
	repo, err := openRepo(opts.Path, opts.InitIfMissing)
	if err != nil {
		return nil, err
	}

	author := object.Signature{Name: opts.AuthorName, Email: opts.AuthorEmail}
	if author.Name == "" {
		author.Name = "chatwatch"
	}
	if author.Email == "" {
		author.Email = "chatwatch@localhost"
	}
	return &GitFileProvider{root: opts.Path, repo: repo, author: author}, nil
}

func openRepo(path string, create bool) (*git.Repository, error) {
	repo, err := git.PlainOpen(path)
	switch {
	case err == nil:
		return repo, nil
	case !errors.Is(err, git.ErrRepositoryNotExists) || !create:
		return nil, fmt.Errorf("open git repository %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("create repository directory: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init git repository %s: %w", path, err)
	}
	return repo, nil
}

func (p *GitFileProvider) full(path string) string {
	return filepath.Join(p.root, filepath.FromSlash(path))
}

func (p *GitFileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return readFile(p.full(path), path)
}

// Write replaces path in the working tree and commits it. Unchanged content makes no commit.
func (p *GitFileProvider) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := replaceFile(p.full(path), data); err != nil {
		return err
	}
	return p.commit(path, len(data))
}

func (p *GitFileProvider) commit(path string, size int) error {
	wt, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("git worktree: %w", err)
	}
	if _, err := wt.Add(filepath.ToSlash(path)); err != nil {
		return fmt.Errorf("git add %s: %w", path, err)
	}

	author := p.author
	author.When = time.Now()
	msg := fmt.Sprintf("archive: ship %s\n\n%d bytes\n", path, size)
	_, err = wt.Commit(msg, &git.CommitOptions{Author: &author})
	if errors.Is(err, git.ErrEmptyCommit) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("git commit %s: %w", path, err)
	}
	return nil
}

func (p *GitFileProvider) Exists(ctx context.Context, path string) (bool, error) {
	return fileExists(p.full(path))
}

func (p *GitFileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	return listFiles(p.root, p.full(prefix))
}

// Digest hashes the working tree copy.
func (p *GitFileProvider) Digest(ctx context.Context, path string) (string, error) {
	data, err := p.Read(ctx, path)
	if err != nil {
		return "", err
	}
	return ContentDigest(data), nil
}
