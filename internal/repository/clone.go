package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/google/uuid"

	"github.com/lintagent/lintagent/internal/config"
	"github.com/lintagent/lintagent/models"
)

var (
	// ErrCloneFailed wraps transport and git errors during clone.
	ErrCloneFailed = errors.New("clone failed")
	// ErrRepoTooLarge means the working tree exceeds the configured ceiling.
	ErrRepoTooLarge = errors.New("repository exceeds size limit")
	// ErrCommitNotFound means the pinned commit is not reachable within the
	// requested clone depth.
	ErrCommitNotFound = errors.New("commit not reachable at clone depth")
)

// Workspace is a checked-out repository on local disk.
type Workspace struct {
	Path      string
	Commit    string
	Branch    string
	SizeBytes int64
}

// Cloner materialises repositories into per-job workspace directories.
type Cloner struct {
	cfg       config.GitConfig
	preflight *Preflight
}

// NewCloner creates a Cloner using the git section of the configuration.
func NewCloner(cfg config.GitConfig) *Cloner {
	p, err := NewPreflight(cfg)
	if err != nil {
		slog.Warn("Provider preflight unavailable", "error", err)
		p = &Preflight{}
	}
	return &Cloner{cfg: cfg, preflight: p}
}

// WorkspaceRoot returns the directory under which clone workspaces live.
func (c *Cloner) WorkspaceRoot() string {
	if c.cfg.WorkspaceRoot != "" {
		return c.cfg.WorkspaceRoot
	}
	return os.TempDir()
}

// Clone fetches the repository described by sub into a fresh workspace
// directory. The clone is bounded by the configured timeout and size limit;
// any failure removes the partial workspace before returning.
func (c *Cloner) Clone(ctx context.Context, sub *models.Submission) (*Workspace, error) {
	if err := ValidateURL(sub.RepoURL); err != nil {
		return nil, err
	}
	branch, err := c.checkPreflight(ctx, sub)
	if err != nil {
		return nil, err
	}

	root := c.WorkspaceRoot()
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}
	dir := filepath.Join(root, "lintagent-"+uuid.NewString())

	timeout := time.Duration(c.cfg.CloneTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	cloneCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := &gogit.CloneOptions{
		URL:   sub.RepoURL,
		Depth: sub.Depth,
	}
	if sub.Submodules {
		opts.RecurseSubmodules = gogit.DefaultSubmoduleRecursionDepth
	}
	switch {
	case sub.Tag != "":
		opts.ReferenceName = plumbing.NewTagReferenceName(sub.Tag)
		opts.SingleBranch = true
	case branch != "":
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}
	if auth := c.authFor(sub.RepoURL); auth != nil {
		opts.Auth = auth
	}

	slog.Debug("Cloning repository",
		"url", sub.RepoURL,
		"branch", branch,
		"tag", sub.Tag,
		"depth", sub.Depth,
		"dest", dir,
	)

	repo, err := gogit.PlainCloneContext(cloneCtx, dir, false, opts)
	if err != nil {
		os.RemoveAll(dir)
		if errors.Is(cloneCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timed out after %s", ErrCloneFailed, timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrCloneFailed, err)
	}

	if sub.CommitSHA != "" {
		wt, err := repo.Worktree()
		if err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("%w: %v", ErrCloneFailed, err)
		}
		err = wt.Checkout(&gogit.CheckoutOptions{Hash: plumbing.NewHash(sub.CommitSHA)})
		if err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, sub.CommitSHA)
		}
	}

	head, err := repo.Head()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: resolving HEAD: %v", ErrCloneFailed, err)
	}

	maxBytes := int64(c.cfg.MaxRepoSizeMB) * 1024 * 1024
	size, err := treeSize(dir, maxBytes)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	name := head.Name().Short()
	if name == "" || name == "HEAD" {
		name = branch
	}

	return &Workspace{
		Path:      dir,
		Commit:    head.Hash().String(),
		Branch:    name,
		SizeBytes: size,
	}, nil
}

// checkPreflight consults the provider API before cloning: an oversized
// repository is rejected without downloading a byte, and a submission that
// pins nothing inherits the provider's default branch. Lookup failures are
// logged and ignored; preflight is an optimisation, never a gate.
func (c *Cloner) checkPreflight(ctx context.Context, sub *models.Submission) (string, error) {
	branch := sub.Branch
	if c.preflight == nil {
		return branch, nil
	}
	info, err := c.preflight.Lookup(ctx, sub.RepoURL)
	if err != nil {
		slog.Debug("Repository preflight lookup failed", "url", sub.RepoURL, "error", err)
		return branch, nil
	}
	if info == nil {
		return branch, nil
	}
	if maxKB := int64(c.cfg.MaxRepoSizeMB) * 1024; maxKB > 0 && info.SizeKB > maxKB {
		return "", fmt.Errorf("%w: provider reports %d KB", ErrRepoTooLarge, info.SizeKB)
	}
	if branch == "" && sub.Tag == "" && sub.CommitSHA == "" {
		branch = info.DefaultBranch
	}
	return branch, nil
}

// Cleanup removes the workspace directory.
func (c *Cloner) Cleanup(ws *Workspace) {
	if ws == nil || ws.Path == "" {
		return
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		slog.Warn("Failed to clean up workspace", "path", ws.Path, "error", err)
	}
}

// authFor returns HTTP basic auth for hosts we hold a token for.
func (c *Cloner) authFor(repoURL string) *githttp.BasicAuth {
	u, err := url.Parse(repoURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case c.cfg.GitHubToken != "" && strings.HasSuffix(host, "github.com"):
		return &githttp.BasicAuth{Username: "lintagent", Password: c.cfg.GitHubToken}
	case c.cfg.GitLabToken != "" && strings.HasSuffix(host, "gitlab.com"):
		return &githttp.BasicAuth{Username: "oauth2", Password: c.cfg.GitLabToken}
	}
	return nil
}

// treeSize walks the working tree (skipping .git) and sums file sizes,
// aborting early once maxBytes is exceeded. maxBytes <= 0 disables the limit.
func treeSize(root string, maxBytes int64) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		if maxBytes > 0 && total > maxBytes {
			return fmt.Errorf("%w: working tree larger than %d bytes", ErrRepoTooLarge, maxBytes)
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	return total, nil
}
