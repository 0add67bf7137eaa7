package repository

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	gogithub "github.com/google/go-github/v68/github"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/oauth2"

	"github.com/lintagent/lintagent/internal/config"
)

// RepoInfo is provider metadata fetched before a clone: a size hint lets us
// reject oversized repositories without downloading them, and the default
// branch fills in submissions that name none.
type RepoInfo struct {
	DefaultBranch string
	SizeKB        int64
	Private       bool
}

// Preflight looks up repository metadata on GitHub or GitLab when the
// matching token is configured. Hosts without a client are skipped.
type Preflight struct {
	github *gogithub.Client
	gitlab *gitlab.Client
}

// NewPreflight builds provider clients for each configured token.
func NewPreflight(cfg config.GitConfig) (*Preflight, error) {
	p := &Preflight{}
	if cfg.GitHubToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
		p.github = gogithub.NewClient(oauth2.NewClient(context.Background(), ts))
	}
	if cfg.GitLabToken != "" {
		client, err := gitlab.NewClient(cfg.GitLabToken)
		if err != nil {
			return nil, fmt.Errorf("creating GitLab client: %w", err)
		}
		p.gitlab = client
	}
	return p, nil
}

// Lookup fetches metadata for repoURL. Returns (nil, nil) when no client
// covers the host; preflight is an optimisation, never a gate.
func (p *Preflight) Lookup(ctx context.Context, repoURL string) (*RepoInfo, error) {
	host, owner, name := splitRepoURL(repoURL)
	if owner == "" || name == "" {
		return nil, nil
	}
	switch {
	case p.github != nil && strings.HasSuffix(host, "github.com"):
		r, _, err := p.github.Repositories.Get(ctx, owner, name)
		if err != nil {
			return nil, fmt.Errorf("github lookup %s/%s: %w", owner, name, err)
		}
		return &RepoInfo{
			DefaultBranch: r.GetDefaultBranch(),
			SizeKB:        int64(r.GetSize()),
			Private:       r.GetPrivate(),
		}, nil
	case p.gitlab != nil && strings.HasSuffix(host, "gitlab.com"):
		proj, _, err := p.gitlab.Projects.GetProject(owner+"/"+name, nil, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("gitlab lookup %s/%s: %w", owner, name, err)
		}
		info := &RepoInfo{
			DefaultBranch: proj.DefaultBranch,
			Private:       proj.Visibility == gitlab.PrivateVisibility,
		}
		if proj.Statistics != nil {
			info.SizeKB = proj.Statistics.RepositorySize / 1024
		}
		return info, nil
	}
	return nil, nil
}

// splitRepoURL extracts host, owner and repository name from an HTTPS or
// scp-like git URL.
func splitRepoURL(repoURL string) (host, owner, name string) {
	raw := strings.TrimSuffix(repoURL, ".git")

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", ""
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 {
			return u.Hostname(), "", ""
		}
		return u.Hostname(), strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1]
	}

	// git@host:owner/repo
	if at := strings.Index(raw, "@"); at != -1 {
		if colon := strings.Index(raw[at:], ":"); colon != -1 {
			host = raw[at+1 : at+colon]
			parts := strings.Split(strings.Trim(raw[at+colon+1:], "/"), "/")
			if len(parts) >= 2 {
				return host, strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1]
			}
			return host, "", ""
		}
	}
	return "", "", ""
}
