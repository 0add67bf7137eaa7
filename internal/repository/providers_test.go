package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	gogithub "github.com/google/go-github/v68/github"

	"github.com/lintagent/lintagent/internal/config"
	"github.com/lintagent/lintagent/models"
)

// githubStub serves a minimal repository document the way the GitHub API
// does. Size is in KB, matching the API.
func githubStub(t *testing.T, sizeKB int, defaultBranch string) *Preflight {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"size":           sizeKB,
			"default_branch": defaultBranch,
			"private":        false,
		})
	}))
	t.Cleanup(srv.Close)

	client := gogithub.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	client.BaseURL = base
	return &Preflight{github: client}
}

func TestPreflightSkipsUnknownHosts(t *testing.T) {
	p := &Preflight{}
	info, err := p.Lookup(context.Background(), "https://github.com/acme/widgets")
	if err != nil || info != nil {
		t.Fatalf("Lookup = %+v, %v; want nil, nil", info, err)
	}
}

func TestCloneRejectsOversizedRepoBeforeDownload(t *testing.T) {
	c := NewCloner(config.GitConfig{MaxRepoSizeMB: 1})
	c.preflight = githubStub(t, 5*1024, "main")

	_, err := c.Clone(context.Background(), &models.Submission{
		RepoURL: "https://github.com/acme/huge",
		Depth:   1,
	})
	if !errors.Is(err, ErrRepoTooLarge) {
		t.Fatalf("Clone = %v, want ErrRepoTooLarge", err)
	}
}

func TestPreflightFillsDefaultBranch(t *testing.T) {
	c := NewCloner(config.GitConfig{})
	c.preflight = githubStub(t, 10, "trunk")

	branch, err := c.checkPreflight(context.Background(), &models.Submission{
		RepoURL: "https://github.com/acme/widgets",
	})
	if err != nil {
		t.Fatalf("checkPreflight: %v", err)
	}
	if branch != "trunk" {
		t.Errorf("branch = %q, want trunk", branch)
	}

	// An explicit pin wins over the provider default.
	branch, err = c.checkPreflight(context.Background(), &models.Submission{
		RepoURL: "https://github.com/acme/widgets",
		Branch:  "release-1.2",
	})
	if err != nil || branch != "release-1.2" {
		t.Errorf("branch = %q, %v; want release-1.2", branch, err)
	}
}
