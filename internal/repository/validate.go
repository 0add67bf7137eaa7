package repository

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidRepoURL marks a repository URL rejected before any network or
// filesystem activity.
var ErrInvalidRepoURL = errors.New("invalid repository URL")

const maxURLLength = 512

var (
	// Characters that could escape into a shell or confuse git. The URL is
	// never passed to a shell, but rejecting these up front keeps the rest
	// of the pipeline free of surprises.
	shellMetaRe = regexp.MustCompile(`[;&|` + "`" + `$()<>"'\\\s]`)

	// scp-like SSH syntax: git@host:owner/repo.git
	scpLikeRe = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[A-Za-z0-9._~/-]+$`)
)

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"git":   true,
	"ssh":   true,
}

// ValidateURL rejects repository URLs that are malformed, carry embedded
// credentials, attempt path traversal, or contain shell metacharacters.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRepoURL)
	}
	if len(raw) > maxURLLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidRepoURL, maxURLLength)
	}
	if strings.HasPrefix(raw, "-") {
		return fmt.Errorf("%w: starts with a dash", ErrInvalidRepoURL)
	}
	if strings.Contains(raw, "..") {
		return fmt.Errorf("%w: contains path traversal", ErrInvalidRepoURL)
	}
	if shellMetaRe.MatchString(raw) {
		return fmt.Errorf("%w: contains forbidden characters", ErrInvalidRepoURL)
	}

	// scp-like SSH URLs have no scheme and fail url.Parse's host rules.
	if scpLikeRe.MatchString(raw) {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
	}
	if !allowedSchemes[u.Scheme] {
		return fmt.Errorf("%w: scheme %q not allowed", ErrInvalidRepoURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidRepoURL)
	}
	// Credentials belong in tokens, never in the URL itself.
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword || u.Scheme == "http" || u.Scheme == "https" {
			return fmt.Errorf("%w: embedded credentials not allowed", ErrInvalidRepoURL)
		}
	}
	return nil
}
