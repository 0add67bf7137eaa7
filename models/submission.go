package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Submission is the inbound analysis request, as handed over by the
// transport layer. The orchestrator keeps it in memory alongside the queue
// entry while the job is pending or processing.
type Submission struct {
	RepoURL         string         `json:"repo_url"`
	Team            string         `json:"team"`
	Leader          string         `json:"leader"`
	Branch          string         `json:"branch,omitempty"`
	Tag             string         `json:"tag,omitempty"`
	CommitSHA       string         `json:"commit_sha,omitempty"`
	Depth           int            `json:"depth,omitempty"` // clone depth, 1-10
	Submodules      bool           `json:"submodules,omitempty"`
	IncludePatterns []string       `json:"include_patterns,omitempty"`
	ExcludePatterns []string       `json:"exclude_patterns,omitempty"`
	Priority        int            `json:"priority,omitempty"` // 0-10, higher first
	Webhook         *WebhookConfig `json:"webhook,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Normalize clamps depth/priority into their valid ranges and trims fields.
func (s *Submission) Normalize() {
	s.RepoURL = strings.TrimSpace(s.RepoURL)
	s.Team = strings.TrimSpace(s.Team)
	s.Leader = strings.TrimSpace(s.Leader)
	if s.Depth < 1 {
		s.Depth = 1
	}
	if s.Depth > 10 {
		s.Depth = 10
	}
	if s.Priority < 0 {
		s.Priority = 0
	}
	if s.Priority > 10 {
		s.Priority = 10
	}
}

// MetadataJSON encodes the metadata map for persistence.
func (s *Submission) MetadataJSON() string {
	if len(s.Metadata) == 0 {
		return ""
	}
	b, err := json.Marshal(s.Metadata)
	if err != nil {
		return ""
	}
	return string(b)
}

// WebhookJSON encodes the webhook configuration for persistence.
func (s *Submission) WebhookJSON() string {
	if s.Webhook == nil {
		return ""
	}
	b, err := json.Marshal(s.Webhook)
	if err != nil {
		return ""
	}
	return string(b)
}

// WebhookEvents are the lifecycle events a webhook may subscribe to.
var WebhookEvents = map[string]bool{
	"started":   true,
	"progress":  true,
	"completed": true,
	"failed":    true,
}

// WebhookConfig describes where and how to notify a caller about job
// lifecycle events.
type WebhookConfig struct {
	URL        string            `json:"url"`
	Secret     string            `json:"secret,omitempty"`
	Events     []string          `json:"events,omitempty"` // default: completed, failed
	Headers    map[string]string `json:"headers,omitempty"`
	TimeoutSec int               `json:"timeout,omitempty"`
}

// Validate checks the endpoint URL and subscribed events.
func (w *WebhookConfig) Validate() error {
	u, err := url.Parse(strings.TrimSpace(w.URL))
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook URL must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook URL has no host")
	}
	for _, e := range w.Events {
		if !WebhookEvents[e] {
			return fmt.Errorf("unknown webhook event %q", e)
		}
	}
	if w.TimeoutSec < 0 || w.TimeoutSec > 60 {
		return fmt.Errorf("webhook timeout must be 0-60 seconds")
	}
	return nil
}

// WantsEvent reports whether the configuration subscribes to event.
// An empty event list means the default subscription: completed and failed.
func (w *WebhookConfig) WantsEvent(event string) bool {
	if len(w.Events) == 0 {
		return event == "completed" || event == "failed"
	}
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}
