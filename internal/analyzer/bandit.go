package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"

	"github.com/lintagent/lintagent/models"
)

// Bandit finds security issues in Python files.
type Bandit struct {
	profile ToolProfile
	probe   toolProbe
}

func NewBandit(profile ToolProfile) *Bandit {
	return &Bandit{profile: profile}
}

func (b *Bandit) Name() string         { return "bandit" }
func (b *Bandit) Language() string     { return "python" }
func (b *Bandit) Extensions() []string { return []string{".py"} }

func (b *Bandit) Available(ctx context.Context) bool {
	return !b.profile.Disabled && b.probe.available(ctx, "bandit")
}

// banditOutput mirrors the bandit JSON report schema.
type banditOutput struct {
	Results []struct {
		TestID        string `json:"test_id"`
		TestName      string `json:"test_name"`
		IssueText     string `json:"issue_text"`
		IssueSeverity string `json:"issue_severity"`
		LineNumber    int    `json:"line_number"`
		MoreInfo      string `json:"more_info"`
	} `json:"results"`
}

func (b *Bandit) Analyze(ctx context.Context, absPath, relPath string) ([]models.Finding, error) {
	args := []string{"-f", "json"}
	args = append(args, b.profile.ExtraArgs...)
	args = append(args, absPath)

	cmd := exec.CommandContext(ctx, "bandit", args...)
	cmd.Dir = filepath.Dir(absPath)
	out, err := cmd.Output()
	// bandit exits 1 when it reports issues.
	if err != nil && !isExitCode(err, 1) {
		return nil, err
	}
	return b.parse(out, relPath), nil
}

func (b *Bandit) parse(out []byte, relPath string) []models.Finding {
	var report banditOutput
	if err := json.Unmarshal(out, &report); err != nil {
		slog.Warn("Failed to parse bandit output", "error", err)
		return nil
	}

	var findings []models.Finding
	for _, r := range report.Results {
		sev := b.profile.OverrideSeverity(r.TestID, models.MapSeverity(r.IssueSeverity))
		findings = append(findings, models.Finding{
			FilePath: relPath,
			Line:     r.LineNumber,
			Kind:     models.KindSecurity,
			Code:     r.TestID,
			Message:  fmt.Sprintf("%s: %s", r.TestName, r.IssueText),
			Severity: sev,
			Language: "python",
			Category: "security",
			Tool:     "bandit",
			DocURL:   r.MoreInfo,
		})
	}
	return findings
}
