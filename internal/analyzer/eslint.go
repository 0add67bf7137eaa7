package analyzer

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/lintagent/lintagent/models"
)

// ESLint lints JavaScript and TypeScript files.
type ESLint struct {
	profile ToolProfile
	probe   toolProbe
}

func NewESLint(profile ToolProfile) *ESLint {
	return &ESLint{profile: profile}
}

func (e *ESLint) Name() string     { return "eslint" }
func (e *ESLint) Language() string { return "javascript" }

func (e *ESLint) Extensions() []string {
	return []string{".js", ".jsx", ".ts", ".tsx"}
}

func (e *ESLint) Available(ctx context.Context) bool {
	return !e.profile.Disabled && e.probe.available(ctx, "eslint")
}

// eslintOutput mirrors eslint's --format=json schema.
type eslintOutput []struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID    string          `json:"ruleId"`
		Severity  int             `json:"severity"` // 1 = warning, 2 = error
		Message   string          `json:"message"`
		Line      int             `json:"line"`
		Column    int             `json:"column"`
		EndLine   int             `json:"endLine"`
		EndColumn int             `json:"endColumn"`
		Fix       json.RawMessage `json:"fix"`
	} `json:"messages"`
}

func (e *ESLint) Analyze(ctx context.Context, absPath, relPath string) ([]models.Finding, error) {
	args := []string{"--format=json"}
	args = append(args, e.profile.ExtraArgs...)
	args = append(args, absPath)

	cmd := exec.CommandContext(ctx, "eslint", args...)
	cmd.Dir = filepath.Dir(absPath)
	out, err := cmd.Output()
	// eslint exits 1 when it reports problems.
	if err != nil && !isExitCode(err, 1) {
		return nil, err
	}
	return e.parse(out, relPath), nil
}

func (e *ESLint) parse(out []byte, relPath string) []models.Finding {
	var report eslintOutput
	if err := json.Unmarshal(out, &report); err != nil {
		slog.Warn("Failed to parse eslint output", "error", err)
		return nil
	}

	language := strings.TrimPrefix(filepath.Ext(relPath), ".")
	var findings []models.Finding
	for _, file := range report {
		for _, m := range file.Messages {
			sev := models.SeverityWarning
			if m.Severity == 2 {
				sev = models.SeverityError
			}
			sev = e.profile.OverrideSeverity(m.RuleID, sev)

			category := "general"
			if idx := strings.Index(m.RuleID, "/"); idx > 0 {
				category = m.RuleID[:idx]
			}

			findings = append(findings, models.Finding{
				FilePath:  relPath,
				Line:      m.Line,
				Column:    m.Column,
				EndLine:   m.EndLine,
				EndColumn: m.EndColumn,
				Kind:      models.KindLint,
				Code:      m.RuleID,
				Message:   m.Message,
				Severity:  sev,
				Language:  language,
				Category:  category,
				Tool:      "eslint",
				Fixable:   len(m.Fix) > 0 && string(m.Fix) != "null",
			})
		}
	}
	return findings
}
