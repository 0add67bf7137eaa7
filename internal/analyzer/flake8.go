package analyzer

import (
	"context"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lintagent/lintagent/models"
)

// Flake8 lints Python files.
type Flake8 struct {
	profile ToolProfile
	probe   toolProbe
}

func NewFlake8(profile ToolProfile) *Flake8 {
	return &Flake8{profile: profile}
}

func (f *Flake8) Name() string         { return "flake8" }
func (f *Flake8) Language() string     { return "python" }
func (f *Flake8) Extensions() []string { return []string{".py"} }

func (f *Flake8) Available(ctx context.Context) bool {
	return !f.profile.Disabled && f.probe.available(ctx, "flake8")
}

func (f *Flake8) Analyze(ctx context.Context, absPath, relPath string) ([]models.Finding, error) {
	args := []string{"--format=%(path)s:%(row)d:%(col)d:%(code)s:%(text)s"}
	args = append(args, f.profile.ExtraArgs...)
	args = append(args, absPath)

	cmd := exec.CommandContext(ctx, "flake8", args...)
	cmd.Dir = filepath.Dir(absPath)
	out, err := cmd.Output()
	// flake8 exits 1 when it reports issues.
	if err != nil && !isExitCode(err, 1) {
		return nil, err
	}
	return f.parse(out, relPath), nil
}

func (f *Flake8) parse(out []byte, relPath string) []models.Finding {
	var findings []models.Finding
	for _, line := range strings.Split(string(out), "\n") {
		parts := strings.SplitN(line, ":", 5)
		if len(parts) < 5 {
			continue
		}
		row, _ := strconv.Atoi(parts[1])
		col, _ := strconv.Atoi(parts[2])
		code := parts[3]

		sev := models.SeverityWarning
		if strings.HasPrefix(code, "E9") || strings.HasPrefix(code, "F") {
			sev = models.SeverityError
		}
		sev = f.profile.OverrideSeverity(code, sev)

		category := "error"
		if strings.HasPrefix(code, "E") || strings.HasPrefix(code, "W") {
			category = "style"
		}

		findings = append(findings, models.Finding{
			FilePath: relPath,
			Line:     row,
			Column:   col,
			Kind:     models.KindLint,
			Code:     code,
			Message:  strings.TrimSpace(parts[4]),
			Severity: sev,
			Language: "python",
			Category: category,
			Tool:     "flake8",
			Fixable:  f.profile.Fixable(code),
		})
	}
	return findings
}
