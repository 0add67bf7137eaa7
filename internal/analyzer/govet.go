package analyzer

import (
	"context"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/lintagent/lintagent/models"
)

// GoVet runs `go vet` against the package containing the file.
type GoVet struct {
	profile ToolProfile
	probe   toolProbe
}

func NewGoVet(profile ToolProfile) *GoVet {
	return &GoVet{profile: profile}
}

func (g *GoVet) Name() string         { return "govet" }
func (g *GoVet) Language() string     { return "go" }
func (g *GoVet) Extensions() []string { return []string{".go"} }

func (g *GoVet) Available(ctx context.Context) bool {
	return !g.profile.Disabled && g.probe.available(ctx, "go", "version")
}

// vetLineRe matches "file.go:12:3: message" diagnostics on stderr.
var vetLineRe = regexp.MustCompile(`^(.+\.go):(\d+):(\d+):\s+(.+)$`)

func (g *GoVet) Analyze(ctx context.Context, absPath, relPath string) ([]models.Finding, error) {
	cmd := exec.CommandContext(ctx, "go", "vet", ".")
	cmd.Dir = filepath.Dir(absPath)
	out, err := cmd.CombinedOutput()
	// go vet exits non-zero when it reports diagnostics; parse regardless.
	if err != nil && !isExitCode(err, 1) && !isExitCode(err, 2) {
		return nil, err
	}
	return g.parse(out, absPath, relPath), nil
}

func (g *GoVet) parse(out []byte, absPath, relPath string) []models.Finding {
	base := filepath.Base(absPath)
	var findings []models.Finding
	for _, line := range strings.Split(string(out), "\n") {
		m := vetLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		// vet reports the whole package; keep diagnostics for our file only.
		if filepath.Base(m[1]) != base {
			continue
		}
		row, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		findings = append(findings, models.Finding{
			FilePath: relPath,
			Line:     row,
			Column:   col,
			Kind:     models.KindLint,
			Message:  strings.TrimSpace(m[4]),
			Severity: g.profile.OverrideSeverity("vet", models.SeverityError),
			Language: "go",
			Category: "vet",
			Tool:     "govet",
		})
	}
	return findings
}
