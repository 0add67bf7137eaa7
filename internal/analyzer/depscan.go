package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/lintagent/lintagent/models"
)

// DepScanner audits a repository's declared dependencies once per job:
// safety for requirements.txt, npm audit for package.json and govulncheck
// for go.mod. Missing tools or manifests simply contribute nothing.
type DepScanner struct {
	safetyProbe toolProbe
	npmProbe    toolProbe
	govulnProbe toolProbe
}

func NewDepScanner() *DepScanner {
	return &DepScanner{}
}

// Scan runs every applicable dependency audit against the repository root.
func (d *DepScanner) Scan(ctx context.Context, repoRoot string) []models.Finding {
	var findings []models.Finding

	if fileExists(filepath.Join(repoRoot, "requirements.txt")) && d.safetyProbe.available(ctx, "safety") {
		findings = append(findings, d.scanPython(ctx, repoRoot)...)
	}
	if fileExists(filepath.Join(repoRoot, "package.json")) && d.npmProbe.available(ctx, "npm") {
		findings = append(findings, d.scanJS(ctx, repoRoot)...)
	}
	if fileExists(filepath.Join(repoRoot, "go.mod")) && d.govulnProbe.available(ctx, "govulncheck", "-version") {
		findings = append(findings, d.scanGo(ctx, repoRoot)...)
	}
	return findings
}

func (d *DepScanner) scanPython(ctx context.Context, repoRoot string) []models.Finding {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	cmd := exec.CommandContext(runCtx, "safety", "check", "-r", "requirements.txt", "--json")
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil && !isExitCode(err, 64) && !isExitCode(err, 255) && len(out) == 0 {
		slog.Debug("safety failed", "error", err)
		return nil
	}

	// safety's legacy JSON output is a list of [pkg, spec, installed, advisory, id].
	var vulns [][]json.RawMessage
	if err := json.Unmarshal(out, &vulns); err != nil {
		return nil
	}
	var findings []models.Finding
	for _, v := range vulns {
		if len(v) < 4 {
			continue
		}
		var pkg, installed, advisory, id string
		json.Unmarshal(v[0], &pkg)
		json.Unmarshal(v[2], &installed)
		json.Unmarshal(v[3], &advisory)
		if len(v) > 4 {
			json.Unmarshal(v[4], &id)
		}
		findings = append(findings, models.Finding{
			FilePath: "requirements.txt",
			Kind:     models.KindDependency,
			Code:     id,
			Message:  fmt.Sprintf("%s %s: %s", pkg, installed, advisory),
			Severity: models.SeverityError,
			Language: "python",
			Category: "dependency",
			Tool:     "safety",
		})
	}
	return findings
}

// npmAuditOutput mirrors the npm audit --json vulnerability map.
type npmAuditOutput struct {
	Vulnerabilities map[string]struct {
		Severity string `json:"severity"`
		Via      []json.RawMessage
		URL      string `json:"url"`
		Title    string `json:"title"`
	} `json:"vulnerabilities"`
}

func (d *DepScanner) scanJS(ctx context.Context, repoRoot string) []models.Finding {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	cmd := exec.CommandContext(runCtx, "npm", "audit", "--json")
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	// npm audit exits 1 when vulnerabilities exist.
	if err != nil && !isExitCode(err, 1) && len(out) == 0 {
		slog.Debug("npm audit failed", "error", err)
		return nil
	}

	var report npmAuditOutput
	if err := json.Unmarshal(out, &report); err != nil {
		return nil
	}
	var findings []models.Finding
	for pkg, info := range report.Vulnerabilities {
		// Low-grade advisories are noise at repo scale.
		if info.Severity != "high" && info.Severity != "critical" {
			continue
		}
		sev := models.SeverityWarning
		if info.Severity == "critical" {
			sev = models.SeverityError
		}
		findings = append(findings, models.Finding{
			FilePath: "package.json",
			Kind:     models.KindDependency,
			Message:  fmt.Sprintf("%s: %s severity - %s", pkg, info.Severity, info.Title),
			Severity: sev,
			Language: "javascript",
			Category: "dependency",
			Tool:     "npm-audit",
			DocURL:   info.URL,
		})
	}
	return findings
}

func (d *DepScanner) scanGo(ctx context.Context, repoRoot string) []models.Finding {
	runCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()
	cmd := exec.CommandContext(runCtx, "govulncheck", "-json", "./...")
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil && !isExitCode(err, 3) && len(out) == 0 {
		slog.Debug("govulncheck failed", "error", err)
		return nil
	}

	// govulncheck streams JSON objects; findings carry an "osv" block.
	var findings []models.Finding
	dec := json.NewDecoder(bytes.NewReader(out))
	for dec.More() {
		var msg struct {
			OSV *struct {
				ID      string `json:"id"`
				Summary string `json:"summary"`
				Affected []struct {
					Package struct {
						Name string `json:"name"`
					} `json:"package"`
				} `json:"affected"`
			} `json:"osv"`
		}
		if err := dec.Decode(&msg); err != nil {
			break
		}
		if msg.OSV == nil {
			continue
		}
		pkg := ""
		if len(msg.OSV.Affected) > 0 {
			pkg = msg.OSV.Affected[0].Package.Name
		}
		findings = append(findings, models.Finding{
			FilePath: "go.mod",
			Kind:     models.KindDependency,
			Code:     msg.OSV.ID,
			Message:  fmt.Sprintf("%s: %s", pkg, msg.OSV.Summary),
			Severity: models.SeverityError,
			Language: "go",
			Category: "dependency",
			Tool:     "govulncheck",
			DocURL:   "https://pkg.go.dev/vuln/" + msg.OSV.ID,
		})
	}
	return findings
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
