// Package analyzer runs external lint, security and type-checking tools
// against individual files and normalises their output into findings.
// Results are cached by content hash so identical files across jobs are
// analyzed once.
package analyzer

import (
	"context"
	"errors"
	"os/exec"
	"sync"

	"github.com/lintagent/lintagent/models"
)

// Analyzer wraps one external tool. Implementations must be safe for
// concurrent use; the worker pool analyzes files from several jobs at once.
//
// To add a tool:
//  1. Create a new file in internal/analyzer/ (e.g. mytool.go)
//  2. Implement the Analyzer interface
//  3. Register it in BuildAnalyzers()
type Analyzer interface {
	// Name returns the tool name (e.g. "flake8").
	Name() string

	// Language returns the language this tool covers.
	Language() string

	// Extensions returns the file extensions this tool handles.
	Extensions() []string

	// Available reports whether the tool can be executed. Called once per
	// process; implementations cache the probe.
	Available(ctx context.Context) bool

	// Analyze runs the tool against absPath and returns findings with
	// FilePath set to relPath.
	Analyze(ctx context.Context, absPath, relPath string) ([]models.Finding, error)
}

// BuildAnalyzers returns every registered analyzer, configured from profiles.
func BuildAnalyzers(profiles *Profiles) []Analyzer {
	return []Analyzer{
		NewFlake8(profiles.For("flake8")),
		NewBandit(profiles.For("bandit")),
		NewESLint(profiles.For("eslint")),
		NewGoVet(profiles.For("govet")),
	}
}

// toolProbe caches an availability check for one binary.
type toolProbe struct {
	once sync.Once
	ok   bool
}

func (p *toolProbe) available(ctx context.Context, name string, versionArgs ...string) bool {
	p.once.Do(func() {
		path, err := exec.LookPath(name)
		if err != nil {
			return
		}
		if len(versionArgs) == 0 {
			versionArgs = []string{"--version"}
		}
		// Verify it actually runs.
		p.ok = exec.CommandContext(ctx, path, versionArgs...).Run() == nil
	})
	return p.ok
}

// isExitCode reports whether err is an ExitError with the given code.
// Linters exit non-zero when they find issues; that is not a failure.
func isExitCode(err error, code int) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == code
	}
	return false
}
