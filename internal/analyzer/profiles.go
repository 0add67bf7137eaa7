package analyzer

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/lintagent/lintagent/models"
)

//go:embed profiles.yaml
var defaultProfiles []byte

// ToolProfile tunes one analyzer: extra command-line arguments, the set of
// rule codes considered auto-fixable, and severity overrides by code prefix.
type ToolProfile struct {
	Disabled     bool              `yaml:"disabled"`
	ExtraArgs    []string          `yaml:"extra_args"`
	FixableCodes []string          `yaml:"fixable_codes"`
	Severity     map[string]string `yaml:"severity"`
}

// Fixable reports whether code is in the profile's fixable set.
func (p ToolProfile) Fixable(code string) bool {
	for _, c := range p.FixableCodes {
		if c == code {
			return true
		}
	}
	return false
}

// OverrideSeverity applies the longest matching code-prefix override, if any.
func (p ToolProfile) OverrideSeverity(code string, sev models.Severity) models.Severity {
	best := ""
	for prefix := range p.Severity {
		if strings.HasPrefix(code, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return sev
	}
	return models.MapSeverity(p.Severity[best])
}

// Profiles holds the per-tool tuning, keyed by tool name.
type Profiles struct {
	Tools map[string]ToolProfile `yaml:"tools"`
}

// For returns the profile for tool, or a zero profile when none is defined.
func (p *Profiles) For(tool string) ToolProfile {
	if p == nil {
		return ToolProfile{}
	}
	return p.Tools[tool]
}

// LoadProfiles reads tool profiles from path, or the built-in defaults when
// path is empty. A profile file replaces the defaults wholesale.
func LoadProfiles(path string) (*Profiles, error) {
	data := defaultProfiles
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading tool profiles: %w", err)
		}
	}
	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing tool profiles: %w", err)
	}
	return &p, nil
}
