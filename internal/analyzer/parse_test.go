package analyzer

import (
	"testing"

	"github.com/lintagent/lintagent/models"
)

func TestFlake8Parse(t *testing.T) {
	out := []byte(`/tmp/ws/app.py:3:1:E302:expected 2 blank lines, got 1
/tmp/ws/app.py:10:80:E501:line too long (92 > 79 characters)
/tmp/ws/app.py:12:5:F821:undefined name 'foo'
garbage line without enough fields
`)
	profile := ToolProfile{
		FixableCodes: []string{"E302"},
		Severity:     map[string]string{"E9": "error", "F": "error"},
	}
	findings := NewFlake8(profile).parse(out, "src/app.py")
	if len(findings) != 3 {
		t.Fatalf("got %d findings, want 3", len(findings))
	}

	first := findings[0]
	if first.FilePath != "src/app.py" || first.Line != 3 || first.Column != 1 {
		t.Errorf("position = %s:%d:%d", first.FilePath, first.Line, first.Column)
	}
	if first.Code != "E302" || first.Severity != models.SeverityWarning || !first.Fixable {
		t.Errorf("first = %+v", first)
	}
	if findings[2].Severity != models.SeverityError {
		t.Errorf("F821 severity = %s, want error", findings[2].Severity)
	}
	if findings[0].Kind != models.KindLint || findings[0].Tool != "flake8" {
		t.Errorf("kind/tool = %s/%s", findings[0].Kind, findings[0].Tool)
	}
}

func TestBanditParse(t *testing.T) {
	out := []byte(`{
		"results": [
			{
				"test_id": "B602",
				"test_name": "subprocess_popen_with_shell_equals_true",
				"issue_text": "subprocess call with shell=True identified",
				"issue_severity": "HIGH",
				"line_number": 44,
				"more_info": "https://bandit.readthedocs.io/en/latest/plugins/b602.html"
			}
		]
	}`)
	findings := NewBandit(ToolProfile{}).parse(out, "src/runner.py")
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	f := findings[0]
	if f.Kind != models.KindSecurity || f.Code != "B602" || f.Line != 44 {
		t.Errorf("finding = %+v", f)
	}
	if f.Severity != models.SeverityError {
		t.Errorf("severity = %s, want error (HIGH maps up)", f.Severity)
	}
	if f.DocURL == "" {
		t.Error("expected doc URL")
	}
}

func TestBanditParseGarbage(t *testing.T) {
	if findings := NewBandit(ToolProfile{}).parse([]byte("not json"), "a.py"); findings != nil {
		t.Errorf("expected nil findings for unparsable output, got %v", findings)
	}
}

func TestESLintParse(t *testing.T) {
	out := []byte(`[
		{
			"filePath": "/tmp/ws/index.js",
			"messages": [
				{
					"ruleId": "no-unused-vars",
					"severity": 2,
					"message": "'x' is defined but never used.",
					"line": 5,
					"column": 7,
					"endLine": 5,
					"endColumn": 8
				},
				{
					"ruleId": "import/order",
					"severity": 1,
					"message": "Import order is wrong.",
					"line": 1,
					"column": 1,
					"fix": {"range": [0, 10], "text": ""}
				}
			]
		}
	]`)
	findings := NewESLint(ToolProfile{}).parse(out, "src/index.js")
	if len(findings) != 2 {
		t.Fatalf("got %d findings, want 2", len(findings))
	}
	if findings[0].Severity != models.SeverityError || findings[0].Fixable {
		t.Errorf("first = %+v", findings[0])
	}
	if findings[1].Severity != models.SeverityWarning || !findings[1].Fixable {
		t.Errorf("second = %+v", findings[1])
	}
	if findings[1].Category != "import" {
		t.Errorf("category = %q, want import", findings[1].Category)
	}
	if findings[0].Language != "js" {
		t.Errorf("language = %q, want js", findings[0].Language)
	}
}

func TestGoVetParse(t *testing.T) {
	out := []byte(`# example.com/pkg
./main.go:15:2: unreachable code
./other.go:3:1: printf call has arguments but no formatting directives
`)
	g := NewGoVet(ToolProfile{})
	findings := g.parse(out, "/tmp/ws/pkg/main.go", "pkg/main.go")
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1 (other.go filtered)", len(findings))
	}
	f := findings[0]
	if f.Line != 15 || f.Column != 2 || f.Message != "unreachable code" {
		t.Errorf("finding = %+v", f)
	}
	if f.Severity != models.SeverityError || f.Category != "vet" {
		t.Errorf("severity/category = %s/%s", f.Severity, f.Category)
	}
}

func TestProfileSeverityOverride(t *testing.T) {
	p := ToolProfile{Severity: map[string]string{"E": "info", "E9": "error"}}
	if got := p.OverrideSeverity("E501", models.SeverityWarning); got != models.SeverityInfo {
		t.Errorf("E501 = %s, want info", got)
	}
	// Longest prefix wins.
	if got := p.OverrideSeverity("E999", models.SeverityWarning); got != models.SeverityError {
		t.Errorf("E999 = %s, want error", got)
	}
	if got := p.OverrideSeverity("W291", models.SeverityWarning); got != models.SeverityWarning {
		t.Errorf("W291 = %s, want warning (no override)", got)
	}
}

func TestLoadProfilesDefaults(t *testing.T) {
	p, err := LoadProfiles("")
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	flake8 := p.For("flake8")
	if !flake8.Fixable("E302") {
		t.Error("expected E302 to be fixable by default")
	}
	if len(flake8.ExtraArgs) == 0 {
		t.Error("expected default flake8 extra args")
	}
	if p.For("unknown-tool").Disabled {
		t.Error("unknown tool profile should be zero value")
	}
}
