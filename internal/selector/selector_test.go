package selector

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/lintagent/lintagent/internal/config"
)

func testConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		MaxFiles:      500,
		MaxFileSizeKB: 1024,
		Extensions:    []string{".py", ".go", ".js"},
	}
}

func writeFile(t *testing.T, root, rel string, size int) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, bytes.Repeat([]byte("a"), size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func relPaths(r *Result) []string {
	out := make([]string, len(r.Files))
	for i, f := range r.Files {
		out[i] = f.RelPath
	}
	return out
}

func TestSelectFiltersByExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", 10)
	writeFile(t, root, "app.py", 10)
	writeFile(t, root, "README.md", 10)
	writeFile(t, root, "image.png", 10)

	res, err := New(testConfig()).Select(root, nil, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	got := relPaths(res)
	if len(got) != 2 || got[0] != "app.py" || got[1] != "main.go" {
		t.Errorf("selected = %v, want [app.py main.go]", got)
	}
	if res.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", res.Skipped)
	}
}

func TestSelectSkipsVendorAndGitDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", 10)
	writeFile(t, root, ".git/hooks/sample.py", 10)
	writeFile(t, root, "node_modules/pkg/index.js", 10)
	writeFile(t, root, "vendor/lib/lib.go", 10)

	res, err := New(testConfig()).Select(root, nil, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := relPaths(res); len(got) != 1 || got[0] != "main.go" {
		t.Errorf("selected = %v, want [main.go]", got)
	}
}

func TestSelectSizeCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFileSizeKB = 1 // 1 KB

	root := t.TempDir()
	for i := 0; i < 7; i++ {
		writeFile(t, root, filepath.Join("pkg", string(rune('a'+i))+".go"), 100)
	}
	writeFile(t, root, "big1.go", 4096)
	writeFile(t, root, "big2.go", 4096)
	writeFile(t, root, "big3.go", 4096)

	res, err := New(cfg).Select(root, nil, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Files) != 7 {
		t.Errorf("selected %d files, want 7 (oversized excluded)", len(res.Files))
	}
	if res.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", res.Skipped)
	}
}

func TestSelectTruncatesAtMaxFiles(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFiles = 5

	root := t.TempDir()
	for i := 0; i < 9; i++ {
		writeFile(t, root, string(rune('a'+i))+".py", 10)
	}

	res, err := New(cfg).Select(root, nil, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Files) != 5 {
		t.Errorf("selected %d files, want 5", len(res.Files))
	}
	if !res.Truncated {
		t.Error("expected Truncated to be set")
	}
	// Deterministic: lexically first five.
	if got := relPaths(res); got[0] != "a.py" || got[4] != "e.py" {
		t.Errorf("selected = %v", got)
	}
}

func TestSelectIncludeExcludeGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.py", 10)
	writeFile(t, root, "src/util.py", 10)
	writeFile(t, root, "tests/test_app.py", 10)
	writeFile(t, root, "scripts/deploy.py", 10)

	sel := New(testConfig())

	res, err := sel.Select(root, []string{"src/*"}, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := relPaths(res); len(got) != 2 || got[0] != "src/app.py" {
		t.Errorf("include filter: %v", got)
	}

	res, err = sel.Select(root, nil, []string{"test_*"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := relPaths(res); len(got) != 3 {
		t.Errorf("exclude filter: %v", got)
	}

	// Exclude wins over include.
	res, err = sel.Select(root, []string{"src/*"}, []string{"util.py"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := relPaths(res); len(got) != 1 || got[0] != "src/app.py" {
		t.Errorf("exclude over include: %v", got)
	}
}

func TestSelectIgnoresSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, outside, "secret.py", 10)
	writeFile(t, root, "app.py", 10)
	if err := os.Symlink(filepath.Join(outside, "secret.py"), filepath.Join(root, "link.py")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	res, err := New(testConfig()).Select(root, nil, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := relPaths(res); len(got) != 1 || got[0] != "app.py" {
		t.Errorf("selected = %v, want [app.py]", got)
	}
}
