// Package selector walks a cloned working tree and picks the files a job
// should analyze, applying extension, size and glob filters deterministically.
package selector

import (
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lintagent/lintagent/internal/config"
)

// Directories never worth descending into.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	".tox":         true,
	"dist":         true,
	"build":        true,
	".idea":        true,
	".vscode":      true,
}

// File is one selected candidate, identified by its path relative to the
// workspace root.
type File struct {
	RelPath string
	AbsPath string
	Size    int64
}

// Result is the outcome of a selection pass.
type Result struct {
	Files     []File
	Truncated bool // true when MaxFiles cut the list short
	Skipped   int  // files excluded by size, extension or globs
}

// Selector applies the analysis file filters.
type Selector struct {
	cfg        config.AnalysisConfig
	extensions map[string]bool
}

// New builds a Selector from the analysis configuration.
func New(cfg config.AnalysisConfig) *Selector {
	exts := make(map[string]bool, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Selector{cfg: cfg, extensions: exts}
}

// Select walks root and returns the files to analyze. The walk order is
// lexical, so two runs over the same tree produce the same list. Paths that
// resolve outside root are dropped.
func (s *Selector) Select(root string, include, exclude []string) (*Result, error) {
	maxSize := int64(s.cfg.MaxFileSizeKB) * 1024
	res := &Result{}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			// Symlinks can point anywhere, including outside the workspace.
			res.Skipped++
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			res.Skipped++
			return nil
		}
		rel = filepath.ToSlash(rel)

		ext := strings.ToLower(filepath.Ext(p))
		if !s.extensions[ext] {
			res.Skipped++
			return nil
		}

		if !matchPatterns(rel, include, exclude) {
			res.Skipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			res.Skipped++
			return nil
		}
		if maxSize > 0 && info.Size() > maxSize {
			slog.Debug("Skipping oversized file", "path", rel, "size", info.Size())
			res.Skipped++
			return nil
		}

		res.Files = append(res.Files, File{RelPath: rel, AbsPath: p, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].RelPath < res.Files[j].RelPath })

	if s.cfg.MaxFiles > 0 && len(res.Files) > s.cfg.MaxFiles {
		res.Files = res.Files[:s.cfg.MaxFiles]
		res.Truncated = true
	}
	return res, nil
}

// matchPatterns applies include and exclude globs to a slash-separated
// relative path. Exclude wins over include; patterns match against the full
// relative path and against the basename, so "*.min.js" works anywhere in
// the tree. An empty include list matches everything.
func matchPatterns(rel string, include, exclude []string) bool {
	base := path.Base(rel)
	for _, pat := range exclude {
		if globMatch(pat, rel) || globMatch(pat, base) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pat := range include {
		if globMatch(pat, rel) || globMatch(pat, base) {
			return true
		}
	}
	return false
}

func globMatch(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	if err != nil {
		return false
	}
	if ok {
		return true
	}
	// "dir/*" style patterns should cover nested files too.
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
