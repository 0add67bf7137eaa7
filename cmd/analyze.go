package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lintagent/lintagent/internal/analyzer"
	"github.com/lintagent/lintagent/internal/config"
	"github.com/lintagent/lintagent/internal/database"
	"github.com/lintagent/lintagent/internal/repository"
	"github.com/lintagent/lintagent/internal/selector"
	"github.com/lintagent/lintagent/models"
)

var (
	analyzeBranch    string
	analyzeTag       string
	analyzeCommit    string
	analyzeInclude   []string
	analyzeExclude   []string
	analyzeDeps      bool
	analyzeOutputFmt string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <repo-url>",
	Short: "Analyze one repository from the command line",
	Long: `Clones a repository, runs the configured analyzers over its files and
prints the findings. Results are cached in the configured database, so a
second run over unchanged files is fast.

Examples:
  lintagent analyze https://github.com/example/myapp
  lintagent analyze https://github.com/example/myapp --branch develop
  lintagent analyze https://github.com/example/myapp --include "src/**" --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeBranch, "branch", "", "branch to analyze (default: repo default branch)")
	analyzeCmd.Flags().StringVar(&analyzeTag, "tag", "", "tag to analyze")
	analyzeCmd.Flags().StringVar(&analyzeCommit, "commit", "", "commit SHA to analyze")
	analyzeCmd.Flags().StringSliceVar(&analyzeInclude, "include", nil, "glob patterns of files to include")
	analyzeCmd.Flags().StringSliceVar(&analyzeExclude, "exclude", nil, "glob patterns of files to exclude")
	analyzeCmd.Flags().BoolVar(&analyzeDeps, "deps", true, "run the dependency audit pass")
	analyzeCmd.Flags().StringVar(&analyzeOutputFmt, "output", "table", "output format: table|json")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repoURL := args[0]

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	profiles, err := analyzer.LoadProfiles(cfg.Analysis.ProfilePath)
	if err != nil {
		return fmt.Errorf("loading tool profiles: %w", err)
	}
	cache := analyzer.NewCache(db, nil, time.Duration(cfg.Analysis.CacheTTLSec)*time.Second)
	dispatcher := analyzer.NewDispatcher(cfg.Analysis, cache, analyzer.BuildAnalyzers(profiles))

	tools := dispatcher.Tools(ctx)
	if len(tools) == 0 {
		fmt.Fprintln(os.Stderr, "Warning: no analyzer tools found on PATH; only dependency audits will run")
	}
	fmt.Printf("Analyzing %s\n", repoURL)
	fmt.Printf("Analyzers: %s\n\n", strings.Join(tools, ", "))

	cloner := repository.NewCloner(cfg.Git)
	start := time.Now()
	ws, err := cloner.Clone(ctx, &models.Submission{
		RepoURL:   repoURL,
		Branch:    analyzeBranch,
		Tag:       analyzeTag,
		CommitSHA: analyzeCommit,
		Depth:     1,
	})
	if err != nil {
		return fmt.Errorf("cloning repository: %w", err)
	}
	defer cloner.Cleanup(ws)

	commit := ws.Commit
	if len(commit) > 8 {
		commit = commit[:8]
	}
	fmt.Printf("Cloned to %s (commit %s)\n", ws.Path, commit)

	sel, err := selector.New(cfg.Analysis).Select(ws.Path, analyzeInclude, analyzeExclude)
	if err != nil {
		return fmt.Errorf("selecting files: %w", err)
	}
	fmt.Printf("Selected %d files (%d skipped)\n\n", len(sel.Files), sel.Skipped)

	var findings []models.Finding
	for _, f := range sel.Files {
		out, err := dispatcher.AnalyzeFile(ctx, f.AbsPath, f.RelPath)
		if err != nil {
			slog.Warn("File analysis failed", "file", f.RelPath, "error", err)
			continue
		}
		findings = append(findings, out...)
	}
	if analyzeDeps {
		findings = append(findings, analyzer.NewDepScanner().Scan(ctx, ws.Path)...)
	}

	summary := models.BuildSummary(findings, len(sel.Files), sel.Truncated, ws.SizeBytes, time.Since(start))

	if analyzeOutputFmt == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"summary": summary, "findings": findings})
	}
	printFindings(findings, summary)
	return nil
}

func printFindings(findings []models.Finding, summary *models.Summary) {
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].FilePath != findings[j].FilePath {
			return findings[i].FilePath < findings[j].FilePath
		}
		return findings[i].Line < findings[j].Line
	})

	for _, f := range findings {
		loc := f.FilePath
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", f.FilePath, f.Line)
		}
		fmt.Printf("%s  %s  [%s] %s\n", severityStyle(f.Severity), loc, f.Code, f.Message)
	}
	if len(findings) > 0 {
		fmt.Println()
	}

	fmt.Printf("%d findings in %d files (%.1fs)\n",
		summary.TotalFindings, summary.TotalFilesScanned, summary.DurationSeconds)
	if summary.FixableCount > 0 {
		fmt.Printf("%d findings are auto-fixable\n", summary.FixableCount)
	}
	if len(summary.BySeverity) > 0 {
		parts := make([]string, 0, len(summary.BySeverity))
		for _, sev := range []string{"error", "warning", "info"} {
			if n := summary.BySeverity[sev]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, sev))
			}
		}
		fmt.Println(strings.Join(parts, ", "))
	}
}
