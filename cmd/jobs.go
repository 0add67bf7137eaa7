package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lintagent/lintagent/internal/config"
	"github.com/lintagent/lintagent/internal/database"
	"github.com/lintagent/lintagent/internal/store"
	"github.com/lintagent/lintagent/models"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func statusStyle(s models.JobStatus) string {
	switch s {
	case models.StatusCompleted:
		return completedStyle.Render(string(s))
	case models.StatusFailed:
		return failedStyle.Render(string(s))
	case models.StatusCancelled:
		return dimStyle.Render(string(s))
	default:
		return pendingStyle.Render(string(s))
	}
}

func severityStyle(s models.Severity) string {
	switch s {
	case models.SeverityError:
		return failedStyle.Render("error  ")
	case models.SeverityWarning:
		return pendingStyle.Render("warning")
	default:
		return dimStyle.Render("info   ")
	}
}

var (
	jobsStatus string
	jobsTeam   string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect submitted analysis jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	RunE:  runJobsList,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one job with its findings summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (pending|processing|completed|failed|cancelled)")
	jobsListCmd.Flags().StringVar(&jobsTeam, "team", "", "filter by team")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 20, "maximum rows to show")
	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd)
}

func openStore(ctx context.Context) (*store.Store, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("applying migrations: %w", err)
	}
	return store.New(db), func() { db.Close() }, nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, closeDB, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	jobs, total, err := st.ListJobs(ctx, store.JobFilter{
		Status: models.JobStatus(jobsStatus),
		Team:   jobsTeam,
		Limit:  jobsLimit,
	})
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs found.")
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-6s %-11s %-40s %-12s %-9s %s",
		"ID", "STATUS", "REPOSITORY", "TEAM", "FINDINGS", "CREATED")))
	for i := range jobs {
		j := &jobs[i]
		findings := "-"
		if sum, err := j.Summary(); err == nil && sum != nil {
			findings = strconv.Itoa(sum.TotalFindings)
		}
		repo := j.RepoURL
		if len(repo) > 40 {
			repo = repo[:37] + "..."
		}
		fmt.Printf("%-6d %-20s %-40s %-12s %-9s %s\n",
			j.ID, statusStyle(j.Status), repo, j.Team, findings,
			j.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	if total > len(jobs) {
		fmt.Println(dimStyle.Render(fmt.Sprintf("Showing %d of %d jobs", len(jobs), total)))
	}
	return nil
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid job id %q", args[0])
	}

	st, closeDB, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	job, err := st.GetJob(ctx, id)
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Job #%d", job.ID)))
	fmt.Printf("Repository: %s\n", job.RepoURL)
	fmt.Printf("Status:     %s\n", statusStyle(job.Status))
	fmt.Printf("Team:       %s (leader: %s)\n", job.Team, job.Leader)
	if job.Branch != "" {
		fmt.Printf("Branch:     %s\n", job.Branch)
	}
	if job.CommitSHA != "" {
		fmt.Printf("Commit:     %s\n", job.CommitSHA)
	}
	fmt.Printf("Created:    %s\n", job.CreatedAt.Local().Format(time.RFC1123))
	if job.CompletedAt != nil {
		fmt.Printf("Completed:  %s (%.1fs)\n",
			job.CompletedAt.Local().Format(time.RFC1123),
			float64(job.DurationMs)/1000)
	}
	if job.ErrorMsg != "" {
		fmt.Printf("Error:      %s\n", failedStyle.Render(job.ErrorMsg))
	}

	sum, err := job.Summary()
	if err != nil || sum == nil {
		return nil
	}
	fmt.Println()
	fmt.Printf("%d findings across %d files", sum.TotalFindings, sum.TotalFilesScanned)
	if sum.FixableCount > 0 {
		fmt.Printf(", %d auto-fixable", sum.FixableCount)
	}
	fmt.Println()
	if len(sum.BySeverity) > 0 {
		parts := make([]string, 0, 3)
		for _, sev := range []string{"error", "warning", "info"} {
			if n := sum.BySeverity[sev]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, sev))
			}
		}
		fmt.Println(strings.Join(parts, ", "))
	}

	findings, err := st.Findings(ctx, job.ID)
	if err != nil || len(findings) == 0 {
		return nil
	}
	fmt.Println()
	for _, f := range findings {
		loc := f.FilePath
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", f.FilePath, f.Line)
		}
		fmt.Printf("%s  %s  [%s] %s\n", severityStyle(f.Severity), loc, f.Code, f.Message)
	}
	return nil
}
