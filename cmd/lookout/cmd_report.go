package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lookout/internal/artifact"
	"lookout/internal/extract"
	"lookout/internal/jira"
	"lookout/internal/reconcile"
	"lookout/internal/render"
	"lookout/internal/report"
	"lookout/internal/rules"
	"lookout/internal/run"
)

var reportFlags struct {
	rulesPath    string
	artifactsDir string
	bucket       string
	job          string
	buildID      string
	jobNameSafe  string
	prID         string

	jiraBase    string
	jiraKeyPath string
	issueType   string

	workers  int
	dryRun   bool
	markdown bool
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Triage one job run and file tracker issues for its failures",
	Long: `Extract failures from a job run's artifacts, match them against the
rule set, and create or update tracker issues.

Artifacts come either from a local directory:

  lookout report --rules rules.yaml --artifacts-dir ./artifacts --job periodic-e2e --build-id 42

or straight from the results bucket:

  lookout report --rules rules.yaml --job periodic-e2e --build-id 42

Rehearsal runs are filed under the pull request; pass --pr-id for those.

The tracker base URL is read from the LOOKOUT_JIRA_URL environment
variable, or can be set with --jira-base-url. The API token is read
from the token file (first line). Use --dry-run to stop after matching
without contacting the tracker at all.`,
	RunE: runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportFlags.rulesPath, "rules", "", "Rule file (YAML or JSON)")
	f.StringVar(&reportFlags.artifactsDir, "artifacts-dir", "", "Local artifacts directory (overrides the bucket source)")
	f.StringVar(&reportFlags.bucket, "bucket", "test-platform-results", "Results bucket holding job artifacts")
	f.StringVar(&reportFlags.job, "job", "", "Job name")
	f.StringVar(&reportFlags.buildID, "build-id", "", "Build identifier of the run")
	f.StringVar(&reportFlags.jobNameSafe, "job-name-safe", "", "Artifact subdirectory name (default: job name)")
	f.StringVar(&reportFlags.prID, "pr-id", "", "Pull request ID for rehearsal runs")
	f.StringVar(&reportFlags.jiraBase, "jira-base-url", "", "Tracker base URL (default: $LOOKOUT_JIRA_URL)")
	f.StringVar(&reportFlags.jiraKeyPath, "jira-token-file", ".jira-api-key", "Path to the tracker API token file")
	f.StringVar(&reportFlags.issueType, "issue-type", "Bug", "Issue type for created issues")
	f.IntVar(&reportFlags.workers, "workers", 0, "Concurrent tracker requests (0 = default)")
	f.BoolVar(&reportFlags.dryRun, "dry-run", false, "Stop after matching; no tracker reads or writes")
	f.BoolVar(&reportFlags.markdown, "markdown", false, "Render the summary as a Markdown table")

	_ = reportCmd.MarkFlagRequired("rules")
	_ = reportCmd.MarkFlagRequired("job")
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	set, err := rules.LoadFile(reportFlags.rulesPath)
	if err != nil {
		return &run.PreconditionError{Reason: "load rules", Err: err}
	}
	src, err := buildSource()
	if err != nil {
		return &run.PreconditionError{Reason: "artifact source", Err: err}
	}

	cfg := run.Config{
		Source:  src,
		Rules:   set,
		Workers: reportFlags.workers,
		DryRun:  reportFlags.dryRun,
		Meta: extract.Meta{
			JobName: reportFlags.job,
			BuildID: reportFlags.buildID,
		},
	}

	if !reportFlags.dryRun {
		rec, err := buildReconciler(cmd)
		if err != nil {
			return &run.PreconditionError{Reason: "tracker setup", Err: err}
		}
		cfg.Reconciler = rec
	}

	out, err := run.Execute(ctx, cfg)
	if err != nil {
		return err
	}

	mode := report.ASCII
	if reportFlags.markdown {
		mode = report.Markdown
	}
	fmt.Println(report.Summary(out, mode))
	if items := report.Itemized(out); items != "" {
		fmt.Print(items)
	}
	fmt.Println(report.StatusLine(out))
	os.Exit(report.ExitCode(out))
	return nil
}

// buildSource picks the artifact source: a local directory when given,
// otherwise the job run's prefix in the results bucket.
func buildSource() (artifact.Source, error) {
	if reportFlags.artifactsDir != "" {
		return artifact.NewDirSource(reportFlags.artifactsDir)
	}
	if reportFlags.buildID == "" {
		return nil, fmt.Errorf("--build-id is required when reading from the results bucket")
	}

	safe := reportFlags.jobNameSafe
	if safe == "" {
		safe = reportFlags.job
	}
	prefix := artifact.RunPrefix(reportFlags.job, reportFlags.buildID, safe)
	if reportFlags.prID != "" {
		prefix = artifact.RehearsalRunPrefix(reportFlags.prID, reportFlags.job, reportFlags.buildID, safe)
	}
	return artifact.NewGCSSource(reportFlags.bucket, prefix)
}

// buildReconciler wires the tracker client and checks credentials
// before the run mutates anything.
func buildReconciler(cmd *cobra.Command) (run.IssueReconciler, error) {
	base := reportFlags.jiraBase
	if base == "" {
		base = os.Getenv("LOOKOUT_JIRA_URL")
	}
	if base == "" {
		return nil, fmt.Errorf("tracker base URL is required\n\nSet it via environment variable:\n  export LOOKOUT_JIRA_URL=https://issues.example.com\n\nOr use the --jira-base-url flag")
	}

	token, err := jira.ReadAPIKey(reportFlags.jiraKeyPath)
	if err != nil {
		return nil, fmt.Errorf("tracker API token: %w\n\nSave your token (first line) to %s or pass --jira-token-file", err, reportFlags.jiraKeyPath)
	}

	client, err := jira.New(base, token)
	if err != nil {
		return nil, err
	}
	if _, err := client.Myself(cmd.Context()); err != nil {
		return nil, fmt.Errorf("tracker credential check: %w", err)
	}

	tracker := jira.NewTracker(client, reportFlags.issueType)
	return reconcile.New(tracker, render.New()), nil
}
