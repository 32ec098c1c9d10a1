// Package run drives one end-to-end triage pass: extraction, rule
// matching, and tracker reconciliation, with per-record failures
// isolated into counters instead of aborting the run.
package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lookout/internal/artifact"
	"lookout/internal/extract"
	"lookout/internal/logging"
	"lookout/internal/reconcile"
	"lookout/internal/rules"
)

// State is a run's terminal state.
type State string

const (
	// StateCompleted means all records were processed and the counters
	// are final, even if some records errored individually.
	StateCompleted State = "completed"
	// StateFailed means a precondition violation prevented processing
	// from starting; no tracker mutation happened.
	StateFailed State = "failed"
)

// defaultWorkers bounds concurrent tracker reconciliations.
const defaultWorkers = 4

// IssueReconciler is the slice of reconcile.Reconciler the coordinator
// needs; tests swap in a recording fake.
type IssueReconciler interface {
	Reconcile(ctx context.Context, rec *extract.Record, d *rules.Decision) (*reconcile.Outcome, error)
}

// Config wires one run.
type Config struct {
	Source     artifact.Source
	Rules      *rules.Set
	Reconciler IssueReconciler
	Meta       extract.Meta

	// Workers bounds concurrent tracker calls; <= 0 means the default.
	Workers int
	// DryRun stops after matching: no tracker reads or writes.
	DryRun bool
}

// Outcome is the aggregate result of one run.
type Outcome struct {
	RunID   string
	JobName string
	BuildID string
	State   State

	Processed        int // records that entered the pipeline
	Matched          int // records a rule accepted
	Unmatched        int // records no rule accepted (no catch-all configured)
	Ignored          int // records matched by an ignore rule
	Created          int // tracker issues created
	Commented        int // recurrence comments added
	SkippedArtifacts int // malformed artifacts skipped during extraction
	Errored          int // records that failed matching or reporting

	Warnings     []string
	RecordErrors []string
	Duration     time.Duration
}

// PreconditionError is a run-fatal configuration or input problem. It
// always fires before any tracker mutation.
type PreconditionError struct {
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("precondition: %s: %v", e.Reason, e.Err)
	}
	return "precondition: " + e.Reason
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// Execute performs one run. It returns a non-nil Outcome for every run
// that starts processing; only precondition violations return an error.
func Execute(ctx context.Context, cfg Config) (*Outcome, error) {
	if cfg.Source == nil {
		return nil, &PreconditionError{Reason: "no artifact source configured"}
	}
	if cfg.Rules == nil || len(cfg.Rules.Rules) == 0 {
		return nil, &PreconditionError{Reason: "no rules loaded"}
	}
	if cfg.Reconciler == nil && !cfg.DryRun {
		return nil, &PreconditionError{Reason: "no tracker reconciler configured"}
	}

	logger := logging.New("run")
	started := time.Now()

	out := &Outcome{
		RunID:   uuid.NewString(),
		JobName: cfg.Meta.JobName,
		BuildID: cfg.Meta.BuildID,
	}
	if !cfg.Rules.HasCatchAll() {
		w := "rule set has no catch-all entry; unmatched failures will not be reported"
		out.Warnings = append(out.Warnings, w)
		logger.Warn(w)
	}

	res, err := extract.Extract(ctx, cfg.Source, cfg.Meta)
	if err != nil {
		// Cancellation is the caller's doing, not a misconfigured run.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &PreconditionError{Reason: "artifact extraction could not start", Err: err}
	}
	if res.Scanned == 0 {
		return nil, &PreconditionError{Reason: "zero input artifacts"}
	}
	out.SkippedArtifacts = len(res.ArtifactErrors)
	for _, ae := range res.ArtifactErrors {
		out.RecordErrors = append(out.RecordErrors, ae.Error())
	}

	// Matching is pure and cheap; only reconciliation fans out.
	type job struct {
		rec extract.Record
		d   *rules.Decision
	}
	var jobs []job

	for i := range res.Records {
		rec := &res.Records[i]
		out.Processed++

		d, err := cfg.Rules.Match(rec)
		if err != nil {
			out.Errored++
			out.RecordErrors = append(out.RecordErrors, fmt.Sprintf("match %s: %v", rec.Name, err))
			continue
		}
		switch {
		case !d.Matched():
			out.Unmatched++
			logger.Warn("no rule matched", "name", rec.Name, "kind", rec.Kind)
		case d.Ignore:
			out.Ignored++
			logger.Info("failure ignored by rule", "name", rec.Name, "rule", d.Rule.Name)
		default:
			out.Matched++
			jobs = append(jobs, job{rec: *rec, d: d})
		}
	}

	if !cfg.DryRun {
		workers := cfg.Workers
		if workers <= 0 {
			workers = defaultWorkers
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, j := range jobs {
			g.Go(func() error {
				ro, err := cfg.Reconciler.Reconcile(gctx, &j.rec, j.d)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					out.Errored++
					out.RecordErrors = append(out.RecordErrors, fmt.Sprintf("report %s: %v", j.rec.Name, err))
					return nil // per-record errors never abort the run
				}
				switch ro.Action {
				case reconcile.ActionCreated:
					out.Created++
				case reconcile.ActionCommented:
					out.Commented++
				}
				return nil
			})
		}
		_ = g.Wait() // worker funcs always return nil; errors are counted
	}

	out.State = StateCompleted
	out.Duration = time.Since(started)
	logger.Info("run complete",
		"run_id", out.RunID,
		"processed", out.Processed,
		"matched", out.Matched,
		"created", out.Created,
		"commented", out.Commented,
		"errored", out.Errored)
	return out, nil
}
