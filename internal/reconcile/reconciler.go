// Package reconcile maps routing decisions onto tracker state: at most
// one mutation (create or comment) per failure record and run, with the
// fingerprint as the deduplication key.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lookout/internal/extract"
	"lookout/internal/logging"
	"lookout/internal/rules"
)

// Action is the tracker mutation a reconciliation performed.
type Action string

const (
	ActionCreated   Action = "created"
	ActionCommented Action = "commented"
)

// Outcome describes one completed reconciliation.
type Outcome struct {
	Action      Action
	IssueKey    string
	Fingerprint string
}

// Renderer produces the tracker-facing text for a failure. The concrete
// implementation lives in internal/render; reconcile only needs the
// capability.
type Renderer interface {
	Summary(rec *extract.Record) string
	Description(rec *extract.Record, d *rules.Decision) string
	Comment(rec *extract.Record) string
}

// Reconciler drives the search-then-mutate sequence against a Tracker.
// Safe for concurrent use; the search-then-create window for one
// fingerprint is serialized through a per-fingerprint lock so two
// workers cannot both observe "no existing issue" and double-file.
type Reconciler struct {
	tracker  Tracker
	renderer Renderer
	retries  int
	backoff  time.Duration
	logger   *slog.Logger
	locks    lockTable

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithRetries sets how many times a transient tracker error is retried
// before the record is marked failed-to-report.
func WithRetries(n int) ReconcilerOption {
	return func(r *Reconciler) { r.retries = n }
}

// WithBackoff sets the base delay of the exponential backoff between
// retries of a single tracker call.
func WithBackoff(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.backoff = d }
}

// New returns a Reconciler over the given tracker and renderer.
func New(tracker Tracker, renderer Renderer, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		tracker:  tracker,
		renderer: renderer,
		retries:  3,
		backoff:  500 * time.Millisecond,
		logger:   logging.New("reconcile"),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile applies the decision table for one record with a non-null
// routing target:
//
//	no issue with this fingerprint  -> create
//	open issue                      -> comment (recurrence note)
//	only closed issues              -> create (no automatic reopen)
func (r *Reconciler) Reconcile(ctx context.Context, rec *extract.Record, d *rules.Decision) (*Outcome, error) {
	if d == nil || !d.Matched() || d.Project == "" {
		return nil, fmt.Errorf("reconcile: decision has no target for %q", rec.Name)
	}

	fp := Fingerprint(rec.Name, rec.JobName)

	unlock := r.locks.lock(fp)
	defer unlock()

	var existing []IssueRef
	err := r.withRetry(ctx, "search", fp, func() error {
		var err error
		existing, err = r.tracker.FindByFingerprint(ctx, d.Project, fp)
		return err
	})
	if err != nil {
		return nil, err
	}

	if open := firstOpen(existing); open != nil {
		body := r.renderer.Comment(rec)
		if open.Project != "" && open.Project != d.Project {
			body += fmt.Sprintf("\n\nRouting now targets project %s; issue remains in %s.", d.Project, open.Project)
		}
		if err := r.withRetry(ctx, "comment", fp, func() error {
			return r.tracker.Comment(ctx, open.Key, body)
		}); err != nil {
			return nil, err
		}
		r.logger.Info("recurrence noted", "issue", open.Key, "fingerprint", fp, "build", rec.BuildID)
		return &Outcome{Action: ActionCommented, IssueKey: open.Key, Fingerprint: fp}, nil
	}

	issue := NewIssue{
		Project:     d.Project,
		Summary:     r.renderer.Summary(rec),
		Description: r.renderer.Description(rec, d),
		Priority:    d.Priority,
		Labels:      append(append([]string(nil), d.Labels...), FingerprintLabel(fp)),
	}
	var key string
	if err := r.withRetry(ctx, "create", fp, func() error {
		var err error
		key, err = r.tracker.Create(ctx, issue)
		return err
	}); err != nil {
		return nil, err
	}
	r.logger.Info("issue filed", "issue", key, "project", d.Project, "fingerprint", fp)
	return &Outcome{Action: ActionCreated, IssueKey: key, Fingerprint: fp}, nil
}

// withRetry runs fn, retrying transient errors with exponential backoff
// scoped to this single call. Permanent errors return immediately.
func (r *Reconciler) withRetry(ctx context.Context, operation, fp string, fn func() error) error {
	delay := r.backoff
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("retrying tracker call",
				"operation", operation, "fingerprint", fp, "attempt", attempt, "error", lastErr)
			if err := r.sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var transient *TransientError
		if !errors.As(lastErr, &transient) {
			return lastErr
		}
	}
	return fmt.Errorf("%s: retries exhausted: %w", operation, lastErr)
}

func firstOpen(issues []IssueRef) *IssueRef {
	for i := range issues {
		if issues[i].Open {
			return &issues[i]
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lockTable hands out one mutex per fingerprint.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (t *lockTable) lock(key string) func() {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*sync.Mutex)
	}
	m, ok := t.locks[key]
	if !ok {
		m = &sync.Mutex{}
		t.locks[key] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}
