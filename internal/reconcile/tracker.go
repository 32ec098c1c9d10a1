package reconcile

import (
	"context"
	"fmt"
)

// IssueRef is the tracker's view of an existing issue, reduced to what
// the reconciliation decision needs.
type IssueRef struct {
	Key     string
	Project string
	Open    bool
}

// NewIssue is the payload for creating a tracker issue.
type NewIssue struct {
	Project     string
	Summary     string
	Description string
	Priority    string
	Labels      []string
}

// Tracker is the capability interface over the external bug tracker.
// The tracker is the source of truth for deduplication; implementations
// are expected to be swappable for an in-memory fake in tests.
type Tracker interface {
	// FindByFingerprint returns issues carrying the given fingerprint
	// label, open and closed alike. Project is the current routing
	// target; deduplication itself is fingerprint-keyed.
	FindByFingerprint(ctx context.Context, project, fingerprint string) ([]IssueRef, error)
	// Create files a new issue and returns its key.
	Create(ctx context.Context, issue NewIssue) (string, error)
	// Comment appends a comment to an existing issue.
	Comment(ctx context.Context, issueKey, body string) error
}

// TransientError marks a tracker failure worth retrying (rate limits,
// server-side errors). Tracker implementations wrap such errors so the
// reconciler can tell them from permanent ones.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient tracker error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
