package jira

import (
	"context"
	"fmt"

	"lookout/internal/reconcile"
)

// searchPageSize bounds fingerprint lookups; one fingerprint should
// only ever map to a handful of issues.
const searchPageSize = 20

// Tracker implements reconcile.Tracker on top of the Jira client.
// Transient API failures (429, 5xx) are wrapped in
// reconcile.TransientError so the reconciler retries them.
type Tracker struct {
	client    *Client
	issueType string
}

// NewTracker returns a Tracker filing issues of the given type
// (defaults to "Bug" when empty).
func NewTracker(client *Client, issueType string) *Tracker {
	if issueType == "" {
		issueType = "Bug"
	}
	return &Tracker{client: client, issueType: issueType}
}

// FindByFingerprint implements reconcile.Tracker via a JQL label query.
// The search deliberately ignores the project: an issue filed under an
// earlier routing target still deduplicates later recurrences.
func (t *Tracker) FindByFingerprint(ctx context.Context, _, fingerprint string) ([]reconcile.IssueRef, error) {
	jql := fmt.Sprintf(`labels = %q ORDER BY created DESC`,
		reconcile.FingerprintLabel(fingerprint))

	result, err := t.client.Search(ctx, jql, []string{"status", "project", "labels"}, searchPageSize)
	if err != nil {
		return nil, wrapTransient(err)
	}

	refs := make([]reconcile.IssueRef, 0, len(result.Issues))
	for _, iss := range result.Issues {
		proj := ""
		if iss.Fields.Project != nil {
			proj = iss.Fields.Project.Key
		}
		refs = append(refs, reconcile.IssueRef{
			Key:     iss.Key,
			Project: proj,
			Open:    !iss.Fields.Status.Done(),
		})
	}
	return refs, nil
}

// Create implements reconcile.Tracker.
func (t *Tracker) Create(ctx context.Context, issue reconcile.NewIssue) (string, error) {
	fields := IssueFields{
		Summary:     issue.Summary,
		Description: issue.Description,
		Project:     &Project{Key: issue.Project},
		IssueType:   &IssueType{Name: t.issueType},
		Labels:      issue.Labels,
	}
	if issue.Priority != "" {
		fields.Priority = &Priority{Name: issue.Priority}
	}

	created, err := t.client.CreateIssue(ctx, fields)
	if err != nil {
		return "", wrapTransient(err)
	}
	return created.Key, nil
}

// Comment implements reconcile.Tracker.
func (t *Tracker) Comment(ctx context.Context, issueKey, body string) error {
	if err := t.client.AddComment(ctx, issueKey, body); err != nil {
		return wrapTransient(err)
	}
	return nil
}

func wrapTransient(err error) error {
	if IsTransient(err) {
		return &reconcile.TransientError{Err: err}
	}
	return err
}
