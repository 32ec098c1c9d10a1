// Package extract turns raw job-run artifacts into normalized failure
// records. Only non-passing test cases and failed pod steps produce
// records; a malformed artifact is reported as a per-artifact error and
// never aborts extraction of its siblings.
package extract

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"lookout/internal/artifact"
	"lookout/internal/junitxml"
	"lookout/internal/logging"
)

// Kind distinguishes the two failure sources.
type Kind string

const (
	KindTest Kind = "test"
	KindPod  Kind = "pod"
)

// Record is one normalized failure unit. Immutable once extracted.
type Record struct {
	Kind      Kind
	Name      string // test case name, or step name for pod failures
	Step      string // CI step the artifact belongs to
	Message   string // failure message / log excerpt; may be empty
	JobName   string
	BuildID   string
	Timestamp time.Time
}

// ArtifactError marks one artifact that could not be parsed.
type ArtifactError struct {
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact %s: %v", e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// Meta carries run identity attached to every record.
type Meta struct {
	JobName string
	BuildID string
	Started time.Time // zero means time.Now at extraction
}

// logTailBytes bounds the build-log excerpt attached to pod failures.
const logTailBytes = 2048

// Result holds the outcome of one extraction pass.
type Result struct {
	Records        []Record
	ArtifactErrors []ArtifactError
	// Scanned is the total number of files the source listed, before
	// any filtering. Zero means the run had no artifacts at all.
	Scanned int
}

// Extract walks src and produces failure records for every failed or
// errored test case in JUnit reports and every step whose finished.json
// marker is not a success. Listing the source is the one fatal error;
// everything per-artifact is collected into Result.ArtifactErrors.
func Extract(ctx context.Context, src artifact.Source, meta Meta) (*Result, error) {
	paths, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	ts := meta.Started
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	logger := logging.New("extract")
	res := &Result{Scanned: len(paths)}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		base := p[strings.LastIndex(p, "/")+1:]
		switch {
		case base == artifact.FinishedName:
			extractPodFailure(ctx, src, p, meta, ts, res, paths)
		case junitxml.IsReportName(base):
			extractTestFailures(ctx, src, p, meta, ts, res)
		}
	}

	for _, ae := range res.ArtifactErrors {
		logger.Warn("artifact skipped", "path", ae.Path, "error", ae.Err)
	}
	logger.Info("extraction complete",
		"records", len(res.Records), "skipped_artifacts", len(res.ArtifactErrors))
	return res, nil
}

func extractPodFailure(ctx context.Context, src artifact.Source, p string, meta Meta, ts time.Time, res *Result, paths []string) {
	data, err := readArtifact(ctx, src, p)
	if err != nil {
		res.ArtifactErrors = append(res.ArtifactErrors, ArtifactError{Path: p, Err: err})
		return
	}
	fin, err := artifact.ParseFinished(data)
	if err != nil {
		res.ArtifactErrors = append(res.ArtifactErrors, ArtifactError{Path: p, Err: err})
		return
	}
	if fin.OK() {
		return
	}

	step := artifact.Step(p)
	when := ts
	if fin.Timestamp > 0 {
		when = time.Unix(fin.Timestamp, 0).UTC()
	}
	res.Records = append(res.Records, Record{
		Kind:      KindPod,
		Name:      step,
		Step:      step,
		Message:   buildLogExcerpt(ctx, src, p, paths),
		JobName:   meta.JobName,
		BuildID:   meta.BuildID,
		Timestamp: when,
	})
}

func extractTestFailures(ctx context.Context, src artifact.Source, p string, meta Meta, ts time.Time, res *Result) {
	data, err := readArtifact(ctx, src, p)
	if err != nil {
		res.ArtifactErrors = append(res.ArtifactErrors, ArtifactError{Path: p, Err: err})
		return
	}
	doc, err := junitxml.Parse(strings.NewReader(string(data)))
	if err != nil {
		res.ArtifactErrors = append(res.ArtifactErrors, ArtifactError{Path: p, Err: err})
		return
	}

	step := artifact.Step(p)
	doc.Walk(func(_ *junitxml.Suite, c *junitxml.Case) {
		switch c.Status() {
		case junitxml.StatusFailed, junitxml.StatusErrored:
		default:
			return
		}
		// A case with no parsable message still yields a record; an
		// empty message is itself matchable by catch-all rules.
		res.Records = append(res.Records, Record{
			Kind:      KindTest,
			Name:      c.Name,
			Step:      step,
			Message:   c.FailureText(),
			JobName:   meta.JobName,
			BuildID:   meta.BuildID,
			Timestamp: ts,
		})
	})
}

// buildLogExcerpt returns the tail of the step's build-log.txt, if the
// run has one next to the finished.json marker.
func buildLogExcerpt(ctx context.Context, src artifact.Source, finishedPath string, paths []string) string {
	dir := finishedPath[:strings.LastIndex(finishedPath, "/")+1] // "" for root-level
	logPath := dir + "build-log.txt"

	found := false
	for _, p := range paths {
		if p == logPath {
			found = true
			break
		}
	}
	if !found {
		return ""
	}

	data, err := readArtifact(ctx, src, logPath)
	if err != nil {
		return ""
	}
	if len(data) > logTailBytes {
		data = data[len(data)-logTailBytes:]
	}
	return strings.TrimSpace(string(data))
}

func readArtifact(ctx context.Context, src artifact.Source, p string) ([]byte, error) {
	rc, err := src.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
