// Package artifact abstracts access to the files a CI job run leaves
// behind: JUnit reports, per-step finished.json markers, and log
// excerpts. Retrieval backends implement Source; extraction only sees
// relative paths and readers.
package artifact

import (
	"context"
	"io"
	"path"
)

// Source lists and opens the artifact files of one job run.
type Source interface {
	// List returns the relative paths of all artifact files under the
	// run root, using forward slashes regardless of backend.
	List(ctx context.Context) ([]string, error)
	// Open returns the content of one artifact by its relative path.
	// The caller closes the reader.
	Open(ctx context.Context, relPath string) (io.ReadCloser, error)
}

// Step returns the CI step an artifact belongs to: the name of the
// file's immediate parent directory, or "" for root-level files.
func Step(relPath string) string {
	dir := path.Dir(relPath)
	if dir == "." || dir == "/" {
		return ""
	}
	return path.Base(dir)
}
