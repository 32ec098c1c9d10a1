package artifact

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DirSource serves artifacts from a local directory tree, typically a
// pre-downloaded copy of a job run's artifacts.
type DirSource struct {
	root string
}

// NewDirSource returns a Source rooted at dir. The directory must
// exist; contents are re-walked on every List call.
func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("artifact dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifact dir: %s is not a directory", dir)
	}
	return &DirSource{root: dir}, nil
}

// List implements Source.
func (s *DirSource) List(_ context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk artifact dir: %w", err)
	}
	return paths, nil
}

// Open implements Source.
func (s *DirSource) Open(_ context.Context, relPath string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.root, filepath.FromSlash(relPath)))
}
