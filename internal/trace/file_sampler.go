package trace

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
)

// FileSampler reads sample i from the i-th file of a fixed list.
type FileSampler struct {
	Paths []string
}

// NewGlobSampler expands the patterns and returns a sampler over the
// matching files in lexical order. Duplicates are removed.
func NewGlobSampler(patterns ...string) (*FileSampler, error) {
	var paths []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trace pattern %q: %w", p, err)
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)
	paths = slices.Compact(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no trace files match %v", patterns)
	}
	return &FileSampler{Paths: paths}, nil
}

// NewDirSampler returns a sampler over every *.itf.json file in dir.
func NewDirSampler(dir string) (*FileSampler, error) {
	return NewGlobSampler(filepath.Join(dir, "*.itf.json"))
}

// Sample implements Sampler.
func (s *FileSampler) Sample(ctx context.Context, i int) (*Trace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(s.Paths) {
		return nil, ErrNoMoreSamples
	}
	return ReadFile(s.Paths[i])
}
