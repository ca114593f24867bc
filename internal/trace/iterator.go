package trace

import (
	"context"
	"errors"
	"io"
)

// ErrNoMoreSamples is returned by a Sampler when it cannot produce the
// requested sample.
var ErrNoMoreSamples = errors.New("no more samples")

// Iterator yields the steps of one trace in order.
// Next returns io.EOF after the last step.
type Iterator interface {
	Next(ctx context.Context) (Step, error)
}

// Sampler produces independently sampled traces of one declared test.
// Sample must be safe for concurrent use with distinct indices.
type Sampler interface {
	Sample(ctx context.Context, i int) (*Trace, error)
}

// SliceIterator iterates over an in-memory list of steps.
type SliceIterator struct {
	steps []Step
	pos   int
}

// NewSliceIterator returns an iterator over steps.
func NewSliceIterator(steps []Step) *SliceIterator {
	return &SliceIterator{steps: steps}
}

// Next implements Iterator.
func (it *SliceIterator) Next(ctx context.Context) (Step, error) {
	if err := ctx.Err(); err != nil {
		return Step{}, err
	}
	if it.pos >= len(it.steps) {
		return Step{}, io.EOF
	}
	s := it.steps[it.pos]
	it.pos++
	return s, nil
}

// Consumed returns how many steps have been handed out.
func (it *SliceIterator) Consumed() int {
	return it.pos
}

// StaticSampler serves a fixed list of already decoded traces.
type StaticSampler []*Trace

// Sample implements Sampler.
func (s StaticSampler) Sample(ctx context.Context, i int) (*Trace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(s) {
		return nil, ErrNoMoreSamples
	}
	return s[i], nil
}

// SamplerFunc adapts a function to a Sampler.
type SamplerFunc func(ctx context.Context, i int) (*Trace, error)

// Sample implements Sampler.
func (f SamplerFunc) Sample(ctx context.Context, i int) (*Trace, error) {
	return f(ctx, i)
}
