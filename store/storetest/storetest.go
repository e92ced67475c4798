// Package storetest provides executor test doubles: a Recorder that counts
// and captures every statement, optionally delegating to a real backend, and
// a Scripted executor that replays queued results.
package storetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dusk-indust/norm/store"
)

// Call is one recorded Execute invocation.
type Call struct {
	Query  string
	Params map[string]any
}

// Recorder records every statement and delegates to an inner executor when
// one is set; without an inner executor it returns empty results. Use it to
// assert how many round trips an operation issued.
type Recorder struct {
	mu    sync.Mutex
	inner store.Executor
	calls []Call
}

var _ store.Executor = (*Recorder)(nil)

// Wrap returns a Recorder delegating to inner.
func Wrap(inner store.Executor) *Recorder {
	return &Recorder{inner: inner}
}

// Execute records the call and delegates.
func (r *Recorder) Execute(ctx context.Context, query string, params map[string]any) ([]store.Row, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Query: query, Params: params})
	r.mu.Unlock()
	if r.inner == nil {
		return nil, nil
	}
	return r.inner.Execute(ctx, query, params)
}

// Calls returns a snapshot of recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Len reports the number of recorded calls.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Reset drops recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Scripted replays queued results in order, recording calls like a
// Recorder. A call beyond the queued results returns an error.
type Scripted struct {
	Recorder
	mu      sync.Mutex
	results [][]store.Row
	errs    []error
}

var _ store.Executor = (*Scripted)(nil)

// Enqueue appends a result for the next unserved call.
func (s *Scripted) Enqueue(rows []store.Row) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, rows)
	s.errs = append(s.errs, nil)
	return s
}

// EnqueueErr appends an error result.
func (s *Scripted) EnqueueErr(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, nil)
	s.errs = append(s.errs, err)
	return s
}

// Execute records the call and pops the next queued result.
func (s *Scripted) Execute(ctx context.Context, query string, params map[string]any) ([]store.Row, error) {
	s.Recorder.mu.Lock()
	s.Recorder.calls = append(s.Recorder.calls, Call{Query: query, Params: params})
	s.Recorder.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return nil, fmt.Errorf("storetest: unexpected call: %s", query)
	}
	rows, err := s.results[0], s.errs[0]
	s.results, s.errs = s.results[1:], s.errs[1:]
	return rows, err
}
