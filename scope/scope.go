package scope

import (
	"sync"

	"github.com/wippyai/ffi-bridge/errors"
)

// Scope bounds the lifetime of resources handed to native code, chiefly
// upcall stub addresses. Closing the scope is the sole teardown mechanism:
// cleanups run once, in reverse registration order, and anything tied to
// the scope is invalid afterwards.
type Scope struct {
	mu       sync.Mutex
	closed   bool
	cleanups []func()
}

// New creates an open scope.
func New() *Scope {
	return &Scope{}
}

// Alive reports whether the scope is still open.
func (s *Scope) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Register attaches a cleanup to run at Close. Registration on a closed
// scope is rejected rather than silently dropped.
func (s *Scope) Register(cleanup func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ScopeClosed(errors.PhaseUpcall, "cleanup registration")
	}
	s.cleanups = append(s.cleanups, cleanup)
	return nil
}

// Close tears the scope down. A second Close is reported: double teardown
// indicates a lifecycle bug in the caller.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ScopeClosed(errors.PhaseUpcall, "scope")
	}
	s.closed = true
	cleanups := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	return nil
}
