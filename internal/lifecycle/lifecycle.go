// Package lifecycle coordinates the shutdown of a planning process: it waits
// for in-flight runs to finish and then closes the shared resources.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }

// Manager tracks in-flight runs and the resources to release on shutdown.
type Manager struct {
	drainTimeout time.Duration
	log          *zap.Logger

	inFlight     int64
	shuttingDown int32
	shutdownOnce sync.Once
	shutdownErr  error

	closers   []namedCloser
	closersMu sync.Mutex
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// NewManager creates a manager that waits at most drainTimeout for in-flight
// runs. A zero timeout means 30 seconds.
func NewManager(drainTimeout time.Duration, log *zap.Logger) *Manager {
	if drainTimeout == 0 {
		drainTimeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{drainTimeout: drainTimeout, log: log}
}

// RegisterCloser adds a resource to close on shutdown.
// Closers are called in reverse order of registration.
func (m *Manager) RegisterCloser(name string, c io.Closer) {
	m.closersMu.Lock()
	defer m.closersMu.Unlock()
	m.closers = append(m.closers, namedCloser{name: name, closer: c})
}

// Track marks the start of a run. It returns false once shutdown has begun,
// in which case the run must not start. Every successful Track needs a Done.
func (m *Manager) Track() bool {
	// Count the run before checking, so a concurrent drain either sees it or
	// Track sees the shutdown.
	atomic.AddInt64(&m.inFlight, 1)
	if atomic.LoadInt32(&m.shuttingDown) == 1 {
		atomic.AddInt64(&m.inFlight, -1)
		return false
	}
	return true
}

// Done marks the end of a tracked run.
func (m *Manager) Done() {
	atomic.AddInt64(&m.inFlight, -1)
}

// InFlight returns the number of tracked runs.
func (m *Manager) InFlight() int64 {
	return atomic.LoadInt64(&m.inFlight)
}

// IsShuttingDown reports whether Shutdown has been called.
func (m *Manager) IsShuttingDown() bool {
	return atomic.LoadInt32(&m.shuttingDown) == 1
}

// Shutdown waits for in-flight runs and closes every registered resource.
// Only the first call does any work; later calls return its result.
func (m *Manager) Shutdown(ctx context.Context, reason string) error {
	m.shutdownOnce.Do(func() {
		atomic.StoreInt32(&m.shuttingDown, 1)
		m.log.Info("Shutting down", zap.String("reason", reason))

		var result *multierror.Error
		if err := m.drain(ctx); err != nil {
			result = multierror.Append(result, err)
		}

		m.closersMu.Lock()
		closers := m.closers
		m.closersMu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].closer.Close(); err != nil {
				m.log.Warn("Failed to close resource", zap.String("resource", closers[i].name), zap.Error(err))
				result = multierror.Append(result, fmt.Errorf("close %s: %w", closers[i].name, err))
			}
		}
		m.shutdownErr = result.ErrorOrNil()
	})
	return m.shutdownErr
}

func (m *Manager) drain(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, m.drainTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.InFlight() == 0 {
			return nil
		}
		select {
		case <-drainCtx.Done():
			if remaining := m.InFlight(); remaining > 0 {
				return fmt.Errorf("timeout waiting for %d in-flight runs", remaining)
			}
			return nil
		case <-ticker.C:
		}
	}
}
