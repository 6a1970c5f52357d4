package ec

import (
	"context"
	"sync"
	"time"

	"github.com/peoplehub/ecsync/pkg/employee"
)

// MockCreator is an in-memory Creator for tests, dry runs, and simulation.
// Outcomes are keyed by userid; unlisted records succeed.
type MockCreator struct {
	mu      sync.Mutex
	created []string
	calls   int

	// FailIDs and WarnIDs force per-record outcomes.
	FailIDs map[string]string
	WarnIDs map[string]string
	// ErrCalls makes the first N Create calls return an error outright.
	ErrCalls int
	// Latency is added per call to simulate a slow tenant.
	Latency time.Duration
	// Err is returned while ErrCalls is unspent.
	Err error
}

// NewMockCreator returns a mock where every record succeeds.
func NewMockCreator() *MockCreator {
	return &MockCreator{
		FailIDs: make(map[string]string),
		WarnIDs: make(map[string]string),
	}
}

func (m *MockCreator) Create(ctx context.Context, records []employee.Record) ([]Result, error) {
	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.ErrCalls > 0 {
		m.ErrCalls--
		return nil, m.Err
	}

	results := make([]Result, len(records))
	for i, r := range records {
		res := Result{UserID: r.UserID, Status: StatusCreated, Attempts: 1}
		if msg, ok := m.FailIDs[r.UserID]; ok {
			res.Status = StatusFailed
			res.Message = msg
		} else if msg, ok := m.WarnIDs[r.UserID]; ok {
			res.Status = StatusWarning
			res.Message = msg
		} else {
			m.created = append(m.created, r.UserID)
		}
		results[i] = res
	}
	return results, nil
}

// Created returns the userids successfully created so far.
func (m *MockCreator) Created() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.created))
	copy(out, m.created)
	return out
}

// Calls returns how many times Create has been invoked.
func (m *MockCreator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
