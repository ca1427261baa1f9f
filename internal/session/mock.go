package session

import (
	"context"
	"sync"
	"time"
)

// MockCall represents a recorded call on the mock driver.
type MockCall struct {
	Method    string
	Statement string
	Params    map[string]any
	InTx      bool
	Timestamp time.Time
}

// Responder computes the result of a statement. It is called without
// holding the mock's lock and may block, for example until ctx is done.
type Responder func(ctx context.Context, text string, params map[string]any) (*Result, error)

// MockDriver is an in-memory Driver for tests. It records every call,
// answers statements from a FIFO of results or a Responder, and tracks
// which statements were committed.
type MockDriver struct {
	mu sync.RWMutex

	// State
	calls        []MockCall
	committed    []MockCall
	openSessions int
	commits      int
	rollbacks    int

	// Configurable responses
	results       []*Result
	responder     Responder
	runError      error
	sessionError  error
	beginError    error
	commitError   error
	rollbackError error
}

// NewMockDriver creates a new mock driver for testing.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		calls:     make([]MockCall, 0),
		committed: make([]MockCall, 0),
		results:   make([]*Result, 0),
	}
}

var _ Driver = (*MockDriver)(nil)

// NewSession records the call and opens a mock session.
func (m *MockDriver) NewSession(ctx context.Context, cfg Config) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(MockCall{Method: "NewSession"})
	if m.sessionError != nil {
		return nil, m.sessionError
	}
	m.openSessions++
	return &mockSession{driver: m}, nil
}

func (m *MockDriver) record(call MockCall) {
	call.Timestamp = time.Now()
	m.calls = append(m.calls, call)
}

// run answers a statement. Callers must not hold m.mu.
func (m *MockDriver) run(ctx context.Context, text string, params map[string]any, inTx bool) (*Result, error) {
	m.mu.Lock()
	m.record(MockCall{Method: "Run", Statement: text, Params: params, InTx: inTx})
	runErr, responder := m.runError, m.responder
	var queued *Result
	if responder == nil && len(m.results) > 0 {
		queued = m.results[0]
		m.results = m.results[1:]
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, runErr
	}
	if responder != nil {
		return responder(ctx, text, params)
	}
	if queued != nil {
		return queued, nil
	}
	return &Result{Records: []Record{}}, nil
}

// SetResponder answers every statement with fn, overriding queued results.
func (m *MockDriver) SetResponder(fn Responder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
}

// AddResult queues a result returned by the next statement.
func (m *MockDriver) AddResult(records ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, &Result{Records: records})
}

// SetRunError makes every statement fail with err.
func (m *MockDriver) SetRunError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runError = err
}

// SetSessionError makes NewSession fail with err.
func (m *MockDriver) SetSessionError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionError = err
}

// SetBeginError makes BeginTransaction fail with err.
func (m *MockDriver) SetBeginError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beginError = err
}

// SetCommitError makes Commit fail with err.
func (m *MockDriver) SetCommitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitError = err
}

// SetRollbackError makes Rollback fail with err.
func (m *MockDriver) SetRollbackError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbackError = err
}

// GetCalls returns all recorded calls.
func (m *MockDriver) GetCalls() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := make([]MockCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// GetCallsByMethod returns all calls to a specific method.
func (m *MockDriver) GetCallsByMethod(method string) []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := make([]MockCall, 0)
	for _, call := range m.calls {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// Statements returns the text of every statement run, in order.
func (m *MockDriver) Statements() []string {
	runs := m.GetCallsByMethod("Run")
	out := make([]string, len(runs))
	for i, c := range runs {
		out[i] = c.Statement
	}
	return out
}

// Committed returns the statements whose effects became durable: every
// auto-commit statement and every statement of a committed transaction.
func (m *MockDriver) Committed() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := make([]MockCall, len(m.committed))
	copy(calls, m.committed)
	return calls
}

// Commits returns the number of committed transactions.
func (m *MockDriver) Commits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commits
}

// Rollbacks returns the number of rolled back transactions.
func (m *MockDriver) Rollbacks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rollbacks
}

// OpenSessions returns the number of sessions not yet closed.
func (m *MockDriver) OpenSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openSessions
}

// Reset clears recorded calls and counters. Configured responses stay.
func (m *MockDriver) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make([]MockCall, 0)
	m.committed = make([]MockCall, 0)
	m.commits, m.rollbacks = 0, 0
}

type mockSession struct {
	driver *MockDriver
	closed bool
}

func (s *mockSession) Run(ctx context.Context, text string, params map[string]any) (*Result, error) {
	res, err := s.driver.run(ctx, text, params, false)
	if err == nil {
		s.driver.mu.Lock()
		s.driver.committed = append(s.driver.committed, MockCall{Method: "Run", Statement: text, Params: params, Timestamp: time.Now()})
		s.driver.mu.Unlock()
	}
	return res, err
}

func (s *mockSession) BeginTransaction(ctx context.Context) (Transaction, error) {
	m := s.driver
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(MockCall{Method: "BeginTransaction"})
	if m.beginError != nil {
		return nil, m.beginError
	}
	return &mockTx{driver: m}, nil
}

func (s *mockSession) Close(ctx context.Context) error {
	m := s.driver
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(MockCall{Method: "Close"})
	if !s.closed {
		s.closed = true
		m.openSessions--
	}
	return nil
}

type mockTx struct {
	driver  *MockDriver
	pending []MockCall
}

func (t *mockTx) Run(ctx context.Context, text string, params map[string]any) (*Result, error) {
	res, err := t.driver.run(ctx, text, params, true)
	if err == nil {
		t.pending = append(t.pending, MockCall{Method: "Run", Statement: text, Params: params, InTx: true, Timestamp: time.Now()})
	}
	return res, err
}

func (t *mockTx) Commit(ctx context.Context) error {
	m := t.driver
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(MockCall{Method: "Commit"})
	if m.commitError != nil {
		m.rollbacks++
		return m.commitError
	}
	m.commits++
	m.committed = append(m.committed, t.pending...)
	t.pending = nil
	return nil
}

func (t *mockTx) Rollback(ctx context.Context) error {
	m := t.driver
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(MockCall{Method: "Rollback"})
	m.rollbacks++
	t.pending = nil
	return m.rollbackError
}
