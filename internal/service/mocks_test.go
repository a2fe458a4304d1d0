package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetops/transitcore/internal/domain"
	"github.com/fleetops/transitcore/internal/domain/run"
	"github.com/fleetops/transitcore/internal/port/eventstore"
	"github.com/fleetops/transitcore/internal/port/messagequeue"
	"github.com/fleetops/transitcore/internal/port/routing"
)

// mockStore is an in-memory runstore.Store with error injection.
type mockStore struct {
	mu   sync.Mutex
	runs map[string]run.Run

	createErr error
	updateErr error

	createCalls       int
	updateCalls       int
	updateStatusCalls int
	listActiveCalls   int
}

func newMockStore() *mockStore {
	return &mockStore{runs: make(map[string]run.Run)}
}

func (m *mockStore) Create(ctx context.Context, r *run.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.runs[r.ID] = *r
	return nil
}

func (m *mockStore) Get(ctx context.Context, id string) (*run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (m *mockStore) Update(ctx context.Context, r *run.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.runs[r.ID]; !ok {
		return domain.ErrNotFound
	}
	r.UpdatedAt = time.Now()
	m.runs[r.ID] = *r
	return nil
}

func (m *mockStore) UpdateStatus(ctx context.Context, id string, status run.Status, endTime *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateStatusCalls++
	r, ok := m.runs[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = status
	if endTime != nil {
		r.EndTime = endTime
	}
	r.UpdatedAt = time.Now()
	m.runs[id] = r
	return nil
}

func (m *mockStore) List(ctx context.Context, f run.Filter) ([]run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []run.Run
	for _, r := range m.runs {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if f.DriverID != "" && r.DriverID != f.DriverID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockStore) ListActiveByDriver(ctx context.Context, driverID string, statuses []run.Status) ([]run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listActiveCalls++
	var out []run.Run
	for _, r := range m.runs {
		if r.DriverID != driverID {
			continue
		}
		for _, s := range statuses {
			if r.Status == s {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (m *mockStore) ListRecurring(ctx context.Context) ([]run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []run.Run
	for _, r := range m.runs {
		if r.ScheduleType == run.ScheduleOneTime || !r.Active() {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockStore) put(r run.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
}

func (m *mockStore) get(id string) run.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

// mockOutbox is an in-memory eventstore.Store.
type mockOutbox struct {
	mu      sync.Mutex
	entries []eventstore.Entry

	appendErr error
}

func (m *mockOutbox) Append(ctx context.Context, e *eventstore.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	e.CreatedAt = time.Now()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *mockOutbox) MarkPublished(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == id {
			now := time.Now()
			m.entries[i].PublishedAt = &now
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockOutbox) ListUnpublished(ctx context.Context, limit int) ([]eventstore.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []eventstore.Entry
	for _, e := range m.entries {
		if e.PublishedAt == nil {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *mockOutbox) ListByRun(ctx context.Context, runID string) ([]eventstore.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []eventstore.Entry
	for _, e := range m.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockOutbox) unpublishedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.PublishedAt == nil {
			n++
		}
	}
	return n
}

// published is one message captured by mockQueue.
type published struct {
	subject string
	data    []byte
}

// mockQueue captures published messages and can simulate a broken broker.
type mockQueue struct {
	mu         sync.Mutex
	messages   []published
	publishErr error
	handlers   map[string]messagequeue.Handler
}

func newMockQueue() *mockQueue {
	return &mockQueue{handlers: make(map[string]messagequeue.Handler)}
}

func (m *mockQueue) Publish(ctx context.Context, subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.messages = append(m.messages, published{subject: subject, data: data})
	return nil
}

func (m *mockQueue) Subscribe(ctx context.Context, subject string, h messagequeue.Handler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[subject] = h
	return func() {}, nil
}

func (m *mockQueue) Drain() error      { return nil }
func (m *mockQueue) Close() error      { return nil }
func (m *mockQueue) IsConnected() bool { return true }

func (m *mockQueue) onSubject(subject string) []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []published
	for _, p := range m.messages {
		if p.subject == subject {
			out = append(out, p)
		}
	}
	return out
}

// mockRouter is a canned routing.Provider.
type mockRouter struct {
	mu    sync.Mutex
	est   routing.Estimate
	err   error
	calls int
}

func (m *mockRouter) Optimize(ctx context.Context, pickup, dropoff run.Location, waypoints []run.Location) (routing.Estimate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return routing.Estimate{}, m.err
	}
	return m.est, nil
}

func (m *mockRouter) Traffic(ctx context.Context, loc run.Location) (routing.TrafficReport, error) {
	return routing.TrafficReport{Condition: "NORMAL"}, nil
}

var errBrokerDown = fmt.Errorf("publish: %w", domain.ErrNotConnected)
