package port

import (
	"context"
	"sync"
	"time"

	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"
)

// TestCoordinator refreshes its client synchronously on request. Events are delivered
// to subscribers on the calling goroutine.
type TestCoordinator struct {
	client VariableClient

	mu          sync.Mutex
	available   bool
	subscribers map[int]func(any)
	nextId      int
	triggered   int
}

func NewTestCoordinator(client VariableClient) *TestCoordinator {
	return &TestCoordinator{
		client:      client,
		subscribers: map[int]func(any){},
	}
}

func (c *TestCoordinator) Client() VariableClient {
	return c.client
}

func (c *TestCoordinator) Subscribe(fn func(event any)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextId
	c.nextId++
	c.subscribers[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *TestCoordinator) RequestImmediateRefresh(ctx context.Context) (*sungrow_modbus.Snapshot, error) {
	snap, err := c.client.Refresh(ctx)
	now := time.Now()
	if err != nil {
		c.SetAvailable(false)
		c.publish(domain.RefreshFailedEvent{Error: err, At: now})
		return nil, err
	}
	c.SetAvailable(true)
	c.publish(domain.SnapshotUpdatedEvent{Snapshot: snap, At: now})
	return snap, nil
}

func (c *TestCoordinator) TriggerRefresh() {
	c.mu.Lock()
	c.triggered++
	c.mu.Unlock()
}

// Triggered counts TriggerRefresh calls.
func (c *TestCoordinator) Triggered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggered
}

func (c *TestCoordinator) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

func (c *TestCoordinator) SetAvailable(available bool) {
	c.mu.Lock()
	changed := c.available != available
	c.available = available
	c.mu.Unlock()
	if changed {
		c.publish(domain.AvailabilityChangedEvent{Available: available})
	}
}

func (c *TestCoordinator) Status() domain.CoordinatorStatus {
	return domain.CoordinatorStatus{Available: c.IsAvailable()}
}

func (c *TestCoordinator) publish(event any) {
	c.mu.Lock()
	subs := make([]func(any), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(event)
	}
}

var _ Coordinator = (*TestCoordinator)(nil)
