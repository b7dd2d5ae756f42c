package actor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/berfenger/sungrow2mqtt/internal/config"
	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/core/port"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const defaultRefreshWait = 10 * time.Second

// statusHolder is written by the poller and read by the coordinator facade.
type statusHolder struct {
	mu     sync.RWMutex
	status domain.CoordinatorStatus
}

func (h *statusHolder) get() domain.CoordinatorStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *statusHolder) update(fn func(s *domain.CoordinatorStatus)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.status)
}

// Coordinator is the synchronous face of the poller actor.
type Coordinator struct {
	system      *actor.ActorSystem
	client      port.VariableClient
	eventStream *eventstream.EventStream
	status      *statusHolder
	poller      *actor.PID
	logger      *zap.Logger
}

// NewCoordinator spawns the poller. The first refresh starts right away.
func NewCoordinator(system *actor.ActorSystem, config *config.Config, client port.VariableClient, logger *zap.Logger) (*Coordinator, error) {
	c := &Coordinator{
		system:      system,
		client:      client,
		eventStream: &eventstream.EventStream{},
		status:      &statusHolder{},
		logger:      logger.With(zap.String("component", "coordinator")),
	}

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(config, client, c.eventStream, c.status, logger)
	}, actor.WithSupervisor(supervisor))
	pid, err := system.Root.SpawnNamed(props, domain.ACTOR_ID_POLLER)
	if err != nil {
		return nil, err
	}
	c.poller = pid
	return c, nil
}

func (c *Coordinator) Client() port.VariableClient {
	return c.client
}

func (c *Coordinator) PID() *actor.PID {
	return c.poller
}

func (c *Coordinator) Subscribe(fn func(event any)) func() {
	sub := c.eventStream.Subscribe(fn)
	return func() {
		c.eventStream.Unsubscribe(sub)
	}
}

// RequestImmediateRefresh waits for a refresh. A refresh already in flight is joined
// instead of starting a new one.
func (c *Coordinator) RequestImmediateRefresh(ctx context.Context) (*sungrow_modbus.Snapshot, error) {
	wait := defaultRefreshWait
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	if wait <= 0 {
		return nil, context.DeadlineExceeded
	}

	type result struct {
		resp domain.RefreshResponse
		err  error
	}
	done := make(chan result, 1)
	future := c.system.Root.RequestFuture(c.poller, domain.RefreshNowRequest{}, wait)
	go func() {
		msg, err := future.Result()
		if err != nil {
			done <- result{err: err}
			return
		}
		resp, ok := msg.(domain.RefreshResponse)
		if !ok {
			done <- result{err: errors.New("unexpected refresh response")}
			return
		}
		done <- result{resp: resp}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, actor.ErrTimeout) {
				return nil, context.DeadlineExceeded
			}
			return nil, r.err
		}
		if r.resp.HasResponseError() {
			return nil, r.resp.GetResponseError()
		}
		return r.resp.Snapshot, nil
	}
}

func (c *Coordinator) TriggerRefresh() {
	c.system.Root.Send(c.poller, domain.RefreshNowRequest{})
}

func (c *Coordinator) IsAvailable() bool {
	return c.status.get().Available
}

func (c *Coordinator) Status() domain.CoordinatorStatus {
	return c.status.get()
}

func (c *Coordinator) Stop() {
	if err := c.system.Root.StopFuture(c.poller).Wait(); err != nil {
		c.logger.Warn("poller did not stop", zap.Error(err))
	}
}

var _ port.Coordinator = (*Coordinator)(nil)
