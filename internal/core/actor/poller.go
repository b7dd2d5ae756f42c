package actor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/berfenger/sungrow2mqtt/internal/config"
	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/core/port"
	. "github.com/berfenger/sungrow2mqtt/internal/util/actorutil"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// PollerActor refreshes the client on a fixed period. At most one refresh is in flight;
// ticks arriving meanwhile are dropped and refresh requests join the running refresh.
type PollerActor struct {
	ActorWithStates
	scheduler  *scheduler.TimerScheduler
	cancelTick scheduler.CancelFunc

	client      port.VariableClient
	config      *config.Config
	eventStream *eventstream.EventStream
	status      *statusHolder
	waiters     []*actor.PID
	generation  uint64

	logger *zap.Logger
}

type pollTick struct {
}

// refreshGeneration is shared by all poller instances so that a result piped by a
// refresh started before a restart never matches the refresh of the new instance.
var refreshGeneration atomic.Uint64

type refreshResult struct {
	generation uint64
	snapshot   *sungrow_modbus.Snapshot
	err        error
	at         time.Time
}

func NewPollerActor(config *config.Config, client port.VariableClient, eventStream *eventstream.EventStream, status *statusHolder, logger *zap.Logger) *PollerActor {
	act := &PollerActor{
		config:      config,
		client:      client,
		eventStream: eventStream,
		status:      status,
		logger:      ActorLogger(domain.ACTOR_ID_POLLER, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(PollerIdleState{
		actor: act,
	})
	return act
}

func (state *PollerActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Idle state

type PollerIdleState struct {
	ActorState
	actor *PollerActor
}

func (state PollerIdleState) Name() string {
	return "idle"
}

func (state PollerIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("poller@idle started")
		interval := state.actor.config.MonitorConfig.PollInterval()
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.cancelTick = state.actor.scheduler.RequestRepeatedly(interval, interval, ctx.Self(), pollTick{})
		state.actor.startRefresh(ctx)
	case *actor.Restarting:
		state.actor.stopTicks()
	case *actor.Stopping:
		state.actor.stopTicks()
	case pollTick:
		state.actor.logger.Debug("poller@idle tick")
		state.actor.startRefresh(ctx)
	case domain.RefreshNowRequest:
		state.actor.logger.Debug("poller@idle RefreshNowRequest")
		state.actor.addWaiter(ctx)
		state.actor.startRefresh(ctx)
	case domain.GetStatusRequest:
		ctx.Respond(domain.GetStatusResponse{Status: state.actor.status.get()})
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("poller@idle ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POLLER,
			Healthy: true,
			State:   state.Name(),
		})
	case refreshResult:
		// result of a refresh started before a restart
	default:
		state.actor.logger.Debug("poller@idle recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Polling state

type PollerPollingState struct {
	ActorState
	actor *PollerActor
}

func (state PollerPollingState) Name() string {
	return "polling"
}

func (state PollerPollingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.actor.stopTicks()
	case *actor.Stopping:
		state.actor.stopTicks()
	case pollTick:
		state.actor.logger.Debug("poller@polling tick skipped, refresh in flight")
	case domain.RefreshNowRequest:
		state.actor.logger.Debug("poller@polling RefreshNowRequest joins in-flight refresh")
		state.actor.addWaiter(ctx)
	case refreshResult:
		if msg.generation != state.actor.generation {
			state.actor.logger.Debug("poller@polling stale refresh result dropped")
			return
		}
		state.actor.finishRefresh(ctx, msg)
		state.actor.Become(PollerIdleState{
			actor: state.actor,
		})
	case domain.GetStatusRequest:
		ctx.Respond(domain.GetStatusResponse{Status: state.actor.status.get()})
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("poller@polling ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POLLER,
			Healthy: true,
			State:   state.Name(),
		})
	default:
		state.actor.logger.Debug("poller@polling recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PollerActor) startRefresh(ctx actor.Context) {
	timeout := state.config.MonitorConfig.RefreshTimeout()
	client := state.client
	generation := refreshGeneration.Add(1)
	state.generation = generation
	state.status.update(func(s *domain.CoordinatorStatus) {
		s.Polling = true
	})

	NewBackgroundTask(ctx, func() (*refreshResult, error) {
		rctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		snap, err := client.Refresh(rctx)
		return &refreshResult{generation: generation, snapshot: snap, err: err, at: time.Now()}, nil
	}).
		// the transport deadline fires first; this only guards against a stuck task
		WithTimeout(2 * timeout).
		Recover(func(err error) refreshResult {
			return refreshResult{generation: generation, err: err, at: time.Now()}
		}).
		PipeTo(ctx.Self())

	state.Become(PollerPollingState{
		actor: state,
	})
}

func (state *PollerActor) finishRefresh(ctx actor.Context, res refreshResult) {
	var wasAvailable, available bool
	if res.err != nil {
		state.logger.Warn("refresh failed", zap.Error(res.err))
		state.status.update(func(s *domain.CoordinatorStatus) {
			wasAvailable = s.Available
			s.Available = false
			s.Polling = false
			s.LastFailure = res.at
			s.LastError = res.err.Error()
			s.Polls++
			s.Failures++
		})
		state.eventStream.Publish(domain.RefreshFailedEvent{Error: res.err, At: res.at})
	} else {
		for _, w := range res.snapshot.Warnings {
			state.logger.Warn("decode warning", zap.Error(w))
		}
		state.logger.Debug("refresh done", zap.Int("values", res.snapshot.Len()))
		state.status.update(func(s *domain.CoordinatorStatus) {
			wasAvailable = s.Available
			s.Available = true
			s.Polling = false
			s.LastSuccess = res.at
			s.LastError = ""
			s.Polls++
		})
		state.eventStream.Publish(domain.SnapshotUpdatedEvent{Snapshot: res.snapshot, At: res.at})
	}
	available = res.err == nil
	if available != wasAvailable {
		state.logger.Info("device availability changed", zap.Bool("available", available))
		state.eventStream.Publish(domain.AvailabilityChangedEvent{Available: available})
	}

	resp := domain.RefreshResponse{
		ActorResponseMixIn: domain.ErrorResponse(res.err),
		Snapshot:           res.snapshot,
	}
	for _, w := range state.waiters {
		ctx.Send(w, resp)
	}
	state.waiters = nil
}

func (state *PollerActor) addWaiter(ctx actor.Context) {
	if ctx.Sender() != nil {
		state.waiters = append(state.waiters, ctx.Sender())
	}
}

func (state *PollerActor) stopTicks() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}
