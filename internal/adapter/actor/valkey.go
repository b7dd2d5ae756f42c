package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/sungrow2mqtt/internal/adapter/valkey"
	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/core/port"
	"github.com/berfenger/sungrow2mqtt/internal/util/actorutil"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// SnapshotSink receives every snapshot and availability change.
type SnapshotSink interface {
	WriteSnapshot(ctx context.Context, registry valkey.VariableLookup, snap *sungrow_modbus.Snapshot) error
	WriteAvailability(ctx context.Context, available bool, at time.Time) error
	Close() error
}

type SnapshotSinkProvider func(ctx context.Context) (SnapshotSink, error)

var _ SnapshotSink = (*valkey.Store)(nil)

type sinkWriteResult struct {
	Error error
}

// ValkeyActor mirrors coordinator events into a snapshot sink. Only the latest pending
// snapshot is written; older ones are dropped while a write is in flight.
type ValkeyActor struct {
	behavior     actor.Behavior
	provider     SnapshotSinkProvider
	sink         SnapshotSink
	coordinator  port.Coordinator
	unsubscribe  func()
	pendingSnap  *sungrow_modbus.Snapshot
	pendingAvail *domain.AvailabilityChangedEvent
	writing      bool
	failures     int
	logger       *zap.Logger
}

func NewValkeyActor(coordinator port.Coordinator, provider SnapshotSinkProvider, logger *zap.Logger) *ValkeyActor {
	act := &ValkeyActor{
		provider:    provider,
		coordinator: coordinator,
		behavior:    actor.NewBehavior(),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_VALKEY, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *ValkeyActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ValkeyActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("valkey@default started")
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sink, err := state.provider(cctx)
		if err != nil {
			// let the supervisor retry
			panic(err)
		}
		state.sink = sink
		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.unsubscribe = state.coordinator.Subscribe(func(event any) {
			root.Send(self, coordinatorEvent{event: event})
		})
		ctx.Send(self, coordinatorEvent{event: domain.AvailabilityChangedEvent{Available: state.coordinator.IsAvailable()}})
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_VALKEY,
			Healthy: state.sink != nil,
			State:   fmt.Sprintf("failures=%d", state.failures),
		})
	case coordinatorEvent:
		switch ev := msg.event.(type) {
		case domain.SnapshotUpdatedEvent:
			state.pendingSnap = ev.Snapshot
		case domain.AvailabilityChangedEvent:
			state.pendingAvail = &ev
		}
		state.flush(ctx)
	case sinkWriteResult:
		state.writing = false
		if msg.Error != nil {
			state.failures++
			state.logger.Warn("valkey write failed", zap.Error(msg.Error))
		}
		state.flush(ctx)
	default:
		state.logger.Debug("valkey@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ValkeyActor) flush(ctx actor.Context) {
	if state.writing || state.sink == nil {
		return
	}
	snap, avail := state.pendingSnap, state.pendingAvail
	if snap == nil && avail == nil {
		return
	}
	state.pendingSnap, state.pendingAvail = nil, nil
	state.writing = true

	sink := state.sink
	registry := state.coordinator.Client()
	actorutil.NewBackgroundTask(ctx, func() (*sinkWriteResult, error) {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if avail != nil {
			if err := sink.WriteAvailability(wctx, avail.Available, time.Now()); err != nil {
				return &sinkWriteResult{Error: err}, nil
			}
		}
		if snap != nil {
			if err := sink.WriteSnapshot(wctx, registry, snap); err != nil {
				return &sinkWriteResult{Error: err}, nil
			}
		}
		return &sinkWriteResult{}, nil
	}).WithTimeout(5 * time.Second).Recover(func(err error) sinkWriteResult {
		return sinkWriteResult{Error: err}
	}).PipeTo(ctx.Self())
}

func (state *ValkeyActor) stop() {
	if state.unsubscribe != nil {
		state.unsubscribe()
		state.unsubscribe = nil
	}
	if state.sink != nil {
		if err := state.sink.Close(); err != nil {
			state.logger.Warn("valkey close failed", zap.Error(err))
		}
		state.sink = nil
	}
}
