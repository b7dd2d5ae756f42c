package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/core/port"
	"github.com/berfenger/sungrow2mqtt/internal/util/actorutil"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// ModbusActor serialises variable writes. Reads belong to the poller.
type ModbusActor struct {
	behavior     actor.Behavior
	stash        *actorutil.Stash
	coordinator  port.Coordinator
	writeTimeout time.Duration
	logger       *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(coordinator port.Coordinator, writeTimeout time.Duration, logger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		coordinator:  coordinator,
		writeTimeout: writeTimeout,
		behavior:     actor.NewBehavior(),
		stash:        &actorutil.Stash{},
		logger:       actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@default started")
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: true,
			State:   "idle",
		})
	case domain.SetVariableRequest:
		state.logger.Debug("modbus@default: SetVariableRequest", zap.String("variable", msg.Name), zap.String("payload", msg.Payload))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		value, err := state.parse(msg)
		if err != nil {
			state.logger.Warn("rejected variable write", zap.String("variable", msg.Name), zap.Error(err))
			if sender != nil {
				ctx.Send(sender, domain.SetVariableResponse{ActorResponseMixIn: domain.ErrorResponse(err)})
			}
			return
		}

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SetVariableResponse, error) {
			return state.setVariable(msg.Name, value)
		}), mapTaskResult[domain.SetVariableResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetVariableResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				},
				replyTo: sender,
			}
		}).WithTimeout(2 * state.writeTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if resp, ok := msg.message.(domain.SetVariableResponse); ok {
			if resp.HasResponseError() {
				state.logger.Error("variable write failed", zap.Error(resp.GetResponseError()))
			} else {
				// make the written value visible without waiting for the next tick
				state.coordinator.TriggerRefresh()
			}
		}
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: true,
			State:   "writing",
		})
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) parse(req domain.SetVariableRequest) (any, error) {
	def, ok := state.coordinator.Client().Variable(req.Name)
	if !ok {
		return nil, &sungrow_modbus.UnknownVariableError{Name: req.Name}
	}
	return def.Parse(req.Payload)
}

func (state *ModbusActor) setVariable(name string, value any) (*domain.SetVariableResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), state.writeTimeout)
	defer cancel()
	if err := state.coordinator.Client().Set(ctx, name, value); err != nil {
		return &domain.SetVariableResponse{ActorResponseMixIn: domain.ErrorResponse(err)}, nil
	}
	state.logger.Info("variable written", zap.String("variable", name), zap.Any("value", value))
	return &domain.SetVariableResponse{Value: value}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
