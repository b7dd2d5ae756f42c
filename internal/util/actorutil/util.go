package actorutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand turns an MQTT command into a variable write. platformOf
// reports the platform of a commandable entity.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand, platformOf func(id string) (string, bool)) (domain.ActorRequest, error) {
	platform, ok := platformOf(cmd.DeviceId)
	if !ok {
		return nil, fmt.Errorf("unknown entity %s", cmd.DeviceId)
	}
	if platform != cmd.Command {
		return nil, fmt.Errorf("entity %s is a %s, not a %s", cmd.DeviceId, platform, cmd.Command)
	}
	return domain.SetVariableRequest{
		Name:    cmd.DeviceId,
		Payload: cmd.Payload,
	}, nil
}
