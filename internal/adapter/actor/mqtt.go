package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/berfenger/sungrow2mqtt/internal/config"
	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/core/entity"
	"github.com/berfenger/sungrow2mqtt/internal/core/events"
	"github.com/berfenger/sungrow2mqtt/internal/core/port"
	"github.com/berfenger/sungrow2mqtt/internal/mqtt"
	"github.com/berfenger/sungrow2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config      *config.Config
	behavior    actor.Behavior
	stash       *actorutil.Stash
	client      *mqtt.MQTTClient
	coordinator port.Coordinator
	entities    []*entity.Entity
	unsubscribe func()
	logger      *zap.Logger

	// dummy actor bookkeeping
	published  map[string]string
	commands   int
	discovered int
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

// coordinatorEvent wraps an event of the coordinator subscription.
type coordinatorEvent struct {
	event any
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, coordinator port.Coordinator, entities []*entity.Entity, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		coordinator: coordinator,
		entities:    entities,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// subscribe to MQTT command topic
		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				ctx.Send(ctx.Self(), ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.subscribeToCoordinator(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case coordinatorEvent:
		state.onCoordinatorEvent(ctx, msg.event)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.Any("message", msg))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishSensorUpdateRequest:
		state.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		state.publishSensorValue(ctx, msg.Event, msg.Retain)
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery")
		err := state.PublishHomeAssistantDiscovery(msg)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		})
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// subscribeToCoordinator forwards coordinator events to the actor and republishes
// the last known state, which a restarted actor would otherwise only send after the next poll.
func (state *MQTTActor) subscribeToCoordinator(ctx actor.Context) {
	if state.coordinator == nil {
		return
	}
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.unsubscribe = state.coordinator.Subscribe(func(event any) {
		root.Send(self, coordinatorEvent{event: event})
	})
	ctx.Send(self, coordinatorEvent{event: domain.AvailabilityChangedEvent{Available: state.coordinator.IsAvailable()}})
	if snap := state.coordinator.Client().Snapshot(); snap != nil && snap.Len() > 0 {
		ctx.Send(self, coordinatorEvent{event: domain.SnapshotUpdatedEvent{Snapshot: snap, At: snap.UpdatedAt}})
	}
}

func (state *MQTTActor) onCoordinatorEvent(ctx actor.Context, event any) {
	for _, ev := range state.coordinatorEventToUpdates(event) {
		ctx.Send(ctx.Self(), ev)
	}
}

func (state *MQTTActor) coordinatorEventToUpdates(event any) []domain.PublishSensorUpdateRequest {
	var reqs []domain.PublishSensorUpdateRequest
	switch ev := event.(type) {
	case domain.SnapshotUpdatedEvent:
		state.logger.Debug("mqtt@default snapshot updated", zap.Int("values", ev.Snapshot.Len()))
		for _, update := range events.SnapshotToUpdateEvents(state.entities, ev.Snapshot) {
			if sensorUpdate, ok := update.(domain.SensorUpdateEvent); ok {
				reqs = append(reqs, domain.PublishSensorUpdateRequest{Event: sensorUpdate})
			}
		}
	case domain.AvailabilityChangedEvent:
		reqs = append(reqs, domain.PublishSensorUpdateRequest{
			Retain: true,
			Event:  domain.DeviceAvailabilityUpdateEvent{Value: ev.Available},
		})
	case domain.RefreshFailedEvent:
		state.logger.Debug("mqtt@default refresh failed", zap.Error(ev.Error))
	}
	return reqs
}

func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
		}
	case domain.BinarySensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.BinarySensorStateTopic(msg.Id),
			message: bool2MQTTPayload(msg.Value),
		}
	case domain.SwitchSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SwitchStateTopic(msg.Id),
			message: bool2MQTTPayload(msg.Value),
			retain:  true,
		}
	case domain.InputNumberSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.InputNumberStateTopic(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
			retain:  true,
		}
	case domain.SelectUpdateEvent:
		return &rawMessage{
			topic:   state.client.SelectStateTopic(msg.Id),
			message: msg.Value,
			retain:  true,
		}
	case domain.TextInputUpdateEvent:
		return &rawMessage{
			topic:   state.client.TextStateTopic(msg.Id),
			message: msg.Value,
			retain:  true,
		}
	case domain.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: msg.Value,
		}
	case domain.SensorAttributesUpdateEvent:
		payload, err := json.Marshal(msg.Attributes)
		if err != nil {
			state.logger.Error("mqtt: cannot encode attributes", zap.String("sensor", msg.Id), zap.Error(err))
			return nil
		}
		return &rawMessage{
			topic:   state.client.SensorAttributesTopic(msg.Id),
			message: string(payload),
		}
	case domain.BridgeStateUpdateEvent:
		return &rawMessage{
			topic:   state.client.BridgeStateTopic(),
			message: availabilityPayload(msg.Value),
		}
	case domain.DeviceAvailabilityUpdateEvent:
		return &rawMessage{
			topic:   state.client.DeviceAvailabilityTopic(),
			message: availabilityPayload(msg.Value),
			retain:  true,
		}
	default:
		return nil
	}
}

func (state *MQTTActor) publishSensorValue(ctx actor.Context, event domain.SensorUpdateEvent, retain bool) {
	msg := state.event2MQTTMessage(event)
	if msg != nil {
		state.logger.Sugar().Debugf("mqtt@publish: sensor publish %s => %s", msg.topic, msg.message)
		state.client.Publish(msg.topic, msg.message, 1, msg.retain || retain, func(err error) {
			ctx.Send(ctx.Self(), publishResult{Error: err})
		}, 5*time.Second)
		state.behavior.BecomeStacked(state.EventPublishResultReceive)
	}
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		ctx.Send(ctx.Self(), publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ErrorResponse(msg.Error),
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) EventPublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// HomeAssistantDiscoveryMessages renders the retained discovery configs by topic.
func (state *MQTTActor) HomeAssistantDiscoveryMessages(req domain.PublishDiscoveryRequest) (map[string][]byte, error) {
	discoveryTopic := state.config.MQTT.HADiscoveryTopic
	messages := map[string][]byte{}
	add := func(topic string, msg mqtt.HADiscoveryConfig) error {
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		messages[topic] = payload
		return nil
	}
	for i := range req.Sensors {
		topic := mqtt.HADiscoverySensorTopic(discoveryTopic, req.Sensors[i])
		if err := add(topic, mqtt.GenericSensorToHADiscoveryMessage(state.client, req.Sensors[i])); err != nil {
			return nil, err
		}
	}
	for i := range req.Switches {
		topic := mqtt.HADiscoverySwitchTopic(discoveryTopic, req.Switches[i])
		if err := add(topic, mqtt.GenericSwitchToHADiscoveryMessage(state.client, req.Switches[i])); err != nil {
			return nil, err
		}
	}
	for i := range req.InputNumbers {
		topic := mqtt.HADiscoveryInputNumberTopic(discoveryTopic, req.InputNumbers[i])
		if err := add(topic, mqtt.GenericInputNumberToHADiscoveryMessage(state.client, req.InputNumbers[i])); err != nil {
			return nil, err
		}
	}
	for i := range req.Selects {
		topic := mqtt.HADiscoverySelectTopic(discoveryTopic, req.Selects[i])
		if err := add(topic, mqtt.GenericSelectToHADiscoveryMessage(state.client, req.Selects[i])); err != nil {
			return nil, err
		}
	}
	for i := range req.Texts {
		topic := mqtt.HADiscoveryTextTopic(discoveryTopic, req.Texts[i])
		if err := add(topic, mqtt.GenericTextToHADiscoveryMessage(state.client, req.Texts[i])); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

func (state *MQTTActor) PublishHomeAssistantDiscovery(req domain.PublishDiscoveryRequest) error {
	messages, err := state.HomeAssistantDiscoveryMessages(req)
	if err != nil {
		return err
	}
	for topic, payload := range messages {
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	state.logger.Info("published discovery", zap.Int("entities", len(messages)))
	return nil
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.unsubscribe != nil {
		state.unsubscribe()
		state.unsubscribe = nil
	}
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	} else {
		return mqtt.MQTT_PAYLOAD_OFF
	}
}

func availabilityPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ONLINE
	}
	return mqtt.MQTT_PAYLOAD_OFFLINE
}

// Dummy actor. It records what it would publish instead of connecting to a broker.
func NewTestMQTTActor(config *config.Config, coordinator port.Coordinator, entities []*entity.Entity, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		coordinator: coordinator,
		entities:    entities,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

// GetPublishedRequest asks the dummy actor for the last message published per topic.
type GetPublishedRequest struct {
	domain.ActorRequestMixIn
}

type GetPublishedResponse struct {
	domain.ActorResponseMixIn
	Messages   map[string]string
	Commands   int
	Discovered int
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		state.published = map[string]string{}
		state.subscribeToCoordinator(ctx)
	case *actor.Stopping:
		if state.unsubscribe != nil {
			state.unsubscribe()
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case coordinatorEvent:
		state.onCoordinatorEvent(ctx, msg.event)
	case ParsedCommand:
		state.commands++
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishSensorUpdateRequest:
		if raw := state.event2MQTTMessage(msg.Event); raw != nil {
			state.published[raw.topic] = raw.message
		}
		if msg.ReplyToRef != nil {
			ctx.Respond(domain.PublishSensorUpdateResponse{})
		}
	case domain.PublishMessageRequest:
		state.published[msg.Topic] = msg.Payload
		if msg.ReplyToRef != nil {
			ctx.Respond(domain.PublishMessageResponse{})
		}
	case domain.PublishDiscoveryRequest:
		messages, err := state.HomeAssistantDiscoveryMessages(msg)
		if err == nil {
			state.discovered += len(messages)
		}
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		})
	case GetPublishedRequest:
		published := make(map[string]string, len(state.published))
		for k, v := range state.published {
			published[k] = v
		}
		ctx.Respond(GetPublishedResponse{
			Messages:   published,
			Commands:   state.commands,
			Discovered: state.discovered,
		})
	}
}
