package actor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/core/entity"
	"github.com/berfenger/sungrow2mqtt/internal/core/port"
	"github.com/berfenger/sungrow2mqtt/internal/mqtt"
	"github.com/berfenger/sungrow2mqtt/internal/util"
	"github.com/berfenger/sungrow2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTestMQTTActor(t *testing.T) (*actor.RootContext, *actor.PID, *port.TestCoordinator, []*entity.Entity) {
	t.Helper()
	cfg := util.LoadTestConfig()
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	t.Cleanup(as.Shutdown)

	coordinator, _ := newTestCoordinator(t)
	info := domain.DeviceInfo{Serial: "A2290412345", Model: "SH10RT", HasBattery: true}
	entities := entity.Build(coordinator, info, entity.BridgeDevice(cfg.MQTT.BaseTopic))

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewTestMQTTActor(&cfg, coordinator, entities, logger)
	})
	return as.Root, as.Root.Spawn(props), coordinator, entities
}

func getPublished(t *testing.T, root *actor.RootContext, pid *actor.PID) GetPublishedResponse {
	t.Helper()
	res, err := root.RequestFuture(pid, GetPublishedRequest{}, time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(GetPublishedResponse)
	require.True(t, ok)
	return resp
}

func TestMQTTActor(t *testing.T) {
	root, pid, _, _ := spawnTestMQTTActor(t)

	result, err := root.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.Equal(t, domain.ACTOR_ID_MQTT, resp.Id)
	assert.True(t, resp.Healthy)
}

func TestMQTTActorPublishesLastSnapshotOnStart(t *testing.T) {
	assert := assert.New(t)
	root, pid, _, _ := spawnTestMQTTActor(t)

	var msgs map[string]string
	require.Eventually(t, func() bool {
		msgs = getPublished(t, root, pid).Messages
		return len(msgs) > 0 && msgs["sungrow/sensor/state/attributes"] != ""
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(mqtt.MQTT_PAYLOAD_ONLINE, msgs["sungrow/inverter/availability"])
	assert.Equal("76.5", msgs["sungrow/sensor/battery_level/state"])
	assert.Equal("412.3", msgs["sungrow/sensor/mppt_1_voltage/state"])
	assert.Equal("812", msgs["sungrow/sensor/load_power/state"])
	assert.Equal("self_consumption", msgs["sungrow/select/ems_mode/state"])
	assert.Equal("off", msgs["sungrow/switch/power_limitation/state"])
	assert.Equal("08:00", msgs["sungrow/text/load_period_1_start/state"])
	assert.Equal("100.0", msgs["sungrow/number/max_soc/state"])

	var attrs map[string]any
	require.NoError(t, json.Unmarshal([]byte(msgs["sungrow/sensor/state/attributes"]), &attrs))
	assert.Equal(true, attrs["battery_charging"])
	assert.Equal("on_grid", attrs["grid_state"])
}

func TestMQTTActorFollowsAvailability(t *testing.T) {
	root, pid, coordinator, _ := spawnTestMQTTActor(t)

	require.Eventually(t, func() bool {
		return getPublished(t, root, pid).Messages["sungrow/inverter/availability"] == mqtt.MQTT_PAYLOAD_ONLINE
	}, 2*time.Second, 20*time.Millisecond)

	coordinator.SetAvailable(false)
	assert.Eventually(t, func() bool {
		return getPublished(t, root, pid).Messages["sungrow/inverter/availability"] == mqtt.MQTT_PAYLOAD_OFFLINE
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMQTTActorDiscovery(t *testing.T) {
	root, pid, _, entities := spawnTestMQTTActor(t)

	req := entity.Discovery(entities)
	req.Sensors = append(entity.BridgeSensors(entity.BridgeDevice("sungrow")), req.Sensors...)
	total := len(req.Sensors) + len(req.Switches) + len(req.InputNumbers) + len(req.Selects) + len(req.Texts)

	res, err := root.RequestFuture(pid, req, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.PublishDiscoveryResponse)
	require.True(t, ok)
	require.NoError(t, resp.GetResponseError())

	assert.Equal(t, total, getPublished(t, root, pid).Discovered, "one retained config per entity")
}
