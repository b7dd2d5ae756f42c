package actor

import (
	"context"
	"fmt"
	"testing"
	"time"

	adactor "github.com/berfenger/sungrow2mqtt/internal/adapter/actor"
	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/core/entity"
	"github.com/berfenger/sungrow2mqtt/internal/mqtt"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type masterEnv struct {
	system      *actor.ActorSystem
	coordinator *Coordinator
	transport   *sungrow_modbus.MemoryTransport
	master      *actor.PID
}

func newMasterEnv(t *testing.T, discovery bool) masterEnv {
	t.Helper()
	coordinator, client, transport, as := newTestCoordinatorEnv(t, nil)

	cfg := testCoordinatorConfig()
	cfg.MQTT.HADiscoveryEnable = discovery
	logger := zap.NewNop()

	ident := sungrow_modbus.Identification{Serial: "A2290412345", Device: client.Device(), Variant: client.Variant()}
	info, err := entity.LoadDeviceInfo(context.Background(), client, ident)
	require.NoError(t, err)
	bridge := entity.BridgeDevice(cfg.MQTT.BaseTopic)
	entities := entity.Build(coordinator, info, bridge)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, coordinator, entities, bridge, func() *adactor.ModbusActor {
			return adactor.NewModbusActor(coordinator, time.Second, logger)
		}, func() *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, coordinator, entities, logger)
		}, nil, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, as.Root.StopFuture(pid).Wait())
	})

	return masterEnv{system: as, coordinator: coordinator, transport: transport, master: pid}
}

func (env masterEnv) child(id string) *actor.PID {
	return actor.NewPID(env.system.Address(), fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, id))
}

func (env masterEnv) published(t *testing.T) adactor.GetPublishedResponse {
	res, err := env.system.Root.RequestFuture(env.child(domain.ACTOR_ID_MQTT), adactor.GetPublishedRequest{}, time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(adactor.GetPublishedResponse)
	require.True(t, ok)
	return resp
}

func TestMasterActor(t *testing.T) {
	env := newMasterEnv(t, false)

	assert.Eventually(t, env.coordinator.IsAvailable, 2*time.Second, 10*time.Millisecond)

	res, err := env.system.Root.RequestFuture(env.master, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	assert.Equal(t, domain.ACTOR_ID_MASTER, healthResp.Id)
	assert.True(t, healthResp.Healthy, "healthy is true")
}

func TestMasterStopsWithChildren(t *testing.T) {
	assert := assert.New(t)
	env := newMasterEnv(t, false)
	require.Eventually(t, env.coordinator.IsAvailable, 2*time.Second, 10*time.Millisecond)

	res, err := env.system.Root.RequestFuture(env.master, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	require.True(t, res.(domain.ActorHealthResponse).Healthy)

	start := time.Now()
	require.NoError(t, env.system.Root.StopFuture(env.master).Wait())
	assert.Less(time.Since(start), 2*time.Second)

	_, err = env.system.Root.RequestFuture(env.child(domain.ACTOR_ID_MODBUS), domain.ActorHealthRequest{}, 200*time.Millisecond).Result()
	assert.Error(err, "modbus child is gone")
}

func TestMasterPublishesSnapshots(t *testing.T) {
	env := newMasterEnv(t, false)
	assert.Eventually(t, env.coordinator.IsAvailable, 2*time.Second, 10*time.Millisecond)

	_, err := env.coordinator.RequestImmediateRefresh(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		msgs := env.published(t).Messages
		return msgs["sungrow/sensor/battery_level/state"] == "76.5" &&
			msgs["sungrow/select/ems_mode/state"] == "self_consumption" &&
			msgs["sungrow/inverter/availability"] == mqtt.MQTT_PAYLOAD_ONLINE
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMasterRoutesCommandsToModbus(t *testing.T) {
	env := newMasterEnv(t, false)
	assert.Eventually(t, env.coordinator.IsAvailable, 2*time.Second, 10*time.Millisecond)

	// MQTT command path
	env.system.Root.Send(env.master, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: "ems_mode",
		Command:  "select",
		Payload:  "forced",
	}})
	assert.Eventually(t, func() bool {
		return len(env.transport.Writes()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// wrong platform is ignored
	env.system.Root.Send(env.master, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: "ems_mode",
		Command:  "switch",
		Payload:  "on",
	}})

	// request/response path
	res, err := env.system.Root.RequestFuture(env.master, domain.SetVariableRequest{Name: "max_soc", Payload: "95"}, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.SetVariableResponse)
	require.True(t, ok)
	require.NoError(t, resp.GetResponseError())
	assert.Equal(t, 95.0, resp.Value)
	assert.Len(t, env.transport.Writes(), 2)

	assert.Eventually(t, func() bool {
		v, ok := env.coordinator.Client().Get("ems_mode")
		return ok && v.(sungrow_modbus.EnumOption).Name == "forced"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMasterPublishesDiscovery(t *testing.T) {
	env := newMasterEnv(t, true)

	assert.Eventually(t, func() bool {
		return env.published(t).Discovered > 0
	}, 5*time.Second, 50*time.Millisecond)
}
