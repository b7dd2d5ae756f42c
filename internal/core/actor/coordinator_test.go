package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/berfenger/sungrow2mqtt/internal/config"
	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/util"
	"github.com/berfenger/sungrow2mqtt/internal/util/actorutil"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCoordinatorEnv(t *testing.T, hook func(ctx context.Context, call sungrow_modbus.ReadCall) error) (*Coordinator, *sungrow_modbus.Client, *sungrow_modbus.MemoryTransport, *actor.ActorSystem) {
	t.Helper()
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	t.Cleanup(as.Shutdown)

	device, ok := sungrow_modbus.LookupDevice(0x0705)
	require.True(t, ok)
	client, transport, err := sungrow_modbus.NewTestClient(device, sungrow_modbus.OutputThreePhase4L, "A2290412345")
	require.NoError(t, err)
	transport.ReadHook = hook

	cfg := testCoordinatorConfig()
	coordinator, err := NewCoordinator(as, &cfg, client, logger)
	require.NoError(t, err)
	t.Cleanup(coordinator.Stop)
	return coordinator, client, transport, as
}

func testCoordinatorConfig() config.Config {
	cfg := util.LoadTestConfig()
	// only the initial refresh and explicit requests poll
	cfg.MonitorConfig.PollIntervalMillis = 3_600_000
	cfg.MonitorConfig.RefreshTimeoutMillis = 300
	return cfg
}

func TestCoordinatorInitialRefresh(t *testing.T) {
	assert := assert.New(t)
	coordinator, client, _, _ := newTestCoordinatorEnv(t, nil)

	assert.Eventually(coordinator.IsAvailable, 2*time.Second, 10*time.Millisecond)

	v, ok := client.Get("battery_level")
	assert.True(ok)
	assert.Equal(76.5, v)

	status := coordinator.Status()
	assert.True(status.Available)
	assert.False(status.LastSuccess.IsZero())
	assert.EqualValues(0, status.Failures)
}

func TestCoordinatorConcurrentRequestsShareRefresh(t *testing.T) {
	assert := assert.New(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	coordinator, _, transport, _ := newTestCoordinatorEnv(t, func(ctx context.Context, call sungrow_modbus.ReadCall) error {
		once.Do(func() { close(started) })
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	// the initial refresh is in flight and blocked
	<-started

	const callers = 5
	results := make([]*sungrow_modbus.Snapshot, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			results[i], errs[i] = coordinator.RequestImmediateRefresh(ctx)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(results[0], results[i])
	}
	shared := len(transport.Reads())

	transport.ResetCalls()
	_, err := coordinator.RequestImmediateRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(shared, len(transport.Reads()), "joined requests issue a single read sequence")
}

func TestCoordinatorTimeoutKeepsLastSnapshot(t *testing.T) {
	assert := assert.New(t)

	var hang atomic.Bool
	coordinator, client, _, _ := newTestCoordinatorEnv(t, func(ctx context.Context, call sungrow_modbus.ReadCall) error {
		if hang.Load() {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	_, err := coordinator.RequestImmediateRefresh(context.Background())
	require.NoError(t, err)
	require.True(t, coordinator.IsAvailable())

	events := make(chan any, 16)
	unsubscribe := coordinator.Subscribe(func(event any) {
		events <- event
	})
	defer unsubscribe()

	hang.Store(true)
	_, err = coordinator.RequestImmediateRefresh(context.Background())
	assert.Error(err)
	assert.False(coordinator.IsAvailable())

	v, ok := client.Get("battery_level")
	assert.True(ok, "values survive a failed refresh")
	assert.Equal(76.5, v)

	status := coordinator.Status()
	assert.EqualValues(1, status.Failures)
	assert.NotEmpty(status.LastError)

	var sawFailure, sawUnavailable bool
	timeout := time.After(time.Second)
	for !(sawFailure && sawUnavailable) {
		select {
		case ev := <-events:
			switch e := ev.(type) {
			case domain.RefreshFailedEvent:
				sawFailure = true
			case domain.AvailabilityChangedEvent:
				sawUnavailable = !e.Available
			}
		case <-timeout:
			t.Fatalf("missing events: failure=%v unavailable=%v", sawFailure, sawUnavailable)
		}
	}

	// recovery
	hang.Store(false)
	_, err = coordinator.RequestImmediateRefresh(context.Background())
	require.NoError(t, err)
	assert.True(coordinator.IsAvailable())
}

func TestCoordinatorSubscribeReceivesSnapshots(t *testing.T) {
	assert := assert.New(t)
	coordinator, _, _, _ := newTestCoordinatorEnv(t, nil)
	assert.Eventually(coordinator.IsAvailable, 2*time.Second, 10*time.Millisecond)

	snaps := make(chan *sungrow_modbus.Snapshot, 4)
	unsubscribe := coordinator.Subscribe(func(event any) {
		if e, ok := event.(domain.SnapshotUpdatedEvent); ok {
			snaps <- e.Snapshot
		}
	})

	coordinator.TriggerRefresh()
	select {
	case snap := <-snaps:
		v, ok := snap.Get("ems_mode")
		assert.True(ok)
		assert.Equal("self_consumption", v.(sungrow_modbus.EnumOption).Name)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}

	unsubscribe()
	coordinator.TriggerRefresh()
	select {
	case <-snaps:
		t.Fatal("event delivered after unsubscribe")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPollerHealth(t *testing.T) {
	coordinator, _, _, as := newTestCoordinatorEnv(t, nil)

	res, err := as.Root.RequestFuture(coordinator.PID(), domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	assert.Equal(t, domain.ACTOR_ID_POLLER, health.Id)
	assert.True(t, health.Healthy)
}

func TestPollerDropsStaleRefreshResult(t *testing.T) {
	assert := assert.New(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	coordinator, _, _, as := newTestCoordinatorEnv(t, func(ctx context.Context, call sungrow_modbus.ReadCall) error {
		once.Do(func() { close(started) })
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	<-started

	// a result left over from a refresh of a previous incarnation
	as.Root.Send(coordinator.PID(), refreshResult{err: errors.New("connection reset"), at: time.Now()})

	res, err := as.Root.RequestFuture(coordinator.PID(), domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.Equal("polling", res.(domain.ActorHealthResponse).State)
	assert.EqualValues(0, coordinator.Status().Failures)

	close(release)
	assert.Eventually(coordinator.IsAvailable, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(0, coordinator.Status().Failures)
}
