package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/sungrow2mqtt/internal/adapter/valkey"
	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/util/actorutil"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memorySink struct {
	mu        sync.Mutex
	values    map[string]string
	available []bool
	closed    bool
	fail      bool
}

func (s *memorySink) WriteSnapshot(ctx context.Context, registry valkey.VariableLookup, snap *sungrow_modbus.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("connection refused")
	}
	s.values = valkey.ValuesPayload(registry, snap)
	return nil
}

func (s *memorySink) WriteAvailability(ctx context.Context, available bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = append(s.available, available)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) snapshot() (map[string]string, []bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values, append([]bool(nil), s.available...), s.closed
}

// waitStarted returns once the actor has processed its Started message.
func waitStarted(t *testing.T, root *actor.RootContext, pid *actor.PID) {
	t.Helper()
	_, err := root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
}

func TestValkeyActorMirrorsCoordinator(t *testing.T) {
	assert := assert.New(t)
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	coordinator, _ := newTestCoordinator(t)
	sink := &memorySink{}
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewValkeyActor(coordinator, func(ctx context.Context) (SnapshotSink, error) {
			return sink, nil
		}, logger)
	})
	pid := as.Root.Spawn(props)
	waitStarted(t, as.Root, pid)

	_, err := coordinator.RequestImmediateRefresh(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		values, _, _ := sink.snapshot()
		return values["ems_mode"] == "self_consumption"
	}, 2*time.Second, 10*time.Millisecond)

	coordinator.SetAvailable(false)
	require.Eventually(t, func() bool {
		_, avail, _ := sink.snapshot()
		return len(avail) > 0 && !avail[len(avail)-1]
	}, 2*time.Second, 10*time.Millisecond)

	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health := res.(domain.ActorHealthResponse)
	assert.True(health.Healthy)
	assert.Equal(domain.ACTOR_ID_VALKEY, health.Id)

	require.NoError(t, as.Root.StopFuture(pid).Wait())
	_, _, closed := sink.snapshot()
	assert.True(closed)
}

func TestValkeyActorCountsFailures(t *testing.T) {
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	coordinator, _ := newTestCoordinator(t)
	sink := &memorySink{fail: true}
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewValkeyActor(coordinator, func(ctx context.Context) (SnapshotSink, error) {
			return sink, nil
		}, logger)
	}))
	waitStarted(t, as.Root, pid)

	_, err := coordinator.RequestImmediateRefresh(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
		if err != nil {
			return false
		}
		return res.(domain.ActorHealthResponse).State == "failures=1"
	}, 2*time.Second, 20*time.Millisecond)
}
