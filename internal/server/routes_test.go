package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	adactor "github.com/berfenger/sungrow2mqtt/internal/adapter/actor"
	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/core/port"
	"github.com/berfenger/sungrow2mqtt/internal/util/actorutil"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	handler     http.Handler
	coordinator *port.TestCoordinator
	transport   *sungrow_modbus.MemoryTransport
}

// newTestEnv serves the routes with a Modbus actor standing in for the master actor,
// which forwards variable writes and health checks to it.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	t.Cleanup(as.Shutdown)

	device, ok := sungrow_modbus.LookupDevice(0x0705)
	require.True(t, ok)
	client, transport, err := sungrow_modbus.NewTestClient(device, sungrow_modbus.OutputThreePhase4L, "A2290412345")
	require.NoError(t, err)
	coordinator := port.NewTestCoordinator(client)
	_, err = coordinator.RequestImmediateRefresh(context.Background())
	require.NoError(t, err)

	modbus := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewModbusActor(coordinator, time.Second, logger)
	}))

	s := &Server{
		rootContext:  as.Root,
		masterActor:  modbus,
		coordinator:  coordinator,
		info:         domain.DeviceInfo{Serial: "A2290412345", Model: device.Name, HasBattery: true},
		writeTimeout: 3 * time.Second,
		logger:       logger,
	}
	return testEnv{handler: s.RegisterRoutes(), coordinator: coordinator, transport: transport}
}

func (env testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "SH10RT", status.Device.Model)
	assert.True(t, status.Coordinator.Available)
}

func TestVariables(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/variables", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var vars []VariableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vars))
	assert.Len(vars, len(env.coordinator.Client().Keys()))

	rec = env.do(http.MethodGet, "/api/variables/battery_level", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v VariableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	require.NotNil(t, v.Value)
	assert.Equal("76.5", *v.Value)
	assert.Equal("%", v.Unit)
	assert.False(v.Writable)
	assert.True(v.Available)

	rec = env.do(http.MethodGet, "/api/variables/ems_mode", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal([]string{"self_consumption", "forced", "external"}, v.Options)

	rec = env.do(http.MethodGet, "/api/variables/warp_drive", "")
	assert.Equal(http.StatusNotFound, rec.Code)
}

func TestSetVariable(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/api/variables/max_soc", `{"value":"95"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(`{"name":"max_soc","value":"95.0"}`, rec.Body.String())
	assert.Len(env.transport.Writes(), 1)
	assert.Equal(1, env.coordinator.Triggered())

	rec = env.do(http.MethodPut, "/api/variables/max_soc", `{"value":"150"}`)
	assert.Equal(http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/api/variables/warp_drive", `{"value":"on"}`)
	assert.Equal(http.StatusNotFound, rec.Code)

	env.transport.WriteHook = func(ctx context.Context, call sungrow_modbus.WriteCall) error {
		return errors.New("connection reset by peer")
	}
	rec = env.do(http.MethodPut, "/api/variables/max_soc", `{"value":"90"}`)
	assert.Equal(http.StatusServiceUnavailable, rec.Code)
	assert.Len(env.transport.Writes(), 2, "the failed write reached the transport")
}

func TestRefresh(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Positive(resp.Values)
	assert.False(resp.UpdatedAt.IsZero())

	env.transport.ReadHook = func(ctx context.Context, call sungrow_modbus.ReadCall) error {
		return errors.New("i/o timeout")
	}
	rec = env.do(http.MethodPost, "/api/refresh", "")
	assert.Equal(http.StatusServiceUnavailable, rec.Code)
	assert.False(env.coordinator.IsAvailable())

	// cached values stay readable
	rec = env.do(http.MethodGet, "/api/variables/battery_level", "")
	var v VariableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	require.NotNil(t, v.Value)
	assert.Equal("76.5", *v.Value)
	assert.False(v.Available)
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&sungrow_modbus.ValidationError{}, http.StatusBadRequest},
		{&sungrow_modbus.UnknownVariableError{Name: "x"}, http.StatusNotFound},
		{&sungrow_modbus.CommunicationError{Err: errors.New("eof")}, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, StatusCode(c.err), c.err.Error())
	}
}
