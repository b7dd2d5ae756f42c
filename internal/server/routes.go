package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type StatusResponse struct {
	Device      domain.DeviceInfo        `json:"device"`
	Coordinator domain.CoordinatorStatus `json:"coordinator"`
}

type VariableResponse struct {
	Name      string    `json:"name"`
	Value     *string   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Kind      string    `json:"kind"`
	Writable  bool      `json:"writable"`
	Options   []string  `json:"options,omitempty"`
	Available bool      `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SetVariableBody struct {
	Value string `json:"value"`
}

type RefreshResponse struct {
	Values    int       `json:"values"`
	UpdatedAt time.Time `json:"updated_at"`
	Warnings  []string  `json:"warnings,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.GET("/status", s.StatusHandler)
	api.GET("/variables", s.ListVariablesHandler)
	api.GET("/variables/:name", s.GetVariableHandler)
	api.PUT("/variables/:name", s.SetVariableHandler)
	api.POST("/refresh", s.RefreshHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StatusHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Device:      s.info,
		Coordinator: s.coordinator.Status(),
	})
}

func (s *Server) ListVariablesHandler(c echo.Context) error {
	client := s.coordinator.Client()
	keys := slices.Sorted(slices.Values(client.Keys()))
	vars := make([]VariableResponse, 0, len(keys))
	for _, key := range keys {
		if v, ok := s.variable(key); ok {
			vars = append(vars, v)
		}
	}
	return c.JSON(http.StatusOK, vars)
}

func (s *Server) GetVariableHandler(c echo.Context) error {
	name := c.Param("name")
	v, ok := s.variable(name)
	if !ok {
		return s.errorJSON(c, &sungrow_modbus.UnknownVariableError{Name: name})
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) SetVariableHandler(c echo.Context) error {
	name := c.Param("name")
	var body SetVariableBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SetVariableRequest{
		Name:    name,
		Payload: body.Value,
	}, s.writeTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: err.Error()})
	}
	resp, ok := res.(domain.SetVariableResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "unexpected response"})
	}
	if resp.HasResponseError() {
		return s.errorJSON(c, resp.GetResponseError())
	}
	s.logger.Info("variable set over http", zap.String("variable", name), zap.String("value", body.Value))

	def, _ := s.coordinator.Client().Variable(name)
	formatted := def.Format(resp.Value)
	return c.JSON(http.StatusOK, map[string]string{"name": name, "value": formatted})
}

func (s *Server) RefreshHandler(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()
	snap, err := s.coordinator.RequestImmediateRefresh(ctx)
	if err != nil {
		return s.errorJSON(c, err)
	}
	resp := RefreshResponse{
		Values:    snap.Len(),
		UpdatedAt: snap.UpdatedAt,
	}
	for _, w := range snap.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) variable(name string) (VariableResponse, bool) {
	client := s.coordinator.Client()
	def, ok := client.Variable(name)
	if !ok {
		return VariableResponse{}, false
	}
	snap := client.Snapshot()
	v := VariableResponse{
		Name:      name,
		Unit:      def.Unit,
		Kind:      def.Kind.String(),
		Writable:  def.Writable,
		Options:   def.OptionNames(),
		Available: s.coordinator.IsAvailable(),
		UpdatedAt: snap.UpdatedAt,
	}
	if value, ok := snap.Get(name); ok {
		text := def.Format(value)
		v.Value = &text
	}
	return v, true
}

func (s *Server) errorJSON(c echo.Context, err error) error {
	return c.JSON(StatusCode(err), ErrorResponse{Error: err.Error()})
}

// StatusCode maps core errors to HTTP status codes.
func StatusCode(err error) int {
	var validationErr *sungrow_modbus.ValidationError
	var unknownErr *sungrow_modbus.UnknownVariableError
	var commErr *sungrow_modbus.CommunicationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &unknownErr):
		return http.StatusNotFound
	case errors.As(err, &commErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
