package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/sungrow2mqtt/internal/config"
	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/core/port"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

type Server struct {
	port         uint
	httpLog      bool
	writeTimeout time.Duration
	rootContext  *actor.RootContext
	masterActor  *actor.PID
	coordinator  port.Coordinator
	info         domain.DeviceInfo
	logger       *zap.Logger
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, coordinator port.Coordinator,
	info domain.DeviceInfo, logger *zap.Logger) *http.Server {
	NewServer := &Server{
		port:         cfg.Port,
		rootContext:  rootContext,
		masterActor:  masterActor,
		coordinator:  coordinator,
		info:         info,
		httpLog:      cfg.HttpLog,
		writeTimeout: 2*cfg.InverterModbusTcp.Timeout() + time.Second,
		logger:       logger.With(zap.String("component", "http")),
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
