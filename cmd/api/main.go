package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/sungrow2mqtt/internal/adapter/actor"
	"github.com/berfenger/sungrow2mqtt/internal/adapter/valkey"
	"github.com/berfenger/sungrow2mqtt/internal/config"
	"github.com/berfenger/sungrow2mqtt/internal/core/actor"
	"github.com/berfenger/sungrow2mqtt/internal/core/entity"
	"github.com/berfenger/sungrow2mqtt/internal/server"
	"github.com/berfenger/sungrow2mqtt/internal/util/actorutil"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(2)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("starting sungrow2mqtt", zap.String("version", versioninfo.Short()))

	// in-process inverter
	if cfg.SimulatorConfig.Enabled {
		sim, err := startSimulator(cfg, logger)
		if err != nil {
			logger.Error("cannot start simulator", zap.Error(err))
			os.Exit(1)
		}
		defer sim.Stop()
	}

	// connect and identify
	session, err := openSession(cfg, logger)
	if err != nil {
		logSetupError(logger, err)
		os.Exit(1)
	}
	defer session.Close()

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 10*time.Second)
	info, err := entity.LoadDeviceInfo(setupCtx, session.Client, session.Identification)
	cancelSetup()
	if err != nil {
		logSetupError(logger, err)
		os.Exit(1)
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	coordinator, err := actor.NewCoordinator(as, cfg, session.Client, logger)
	if err != nil {
		logger.Error("cannot start coordinator", zap.Error(err))
		os.Exit(1)
	}

	bridge := entity.BridgeDevice(cfg.MQTT.BaseTopic)
	entities := entity.Build(coordinator, info, bridge)
	logger.Info("entities created", zap.Int("count", len(entities)))

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, coordinator, entities, bridge,
			modbusActorProvider(cfg, coordinator, logger),
			mqttActorProvider(cfg, coordinator, entities, logger),
			valkeyActorProvider(cfg, coordinator, info.Serial, logger),
			logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Error("cannot start master actor", zap.Error(err))
		os.Exit(1)
	}

	server := server.NewServer(*cfg, ctx, pid, coordinator, info, logger)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	if err := ctx.StopFuture(pid).Wait(); err != nil {
		logger.Warn("master did not stop", zap.Error(err))
	}
	coordinator.Stop()
	as.Shutdown()
}

func openSession(cfg *config.Config, logger *zap.Logger) (*sungrow_modbus.Session, error) {
	var instrument *sungrow_modbus.ModbusInstrument
	if cfg.LogLevel == zap.DebugLevel {
		instrument = sungrow_modbus.TraceLoggerInstrument(logger)
	}
	transport, err := sungrow_modbus.CreateModbusTransport(cfg.InverterModbusTcp.Host, cfg.InverterModbusTcp.Port,
		uint8(cfg.InverterModbusTcp.UnitId), cfg.InverterModbusTcp.Timeout(), logger, instrument)
	if err != nil {
		return nil, err
	}

	opts := []sungrow_modbus.ClientOption{sungrow_modbus.WithRefreshTimeout(cfg.MonitorConfig.RefreshTimeout())}
	if cfg.InverterModbusTcp.MaxRegisterGap > 0 {
		opts = append(opts, sungrow_modbus.WithMaxGap(uint16(cfg.InverterModbusTcp.MaxRegisterGap)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	session, err := sungrow_modbus.OpenSession(ctx, transport, logger, opts...)
	if err != nil {
		transport.Close()
		return nil, err
	}

	if model := cfg.InverterModbusTcp.Device; model != "" && model != session.Device.Name {
		session.Close()
		return nil, fmt.Errorf("wrong inverter model: configured %s, found %s", model, session.Device.Name)
	}
	return session, nil
}

func logSetupError(logger *zap.Logger, err error) {
	var unsupported *sungrow_modbus.NotASupportedDeviceError
	var comm *sungrow_modbus.CommunicationError
	switch {
	case errors.As(err, &unsupported):
		logger.Error("the configured host is not a supported Sungrow inverter, check inverter_modbus_tcp", zap.Error(err))
	case errors.As(err, &comm):
		logger.Error("inverter not ready, will retry on restart", zap.Error(err))
	default:
		logger.Error("setup failed", zap.Error(err))
	}
}

func startSimulator(cfg *config.Config, logger *zap.Logger) (*sungrow_modbus.Simulator, error) {
	simCfg := cfg.SimulatorConfig
	device, ok := sungrow_modbus.LookupDevice(simCfg.DeviceCode)
	if !ok {
		return nil, fmt.Errorf("unknown simulator device code 0x%04X", simCfg.DeviceCode)
	}
	bank := sungrow_modbus.NewRegisterBank()
	if err := sungrow_modbus.SeedDevice(bank, device, sungrow_modbus.OutputTypeFromRaw(simCfg.OutputType), simCfg.Serial); err != nil {
		return nil, err
	}
	sim, err := sungrow_modbus.NewSimulator(fmt.Sprintf("tcp://127.0.0.1:%d", simCfg.Port), bank, logger)
	if err != nil {
		return nil, err
	}
	if err := sim.Start(); err != nil {
		return nil, err
	}
	logger.Info("simulator started", zap.String("model", device.Name), zap.Uint("port", simCfg.Port))

	cfg.InverterModbusTcp.Host = "127.0.0.1"
	cfg.InverterModbusTcp.Port = simCfg.Port
	return sim, nil
}

func initConfig() (*config.Config, error) {

	// alias PORT => SUNGROW2MQTT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SUNGROW2MQTT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("sungrow2mqtt")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func modbusActorProvider(cfg *config.Config, coordinator *actor.Coordinator, logger *zap.Logger) actor.ModbusActorProvider {
	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(coordinator, cfg.InverterModbusTcp.Timeout()*2, logger)
	}
}

func mqttActorProvider(cfg *config.Config, coordinator *actor.Coordinator, entities []*entity.Entity, logger *zap.Logger) actor.MQTTActorProvider {
	return func() *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, coordinator, entities, logger)
	}
}

func valkeyActorProvider(cfg *config.Config, coordinator *actor.Coordinator, serial string, logger *zap.Logger) actor.ValkeyActorProvider {
	if !cfg.ValkeyConfig.Enabled {
		return nil
	}
	return func() *adactor.ValkeyActor {
		return adactor.NewValkeyActor(coordinator, func(ctx context.Context) (adactor.SnapshotSink, error) {
			store, err := valkey.NewStore(ctx, cfg.ValkeyConfig, serial, logger)
			if err != nil {
				return nil, err
			}
			return store, nil
		}, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("inverter_modbus_tcp.port", 502)
	viper.SetDefault("inverter_modbus_tcp.unit_id", 1)
	viper.SetDefault("inverter_modbus_tcp.timeout_millis", 3000)
	viper.SetDefault("inverter_modbus_tcp.max_register_gap", sungrow_modbus.DefaultMaxGap)
	viper.SetDefault("monitor.poll_interval_millis", 10000)
	viper.SetDefault("monitor.refresh_timeout_millis", 8000)
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "sungrow")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("valkey.enabled", false)
	viper.SetDefault("valkey.address", "localhost:6379")
	viper.SetDefault("valkey.db", 0)
	viper.SetDefault("valkey.key_prefix", "sungrow")
	viper.SetDefault("simulator.enabled", false)
	viper.SetDefault("simulator.port", 5020)
	viper.SetDefault("simulator.device_code", 0x0705)
	viper.SetDefault("simulator.output_type", 2)
	viper.SetDefault("simulator.serial", "A2290000000")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.ValkeyConfig.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
