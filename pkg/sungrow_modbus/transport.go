package sungrow_modbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type RegisterKind uint8

const (
	InputRegister RegisterKind = iota
	HoldingRegister
)

func (k RegisterKind) String() string {
	if k == HoldingRegister {
		return "holding"
	}
	return "input"
}

func (k RegisterKind) regType() modbus.RegType {
	if k == HoldingRegister {
		return modbus.HOLDING_REGISTER
	}
	return modbus.INPUT_REGISTER
}

// Transport carries register reads and writes to one device.
// Implementations must not run two requests concurrently: callers are queued.
type Transport interface {
	Connect(ctx context.Context) error
	ReadRegisters(ctx context.Context, kind RegisterKind, address uint16, count uint16) ([]uint16, error)
	WriteRegisters(ctx context.Context, address uint16, values []uint16) error
	Close() error
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func TraceLoggerInstrument(logger *zap.Logger) *ModbusInstrument {
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus call", zap.String("fn", fnName), zap.Duration("time", readTime))
		},
	}
}

// ModbusTransport is a Modbus-TCP Transport. The connection is opened lazily and
// reopened on the next request after a connection-level failure.
type ModbusTransport struct {
	client     *modbus.ModbusClient
	url        string
	sem        chan struct{}
	connected  bool
	instrument []ModbusInstrument
	logger     *zap.Logger
}

func CreateModbusTransport(host string, port uint, unitId uint8, timeout time.Duration,
	logger *zap.Logger, instrumentation *ModbusInstrument) (*ModbusTransport, error) {

	url := fmt.Sprintf("tcp://%s:%d", host, port)
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     url,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if err = client.SetUnitId(unitId); err != nil {
		return nil, err
	}

	var instrument []ModbusInstrument
	if instrumentation != nil {
		instrument = []ModbusInstrument{*instrumentation}
	}

	return &ModbusTransport{
		client:     client,
		url:        url,
		sem:        make(chan struct{}, 1),
		instrument: instrument,
		logger:     logger.With(zap.String("transport", url)),
	}, nil
}

func (t *ModbusTransport) Connect(ctx context.Context) error {
	if err := t.acquire(ctx, "connect", 0); err != nil {
		return err
	}
	defer t.release()
	if err := t.ensureOpen(); err != nil {
		return &CommunicationError{Op: "connect", Err: err}
	}
	return nil
}

func (t *ModbusTransport) ReadRegisters(ctx context.Context, kind RegisterKind, address uint16, count uint16) ([]uint16, error) {
	if err := t.acquire(ctx, "read", address); err != nil {
		return nil, err
	}
	defer t.release()

	if err := t.ensureOpen(); err != nil {
		return nil, t.fail("read", address, err)
	}

	regs, err := t.readRegisters(address, count, kind.regType())
	if err != nil {
		return nil, t.fail("read", address, err)
	}
	if len(regs) != int(count) {
		return nil, t.fail("read", address, fmt.Errorf("expected %d registers, got %d", count, len(regs)))
	}
	return regs, nil
}

func (t *ModbusTransport) WriteRegisters(ctx context.Context, address uint16, values []uint16) error {
	if err := t.acquire(ctx, "write", address); err != nil {
		return err
	}
	defer t.release()

	if err := t.ensureOpen(); err != nil {
		return t.fail("write", address, err)
	}
	if err := t.writeRegisters(address, values); err != nil {
		return t.fail("write", address, err)
	}
	return nil
}

func (t *ModbusTransport) Close() error {
	t.sem <- struct{}{}
	defer t.release()
	if !t.connected {
		return nil
	}
	t.connected = false
	return t.client.Close()
}

// acquire waits for the single request slot. Waiting is abandoned when ctx is done;
// a request already on the wire is never aborted.
func (t *ModbusTransport) acquire(ctx context.Context, op string, address uint16) error {
	if err := ctx.Err(); err != nil {
		return &CommunicationError{Op: op, Address: address, Err: err}
	}
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return &CommunicationError{Op: op, Address: address, Err: ctx.Err()}
	}
	if err := ctx.Err(); err != nil {
		t.release()
		return &CommunicationError{Op: op, Address: address, Err: err}
	}
	return nil
}

func (t *ModbusTransport) release() {
	<-t.sem
}

func (t *ModbusTransport) ensureOpen() error {
	if t.connected {
		return nil
	}
	if err := t.client.Open(); err != nil {
		return err
	}
	t.logger.Debug("connected")
	t.connected = true
	return nil
}

// fail wraps err and drops the connection unless the device itself answered.
func (t *ModbusTransport) fail(op string, address uint16, err error) error {
	if !isDeviceException(err) && t.connected {
		t.logger.Debug("dropping connection", zap.String("op", op), zap.Error(err))
		if cerr := t.client.Close(); cerr != nil && !errors.Is(cerr, modbus.ErrConfigurationError) {
			t.logger.Debug("close failed", zap.Error(cerr))
		}
		t.connected = false
	}
	return &CommunicationError{Op: op, Address: address, Err: err}
}

func (t *ModbusTransport) readRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	defer RecordTimer("ReadRegisters", t.instrument)()
	return t.client.ReadRegisters(addr, quantity, regType)
}

func (t *ModbusTransport) writeRegisters(addr uint16, values []uint16) error {
	defer RecordTimer("WriteRegisters", t.instrument)()
	return t.client.WriteRegisters(addr, values)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}
