package sungrow_modbus

import (
	"context"
	"sync"
)

// RegisterBank is a thread-safe register image of a device. Unset registers read as zero.
type RegisterBank struct {
	mu      sync.RWMutex
	input   map[uint16]uint16
	holding map[uint16]uint16
}

func NewRegisterBank() *RegisterBank {
	return &RegisterBank{
		input:   map[uint16]uint16{},
		holding: map[uint16]uint16{},
	}
}

func (b *RegisterBank) table(kind RegisterKind) map[uint16]uint16 {
	if kind == HoldingRegister {
		return b.holding
	}
	return b.input
}

func (b *RegisterBank) Set(kind RegisterKind, address uint16, values ...uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.table(kind)
	for i, v := range values {
		t[address+uint16(i)] = v
	}
}

func (b *RegisterBank) Get(kind RegisterKind, address uint16, count uint16) []uint16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t := b.table(kind)
	regs := make([]uint16, count)
	for i := range regs {
		regs[i] = t[address+uint16(i)]
	}
	return regs
}

// SetValue encodes value with the variable's codec and stores it, ignoring writability.
func (b *RegisterBank) SetValue(def *VariableDefinition, value any) error {
	encoder := *def
	encoder.Writable = true
	encoder.Limits = nil
	regs, err := encoder.Encode(value)
	if err != nil {
		return err
	}
	b.Set(def.Register, def.Address, regs...)
	return nil
}

type ReadCall struct {
	Register RegisterKind
	Address  uint16
	Count    uint16
}

type WriteCall struct {
	Address uint16
	Values  []uint16
}

// MemoryTransport is a Transport over a RegisterBank that records every request.
// ReadHook and WriteHook run before a request is served; a non-nil error fails it.
type MemoryTransport struct {
	Bank      *RegisterBank
	ReadHook  func(ctx context.Context, call ReadCall) error
	WriteHook func(ctx context.Context, call WriteCall) error

	busy   sync.Mutex
	mu     sync.Mutex
	reads  []ReadCall
	writes []WriteCall
	closed bool
}

func NewMemoryTransport(bank *RegisterBank) *MemoryTransport {
	if bank == nil {
		bank = NewRegisterBank()
	}
	return &MemoryTransport{Bank: bank}
}

func (t *MemoryTransport) Connect(ctx context.Context) error {
	return nil
}

func (t *MemoryTransport) ReadRegisters(ctx context.Context, kind RegisterKind, address uint16, count uint16) ([]uint16, error) {
	t.busy.Lock()
	defer t.busy.Unlock()

	call := ReadCall{Register: kind, Address: address, Count: count}
	t.mu.Lock()
	t.reads = append(t.reads, call)
	t.mu.Unlock()

	if t.ReadHook != nil {
		if err := t.ReadHook(ctx, call); err != nil {
			return nil, asCommunicationError("read", address, err)
		}
	}
	return t.Bank.Get(kind, address, count), nil
}

func (t *MemoryTransport) WriteRegisters(ctx context.Context, address uint16, values []uint16) error {
	t.busy.Lock()
	defer t.busy.Unlock()

	call := WriteCall{Address: address, Values: append([]uint16(nil), values...)}
	t.mu.Lock()
	t.writes = append(t.writes, call)
	t.mu.Unlock()

	if t.WriteHook != nil {
		if err := t.WriteHook(ctx, call); err != nil {
			return asCommunicationError("write", address, err)
		}
	}
	t.Bank.Set(HoldingRegister, address, values...)
	return nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *MemoryTransport) Reads() []ReadCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ReadCall(nil), t.reads...)
}

func (t *MemoryTransport) Writes() []WriteCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]WriteCall(nil), t.writes...)
}

func (t *MemoryTransport) ResetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads = nil
	t.writes = nil
}

func (t *MemoryTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// NewTestClient returns a client over a memory transport seeded with a plausible image of device.
func NewTestClient(device *DeviceDefinition, variant OutputType, serial string, opts ...ClientOption) (*Client, *MemoryTransport, error) {
	bank := NewRegisterBank()
	if err := SeedDevice(bank, device, variant, serial); err != nil {
		return nil, nil, err
	}
	transport := NewMemoryTransport(bank)
	return NewClient(transport, device, variant, opts...), transport, nil
}
