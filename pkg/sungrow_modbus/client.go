package sungrow_modbus

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultMaxGap uint16 = 10

// DefaultRefreshTimeout bounds a refresh whose first caller set no deadline.
const DefaultRefreshTimeout = 30 * time.Second

type ClientOption func(*Client)

// WithMaxGap sets how many unused registers may separate two variables that share a read.
func WithMaxGap(gap uint16) ClientOption {
	return func(c *Client) {
		c.maxGap = gap
	}
}

func WithRefreshTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.refreshTimeout = timeout
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client reads and writes the named variables of one identified device and keeps
// the last decoded values in a snapshot.
type Client struct {
	transport Transport
	device    *DeviceDefinition
	variant   OutputType
	registry  *Registry
	maxGap    uint16
	logger    *zap.Logger

	refreshTimeout time.Duration

	// serialises snapshot replacement, never held during I/O
	mu       sync.Mutex
	snapshot atomic.Pointer[Snapshot]
	group    singleflight.Group
	lastOK   atomic.Bool
}

func NewClient(transport Transport, device *DeviceDefinition, variant OutputType, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		device:    device,
		variant:   variant,
		registry:  device.Registry(variant),
		maxGap:    DefaultMaxGap,
		logger:    zap.NewNop(),

		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("device", device.Name))
	c.snapshot.Store(emptySnapshot())
	return c
}

func (c *Client) Device() *DeviceDefinition {
	return c.device
}

func (c *Client) Variant() OutputType {
	return c.variant
}

func (c *Client) Keys() []string {
	return c.registry.Names()
}

func (c *Client) Variable(name string) (*VariableDefinition, bool) {
	return c.registry.Lookup(name)
}

// Get returns the cached value. It never touches the transport.
func (c *Client) Get(name string) (any, bool) {
	return c.snapshot.Load().Get(name)
}

func (c *Client) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// LastRefreshSucceeded reports the outcome of the most recent completed refresh.
func (c *Client) LastRefreshSucceeded() bool {
	return c.lastOK.Load()
}

// Set validates and encodes value, then writes it. The cache is not updated; the
// written value shows up with the next refresh.
func (c *Client) Set(ctx context.Context, name string, value any) error {
	def, ok := c.registry.Lookup(name)
	if !ok {
		return &UnknownVariableError{Name: name}
	}
	if def.Register != HoldingRegister {
		return def.invalid(value, "variable is read-only")
	}
	regs, err := def.Encode(value)
	if err != nil {
		return err
	}
	c.logger.Debug("writing variable", zap.String("variable", name), zap.Any("value", value),
		zap.Uint16s("registers", regs))
	if err = c.transport.WriteRegisters(ctx, def.Address, regs); err != nil {
		return asCommunicationError("write", def.Address, err)
	}
	return nil
}

// Refresh reads the named variables, or all of them when names is empty, and publishes a new
// snapshot. Concurrent refreshes of the same variables share one read sequence and result.
// A transport failure aborts the refresh and leaves the snapshot unchanged.
//
// The shared read sequence keeps the deadline of the caller that started it but not its
// cancellation: a caller whose ctx ends stops waiting, the others still get the result.
func (c *Client) Refresh(ctx context.Context, names ...string) (*Snapshot, error) {
	defs, key, err := c.resolve(names)
	if err != nil {
		return nil, err
	}
	ch := c.group.DoChan(key, func() (any, error) {
		rctx, cancel := c.sharedContext(ctx)
		defer cancel()
		return c.refresh(rctx, defs)
	})
	select {
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("joined in-flight refresh", zap.String("key", key))
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, asCommunicationError("refresh", 0, ctx.Err())
	}
}

func (c *Client) sharedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return context.WithTimeout(detached, c.refreshTimeout)
}

func (c *Client) resolve(names []string) ([]*VariableDefinition, string, error) {
	if len(names) == 0 {
		return c.registry.Definitions(), "*", nil
	}
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	defs := make([]*VariableDefinition, 0, len(sorted))
	for _, name := range sorted {
		def, ok := c.registry.Lookup(name)
		if !ok {
			return nil, "", &UnknownVariableError{Name: name}
		}
		defs = append(defs, def)
	}
	return defs, strings.Join(sorted, ","), nil
}

func (c *Client) refresh(ctx context.Context, defs []*VariableDefinition) (*Snapshot, error) {
	plan := PlanReads(defs, c.maxGap, MaxReadCount)
	results := make([][]uint16, len(plan))
	for i, r := range plan {
		regs, err := c.transport.ReadRegisters(ctx, r.Register, r.Start, r.Count)
		if err != nil {
			c.lastOK.Store(false)
			return nil, asCommunicationError("read", r.Start, err)
		}
		results[i] = regs
	}

	updates := make(map[string]any, len(defs))
	var warnings []*DecodeWarning
	all := c.registry.Definitions()
	for i, r := range plan {
		// anything fully inside a read range is decoded, requested or not
		for _, def := range all {
			if !r.Covers(def) {
				continue
			}
			raw := r.slice(results[i], def)
			value, err := def.Decode(raw)
			if err != nil {
				w := asDecodeWarning(def, raw, err)
				c.logger.Warn("cannot decode variable", zap.String("variable", def.Name),
					zap.Uint16s("raw", w.Raw), zap.String("reason", w.Reason))
				warnings = append(warnings, w)
				continue
			}
			updates[def.Name] = value
		}
	}

	c.mu.Lock()
	next := c.snapshot.Load().merge(updates, time.Now(), warnings)
	c.snapshot.Store(next)
	c.mu.Unlock()
	c.lastOK.Store(true)

	c.logger.Debug("refreshed", zap.Int("reads", len(plan)), zap.Int("values", len(updates)),
		zap.Int("warnings", len(warnings)))
	return next, nil
}

func asCommunicationError(op string, address uint16, err error) error {
	var commErr *CommunicationError
	if errors.As(err, &commErr) {
		return err
	}
	return &CommunicationError{Op: op, Address: address, Err: err}
}

func asDecodeWarning(def *VariableDefinition, raw []uint16, err error) *DecodeWarning {
	var w *DecodeWarning
	if errors.As(err, &w) {
		return w
	}
	return def.warn(raw, err.Error())
}
