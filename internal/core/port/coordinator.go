package port

import (
	"context"

	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"
)

// VariableClient is the named variable access of one identified device.
type VariableClient interface {
	Keys() []string
	Variable(name string) (*sungrow_modbus.VariableDefinition, bool)
	Get(name string) (any, bool)
	Snapshot() *sungrow_modbus.Snapshot
	Set(ctx context.Context, name string, value any) error
	Refresh(ctx context.Context, names ...string) (*sungrow_modbus.Snapshot, error)
}

var _ VariableClient = (*sungrow_modbus.Client)(nil)

// Coordinator polls a VariableClient on a fixed period and reports availability.
// Subscribers receive domain.SnapshotUpdatedEvent, domain.RefreshFailedEvent and
// domain.AvailabilityChangedEvent.
type Coordinator interface {
	Client() VariableClient
	Subscribe(fn func(event any)) (unsubscribe func())
	RequestImmediateRefresh(ctx context.Context) (*sungrow_modbus.Snapshot, error)
	// TriggerRefresh requests a refresh without waiting for it.
	TriggerRefresh()
	IsAvailable() bool
	Status() domain.CoordinatorStatus
}
