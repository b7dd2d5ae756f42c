package sungrow_modbus

import (
	"maps"
	"time"
)

// Snapshot is an immutable view of the last decoded value of every variable.
// A refresh replaces the whole snapshot; readers never see a partial update.
type Snapshot struct {
	values    map[string]any
	UpdatedAt time.Time
	// Warnings of the refresh that produced this snapshot.
	Warnings []*DecodeWarning
}

func emptySnapshot() *Snapshot {
	return &Snapshot{values: map[string]any{}}
}

func (s *Snapshot) Get(name string) (any, bool) {
	v, ok := s.values[name]
	return v, ok
}

func (s *Snapshot) Values() map[string]any {
	return maps.Clone(s.values)
}

func (s *Snapshot) Len() int {
	return len(s.values)
}

func (s *Snapshot) merge(updates map[string]any, at time.Time, warnings []*DecodeWarning) *Snapshot {
	values := make(map[string]any, len(s.values)+len(updates))
	maps.Copy(values, s.values)
	maps.Copy(values, updates)
	return &Snapshot{values: values, UpdatedAt: at, Warnings: warnings}
}
