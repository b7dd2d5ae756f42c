// Package valkey mirrors the inverter snapshot into a Valkey/Redis server.
package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/berfenger/sungrow2mqtt/internal/config"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key layout under <prefix>:<serial>:
//
//	values      hash of variable name to formatted value
//	updated_at  RFC 3339 time of the last snapshot
//	available   1 or 0
//	events      pub/sub channel of AvailabilityMessage
type Store struct {
	client *redis.Client
	prefix string
	serial string
	logger *zap.Logger
}

type AvailabilityMessage struct {
	Serial    string    `json:"serial"`
	Available bool      `json:"available"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStore connects and pings the server.
func NewStore(ctx context.Context, cfg config.ValkeyConfig, serial string, logger *zap.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.Address, err)
	}
	logger.Info("connected to valkey", zap.String("address", cfg.Address), zap.Int("db", cfg.DB))

	return &Store{
		client: client,
		prefix: cfg.KeyPrefix,
		serial: serial,
		logger: logger,
	}, nil
}

func (s *Store) Key(name string) string {
	return joinKey(s.prefix, s.serial, name)
}

func (s *Store) WriteSnapshot(ctx context.Context, registry VariableLookup, snap *sungrow_modbus.Snapshot) error {
	values := ValuesPayload(registry, snap)
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]any, len(values))
	for k, v := range values {
		fields[k] = v
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.Key("values"), fields)
		pipe.Set(ctx, s.Key("updated_at"), snap.UpdatedAt.UTC().Format(time.RFC3339), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("valkey: write snapshot: %w", err)
	}
	return nil
}

func (s *Store) WriteAvailability(ctx context.Context, available bool, at time.Time) error {
	flag := "0"
	if available {
		flag = "1"
	}
	if err := s.client.Set(ctx, s.Key("available"), flag, 0).Err(); err != nil {
		return fmt.Errorf("valkey: write availability: %w", err)
	}
	data, err := json.Marshal(AvailabilityMessage{Serial: s.serial, Available: available, Timestamp: at.UTC()})
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.Key("events"), data).Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

// VariableLookup resolves variable definitions for formatting.
type VariableLookup interface {
	Variable(name string) (*sungrow_modbus.VariableDefinition, bool)
}

// ValuesPayload formats every value of the snapshot, keyed by variable name.
func ValuesPayload(registry VariableLookup, snap *sungrow_modbus.Snapshot) map[string]string {
	values := snap.Values()
	out := make(map[string]string, len(values))
	for name, value := range values {
		def, ok := registry.Variable(name)
		if !ok {
			continue
		}
		out[name] = def.Format(value)
	}
	return out
}

// joinKey joins key segments with colons, dropping empty segments.
func joinKey(segments ...string) string {
	var parts []string
	for _, s := range segments {
		s = strings.Trim(s, ":")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ":")
}
