package sungrow_modbus

import (
	"context"

	"go.uber.org/zap"
)

// Session binds an identified device to its transport and client. It lives from
// successful identification until Close.
type Session struct {
	Identification
	Transport Transport
	Client    *Client
}

func OpenSession(ctx context.Context, transport Transport, logger *zap.Logger, opts ...ClientOption) (*Session, error) {
	if err := transport.Connect(ctx); err != nil {
		return nil, err
	}
	ident, err := Identify(ctx, transport)
	if err != nil {
		return nil, err
	}
	logger.Info("identified inverter",
		zap.String("model", ident.Device.Name),
		zap.String("serial", ident.Serial),
		zap.Stringer("output_type", ident.Variant),
		zap.String("arm_version", ident.ArmVersion),
		zap.String("dsp_version", ident.DspVersion))

	opts = append([]ClientOption{WithLogger(logger)}, opts...)
	return &Session{
		Identification: *ident,
		Transport:      transport,
		Client:         NewClient(transport, ident.Device, ident.Variant, opts...),
	}, nil
}

func (s *Session) Close() error {
	return s.Transport.Close()
}
