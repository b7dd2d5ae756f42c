package sungrow_modbus

import (
	"context"
	"errors"
	"testing"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIdentifySH10RT(t *testing.T) {
	assert := assert.New(t)
	device, _ := LookupDevice(0x0705)
	bank := NewRegisterBank()
	require.NoError(t, SeedDevice(bank, device, OutputThreePhase4L, "A2290412345"))
	transport := NewMemoryTransport(bank)

	ident, err := Identify(context.Background(), transport)
	require.NoError(t, err)
	assert.Equal("SH10RT", ident.Device.Name)
	assert.Equal("A2290412345", ident.Serial)
	assert.Equal(OutputThreePhase4L, ident.Variant)
	assert.Equal("ARM_WINALITH_V11_V01_B", ident.ArmVersion)
	assert.Equal(uint32(0x00010502), ident.ProtocolNumber)

	assert.Equal([]ReadCall{{Register: InputRegister, Address: 4949, Count: 53}}, transport.Reads())
}

func TestIdentifyUnknownDeviceType(t *testing.T) {
	assert := assert.New(t)
	bank := NewRegisterBank()
	bank.Set(InputRegister, 4999, 0xFFFF)

	_, err := Identify(context.Background(), NewMemoryTransport(bank))
	var notSupported *NotASupportedDeviceError
	assert.ErrorAs(err, &notSupported)
	assert.Equal(uint16(0xFFFF), notSupported.DeviceType)
}

func TestIdentifyWhileBooting(t *testing.T) {
	assert := assert.New(t)
	bank := NewRegisterBank()
	bank.Set(InputRegister, 4949, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF)
	bank.Set(InputRegister, 4989, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF)
	bank.Set(InputRegister, 4999, 0x0705, 0xFFFF, 0xFFFF)

	ident, err := Identify(context.Background(), NewMemoryTransport(bank))
	require.NoError(t, err)
	assert.Equal("SH10RT", ident.Device.Name)
	assert.Equal("", ident.Serial)
	assert.Equal(OutputUnknown, ident.Variant)

	client := NewClient(NewMemoryTransport(bank), ident.Device, ident.Variant)
	assert.Contains(client.Keys(), "phase_a_voltage")
}

func TestIdentifyNotASungrowDevice(t *testing.T) {
	assert := assert.New(t)
	transport := NewMemoryTransport(nil)
	transport.ReadHook = func(ctx context.Context, call ReadCall) error {
		return modbus.ErrIllegalDataAddress
	}

	_, err := Identify(context.Background(), transport)
	var notSupported *NotASupportedDeviceError
	assert.ErrorAs(err, &notSupported)
	assert.ErrorIs(err, modbus.ErrIllegalDataAddress)
}

func TestIdentifyUnreachable(t *testing.T) {
	assert := assert.New(t)
	transport := NewMemoryTransport(nil)
	transport.ReadHook = func(ctx context.Context, call ReadCall) error {
		return modbus.ErrRequestTimedOut
	}

	_, err := Identify(context.Background(), transport)
	var commErr *CommunicationError
	assert.ErrorAs(err, &commErr)
	var notSupported *NotASupportedDeviceError
	assert.False(errors.As(err, &notSupported))
}

func TestOpenSession(t *testing.T) {
	assert := assert.New(t)
	device, _ := DeviceByName("sh10rt")
	bank := NewRegisterBank()
	require.NoError(t, SeedDevice(bank, device, OutputThreePhase3L, "B1234"))
	transport := NewMemoryTransport(bank)
	logger, _ := zap.NewDevelopment()

	session, err := OpenSession(context.Background(), transport, logger, WithMaxGap(4))
	require.NoError(t, err)
	assert.Equal("B1234", session.Serial)
	assert.Equal(OutputThreePhase3L, session.Client.Variant())
	assert.Contains(session.Client.Keys(), "line_ab_voltage")
	assert.NotContains(session.Client.Keys(), "phase_a_voltage")

	assert.NoError(session.Close())
	assert.True(transport.Closed())
}
