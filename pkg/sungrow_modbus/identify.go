package sungrow_modbus

import (
	"context"
	"errors"
)

// The identification block: protocol number and version, ARM and DSP software
// versions, serial number, device type code, nominal power and output type.
const (
	identStart uint16 = 4949
	identCount uint16 = 53

	identDeviceType = 4999 - identStart
	identOutputType = 5001 - identStart
)

type Identification struct {
	Serial          string
	Device          *DeviceDefinition
	Variant         OutputType
	ProtocolNumber  uint32
	ProtocolVersion uint32
	ArmVersion      string
	DspVersion      string
}

// Identify reads the identification block in a single request and resolves the device model.
// Values still unset while the device boots are tolerated: an empty serial or an unknown
// output type do not fail identification, an unknown device type code does.
func Identify(ctx context.Context, transport Transport) (*Identification, error) {
	regs, err := transport.ReadRegisters(ctx, InputRegister, identStart, identCount)
	if err != nil {
		var commErr *CommunicationError
		if errors.As(err, &commErr) && isAddressException(commErr.Err) {
			return nil, &NotASupportedDeviceError{Reason: "identification registers are not implemented", Err: err}
		}
		return nil, asCommunicationError("identify", identStart, err)
	}
	if len(regs) != int(identCount) {
		return nil, &CommunicationError{Op: "identify", Address: identStart, Err: errors.New("short identification block")}
	}

	code := regs[identDeviceType]
	device, ok := LookupDevice(code)
	if !ok {
		return nil, &NotASupportedDeviceError{DeviceType: code}
	}

	return &Identification{
		Serial:          decodeASCII(regs[4989-identStart : 4999-identStart]),
		Device:          device,
		Variant:         OutputTypeFromRaw(regs[identOutputType]),
		ProtocolNumber:  joinWords(regs[0:2]),
		ProtocolVersion: joinWords(regs[2:4]),
		ArmVersion:      decodeASCII(regs[4953-identStart : 4968-identStart]),
		DspVersion:      decodeASCII(regs[4968-identStart : 4983-identStart]),
	}, nil
}
