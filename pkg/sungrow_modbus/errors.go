package sungrow_modbus

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/simonvetter/modbus"
)

// CommunicationError is returned for any failure to complete a request on the wire:
// timeouts, refused or dropped connections, malformed frames and Modbus exception responses.
type CommunicationError struct {
	Op      string
	Address uint16
	Err     error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("sungrow: %s at address %d failed: %v", e.Op, e.Address, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request ran out of time, either on the wire or while queued.
func (e *CommunicationError) Timeout() bool {
	if errors.Is(e.Err, modbus.ErrRequestTimedOut) || errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// DeviceException reports whether the device answered with a Modbus exception.
// The connection is still healthy in that case.
func (e *CommunicationError) DeviceException() bool {
	return isDeviceException(e.Err)
}

type NotASupportedDeviceError struct {
	DeviceType uint16
	Reason     string
	Err        error
}

func (e *NotASupportedDeviceError) Error() string {
	if e.Reason != "" {
		return "sungrow: not a supported device: " + e.Reason
	}
	return fmt.Sprintf("sungrow: not a supported device: unknown device type 0x%04X", e.DeviceType)
}

func (e *NotASupportedDeviceError) Unwrap() error {
	return e.Err
}

type ValidationError struct {
	Variable string
	Value    any
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sungrow: invalid value %v for %s: %s", e.Value, e.Variable, e.Reason)
}

// DecodeWarning marks a single variable whose raw registers could not be turned into a value.
// It never aborts a refresh.
type DecodeWarning struct {
	Variable string
	Raw      []uint16
	Reason   string
}

func (e *DecodeWarning) Error() string {
	return fmt.Sprintf("sungrow: cannot decode %s from %v: %s", e.Variable, e.Raw, e.Reason)
}

type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return "sungrow: unknown variable " + e.Name
}

var deviceExceptions = []error{
	modbus.ErrIllegalFunction,
	modbus.ErrIllegalDataAddress,
	modbus.ErrIllegalDataValue,
	modbus.ErrServerDeviceFailure,
	modbus.ErrAcknowledge,
	modbus.ErrServerDeviceBusy,
	modbus.ErrMemoryParityError,
	modbus.ErrGWPathUnavailable,
	modbus.ErrGWTargetFailedToRespond,
}

func isDeviceException(err error) bool {
	for _, e := range deviceExceptions {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// isAddressException is the answer of a device that does not implement the requested registers.
func isAddressException(err error) bool {
	return errors.Is(err, modbus.ErrIllegalDataAddress) || errors.Is(err, modbus.ErrIllegalFunction)
}
