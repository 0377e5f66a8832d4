package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPacket      = errors.New("malformed packet")
	ErrCRCMismatch          = errors.New("crc mismatch")
	ErrUnknownHardwareIndex = errors.New("unknown hardware index")
)

// MalformedError carries the offending input of a packet or message that
// could not be decoded.
type MalformedError struct {
	Reason string
	Input  string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: %s (%q)", ErrMalformedPacket, e.Reason, e.Input)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformedPacket
}

func malformed(input, format string, args ...interface{}) error {
	return &MalformedError{Reason: fmt.Sprintf(format, args...), Input: input}
}
