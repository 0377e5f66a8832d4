// Package serialport opens the serial lines the relay talks to and provides a
// scriptable in-memory port for tests.
package serialport

import (
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// ErrSerialOpen is returned when a serial device cannot be opened.
var ErrSerialOpen = errors.New("could not open serial device")

// Port is the minimal serial handle used by the relay. Read must not block:
// it returns 0, nil when no bytes are available.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens a serial device at path.
type Opener func(path string, opts PortOptions) (Port, error)

// Open opens a real serial port with a zero read timeout.
func Open(path string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrSerialOpen, path, err)
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrSerialOpen, path, err)
	}

	// Нулевой таймаут делает Read неблокирующим.
	if err := port.SetReadTimeout(0); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w %s: set read timeout: %v", ErrSerialOpen, path, err)
	}
	return port, nil
}

// OpenAll opens every path in order. On failure the ports opened so far are
// closed.
func OpenAll(open Opener, paths []string, opts PortOptions) ([]Port, error) {
	ports := make([]Port, 0, len(paths))
	for _, path := range paths {
		p, err := open(path, opts)
		if err != nil {
			for _, opened := range ports {
				opened.Close()
			}
			return nil, err
		}
		ports = append(ports, p)
	}
	return ports, nil
}
