package serialport

import (
	"bytes"
	"errors"
	"sync"
)

// TestablePort implements Port in memory. Reads never block and return 0, nil
// when the read buffer is empty, like a real port with a zero read timeout.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls.
	ReadBuffer *bytes.Buffer

	// Writes records every Write call in order.
	Writes []string

	// Respond, if set, is called for each write and its result is queued for
	// reading. It plays the firmware side of the conversation.
	Respond func(written string) string

	// ReadError and WriteError are returned once by the next call if set.
	ReadError  error
	WriteError error

	Closed    bool
	ReadCalls int
}

// NewTestablePort creates an empty TestablePort.
func NewTestablePort() *TestablePort {
	return &TestablePort{ReadBuffer: bytes.NewBuffer(nil)}
}

func (t *TestablePort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++
	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	if t.ReadBuffer.Len() == 0 {
		return 0, nil
	}
	return t.ReadBuffer.Read(p)
}

func (t *TestablePort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	t.Writes = append(t.Writes, string(p))
	if t.Respond != nil {
		t.ReadBuffer.WriteString(t.Respond(string(p)))
	}
	return len(p), nil
}

// Close marks the port as closed.
func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	return nil
}

// AddReadData queues data for subsequent Read calls.
func (t *TestablePort) AddReadData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.WriteString(data)
}

// Written returns a copy of all writes so far.
func (t *TestablePort) Written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.Writes...)
}

// ResetWrites forgets the recorded writes.
func (t *TestablePort) ResetWrites() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Writes = nil
}
