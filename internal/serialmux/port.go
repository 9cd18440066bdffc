package serialmux

import "io"

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// PortFactory opens the serial port at path. It is injected into the device
// link so the port can be reopened after the reader disappears and returns,
// and so tests can substitute scripted ports.
type PortFactory interface {
	Open(path string, opts PortOptions) (SerialPorter, error)
}

// PortOpenerFunc adapts a function to PortFactory.
type PortOpenerFunc func(path string, opts PortOptions) (SerialPorter, error)

// Open calls f.
func (f PortOpenerFunc) Open(path string, opts PortOptions) (SerialPorter, error) {
	return f(path, opts)
}
