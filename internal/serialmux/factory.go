package serialmux

import (
	"go.bug.st/serial"
)

// RealPortFactory opens hardware serial ports through go.bug.st/serial.
type RealPortFactory struct{}

// Open opens the port at path with the given options.
func (RealPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}
