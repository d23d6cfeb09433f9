package mount

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the part of a serial port the channel needs. It is satisfied by
// go.bug.st/serial ports and by in-memory fakes in tests.
type Port interface {
	io.ReadWriteCloser

	// Drain waits until all written data has been sent.
	Drain() error

	// SetReadTimeout bounds the next Read calls. A Read that times out
	// returns 0 bytes and no error.
	SetReadTimeout(t time.Duration) error
}

// OpenFunc opens the device at the given baud rate.
type OpenFunc func(device string, baud int) (Port, error)

// OpenSerial opens a real serial port, 8N1.
func OpenSerial(device string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(device, mode)
}
