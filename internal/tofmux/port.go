package tofmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenSerial opens the sensor UART and wraps it in a Mux.
func OpenSerial(path string, baudRate int) (*Mux, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open sensor port %s: %w", path, err)
	}
	return NewMux(port), nil
}
