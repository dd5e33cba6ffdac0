// Package link provides the two concrete PMU-30 link-layer transports
// named in spec.md §6.2: a serial port (8-N-1, configurable baud) and a
// TCP socket to the emulator. Grounded on the teacher's
// internal/serial.Port interface/Open pair, generalized so the same Link
// interface also covers a net.Conn to localhost:9876.
package link

import (
	"fmt"
	"net"
	"time"

	"github.com/tarm/serial"
)

// Link abstracts the byte-stream transports T-MIN can run over.
type Link interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// DefaultBaud is the spec's default serial baud rate.
const DefaultBaud = 115200

// OpenSerial opens an 8-N-1 serial link at baud (0 selects DefaultBaud).
func OpenSerial(name string, baud int, readTimeout time.Duration) (Link, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	p, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("link: open serial %s: %w", name, err)
	}
	return p, nil
}

// DefaultEmulatorAddr is the TCP address the emulator listens on.
const DefaultEmulatorAddr = "localhost:9876"

// OpenTCP dials the emulator (or any peer speaking the identical frame
// protocol) over TCP.
func OpenTCP(addr string) (Link, error) {
	if addr == "" {
		addr = DefaultEmulatorAddr
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("link: dial %s: %w", addr, err)
	}
	return conn, nil
}
