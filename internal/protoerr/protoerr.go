// Package protoerr collects the sentinel errors shared across the PMU-30
// wire-format packages (channel, config, telemetry, transport, client) so
// callers can classify a failure with errors.Is instead of string
// matching. Pattern lifted from the teacher's internal/server errors.go,
// generalized from its small link/handshake sentinel set to the full
// protocol stack.
package protoerr

import "errors"

// Frame and link-layer errors. Package frame reports its own ErrBadCRC
// and ErrBadStartByte rather than these.
var (
	ErrFrameTooShort = errors.New("protoerr: frame shorter than minimum size")
	ErrBadCRC        = errors.New("protoerr: crc mismatch")
	ErrBadStartByte  = errors.New("protoerr: missing start byte")
)

// Config-parse errors (spec.md §8 parse-error kinds).
var (
	ErrTruncated    = errors.New("protoerr: config record truncated")
	ErrBadTag       = errors.New("protoerr: unknown or malformed channel tag")
	ErrBadName      = errors.New("protoerr: channel name too long or not valid UTF-8")
	ErrSizeMismatch = errors.New("protoerr: declared config size does not match payload")
	ErrDuplicateID  = errors.New("protoerr: duplicate channel id")
	ErrDanglingRef  = errors.New("protoerr: reference to unknown channel id")
	ErrCyclicRef    = errors.New("protoerr: reference graph contains a cycle")
	ErrRangeInvalid = errors.New("protoerr: field value outside allowed range")
	ErrHwBinding    = errors.New("protoerr: invalid hardware binding for channel kind")
)

// ErrProtocol is a generic device-protocol violation (malformed or
// rejected response) not covered by a more specific sentinel.
var ErrProtocol = errors.New("protoerr: device protocol violation")

// Transport errors.
var (
	ErrTransportTimeout    = errors.New("protoerr: reliable command exhausted its retry budget")
	ErrTransportReset      = errors.New("protoerr: peer requested a session reset")
	ErrChunkOutOfOrder     = errors.New("protoerr: config chunk received out of order")
	ErrTransportClosed     = errors.New("protoerr: transport closed")
)

// Telemetry errors.
var (
	ErrTelemetryTruncated = errors.New("protoerr: telemetry packet truncated")
	ErrTelemetryBadMagic  = errors.New("protoerr: telemetry packet bad magic")
)

// DeviceError wraps a device-reported ERROR frame (command 0xE1). Code is
// the device's numeric error code; Message is its optional human text.
type DeviceError struct {
	Code    uint16
	Message string
}

func (e *DeviceError) Error() string {
	if e.Message == "" {
		return "protoerr: device error 0x" + itohex(e.Code)
	}
	return "protoerr: device error 0x" + itohex(e.Code) + ": " + e.Message
}

func itohex(v uint16) string {
	const hexdigits = "0123456789ABCDEF"
	b := [4]byte{}
	for i := 3; i >= 0; i-- {
		b[i] = hexdigits[v&0xF]
		v >>= 4
	}
	return string(b[:])
}
