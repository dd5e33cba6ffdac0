package channel

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/rakyury/pmu30-host/internal/protoerr"
)

// MaxNameLen bounds the channel name field (spec.md §4.3 config header).
const MaxNameLen = 31

// headerSize is the fixed-width record header preceding name+payload:
// channel_id(2) type(1) flags(1) hw_device(1) hw_index(1) source_id(2)
// default_value(4) name_len(1) payload_len(1) = 14 bytes.
const headerSize = 14

// Channel is one fully decoded config record: the fixed header plus its
// variable-length name and its kind-specific payload.
type Channel struct {
	ID         uint16
	Kind       Type
	Flags      Flags
	HwDevice   HwDevice
	HwIndex    uint8
	SourceID   uint16
	Default    int32
	Name       string
	Payload    Payload
}

// Marshal serializes one channel record: header, name bytes, payload bytes.
func (c *Channel) Marshal() ([]byte, error) {
	if len(c.Name) > MaxNameLen {
		return nil, fmt.Errorf("channel: name %q exceeds %d bytes", c.Name, MaxNameLen)
	}
	if !utf8.ValidString(c.Name) {
		return nil, fmt.Errorf("channel: name is not valid UTF-8")
	}
	var payloadBytes []byte
	if c.Payload != nil {
		payloadBytes = c.Payload.Marshal()
	}
	if want, ok := PayloadSize(c.Kind); ok && len(payloadBytes) != want {
		return nil, fmt.Errorf("channel: kind %s payload is %d bytes, want %d", c.Kind, len(payloadBytes), want)
	}

	buf := make([]byte, headerSize+len(c.Name)+len(payloadBytes))
	binary.LittleEndian.PutUint16(buf[0:2], c.ID)
	buf[2] = byte(c.Kind)
	buf[3] = byte(c.Flags)
	buf[4] = byte(c.HwDevice)
	buf[5] = c.HwIndex
	binary.LittleEndian.PutUint16(buf[6:8], c.SourceID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(c.Default))
	buf[12] = uint8(len(c.Name))
	buf[13] = uint8(len(payloadBytes))
	off := headerSize
	off += copy(buf[off:], c.Name)
	copy(buf[off:], payloadBytes)
	return buf, nil
}

// Unmarshal decodes one channel record from the front of data, returning
// the number of bytes consumed. Errors are wrapped so callers can classify
// them against the parse-error kinds in spec.md §8.
func (c *Channel) Unmarshal(data []byte) (consumed int, err error) {
	if len(data) < headerSize {
		return 0, fmt.Errorf("%w: need %d header bytes, have %d", protoerr.ErrTruncated, headerSize, len(data))
	}
	id := binary.LittleEndian.Uint16(data[0:2])
	kind := Type(data[2])
	flags := Flags(data[3])
	hw := HwDevice(data[4])
	hwIndex := data[5]
	source := binary.LittleEndian.Uint16(data[6:8])
	def := int32(binary.LittleEndian.Uint32(data[8:12]))
	nameLen := int(data[12])
	payloadLen := int(data[13])
	if nameLen > MaxNameLen {
		return 0, fmt.Errorf("%w: channel %d name is %d bytes, max %d", protoerr.ErrBadName, id, nameLen, MaxNameLen)
	}

	total := headerSize + nameLen + payloadLen
	if len(data) < total {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", protoerr.ErrTruncated, total, len(data))
	}
	nameBytes := data[headerSize : headerSize+nameLen]
	if !utf8.Valid(nameBytes) {
		return 0, fmt.Errorf("%w: channel %d name is not valid UTF-8", protoerr.ErrBadName, id)
	}

	if want, ok := PayloadSize(kind); ok {
		if payloadLen != want {
			return 0, fmt.Errorf("%w: kind 0x%02X declares %d payload bytes, want %d", protoerr.ErrBadTag, byte(kind), payloadLen, want)
		}
	} else {
		return 0, fmt.Errorf("%w: unknown channel kind 0x%02X", protoerr.ErrBadTag, byte(kind))
	}

	payload, err := NewPayload(kind)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", protoerr.ErrBadTag, err)
	}
	payloadBytes := data[headerSize+nameLen : total]
	if err := payload.Unmarshal(payloadBytes); err != nil {
		return 0, fmt.Errorf("%w: %v", protoerr.ErrBadTag, err)
	}

	c.ID = id
	c.Kind = kind
	c.Flags = flags
	c.HwDevice = hw
	c.HwIndex = hwIndex
	c.SourceID = source
	c.Default = def
	c.Name = string(nameBytes)
	c.Payload = payload
	return total, nil
}

// References collects every non-sentinel channel ID this record points
// to: its source binding plus any variant-payload references.
func (c *Channel) References() []uint16 {
	var refs []uint16
	if c.SourceID != RefNone {
		refs = append(refs, c.SourceID)
	}
	if c.Payload != nil {
		refs = append(refs, c.Payload.References()...)
	}
	return refs
}
