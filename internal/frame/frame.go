// Package frame implements the PMU-30 wire framing: a fixed start byte,
// a length-prefixed payload, and a CRC-16-CCITT trailer. The decoder is a
// streaming, byte-at-a-time tolerant state machine modeled on the
// teacher's serial.Codec.DecodeStream: callers feed it an accumulating
// bytes.Buffer and it owns re-entrancy, resync, and buffer compaction.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/rakyury/pmu30-host/internal/crc"
	"github.com/rakyury/pmu30-host/internal/metrics"
)

// StartByte is the fixed preamble of every frame.
const StartByte = 0xAA

// minFrameSize is the smallest possible frame: start byte + len(2) + type(1) + crc(2).
const minFrameSize = 6

// ErrBadCRC is returned when a frame's trailing CRC does not match its
// computed checksum. The decoder has advanced one byte, past the rejected
// start byte, so the next call rescans for a start byte from there; this
// is a recoverable protocol event, not a fatal error.
var ErrBadCRC = errors.New("frame: bad crc")

// ErrBadStartByte is returned when garbage bytes were skipped before a
// valid start byte was found. Consumed will be > 0 in this case.
var ErrBadStartByte = errors.New("frame: garbage skipped before start byte")

// Frame is a single decoded protocol frame.
type Frame struct {
	Type    byte
	Payload []byte
}

// Encode builds the wire representation of a frame. It never fails: any
// payload length up to 65535 bytes is representable.
func Encode(frameType byte, payload []byte) []byte {
	out := make([]byte, 0, minFrameSize+len(payload))
	out = append(out, StartByte)
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	out = append(out, lenBuf[:]...)
	out = append(out, frameType)
	out = append(out, payload...)
	sum := crc.CRC16CCITT(out[1:])
	var crcBuf [2]byte
	binary.LittleEndian.PutUint16(crcBuf[:], sum)
	return append(out, crcBuf[:]...)
}

// Decode attempts to pull one frame out of buf.
//
// Contract (mirrors spec.md §4.2):
//   - frame != nil, consumed > 0: one frame decoded and removed from buf.
//   - frame == nil, consumed > 0, err == ErrBadStartByte: garbage was
//     skipped before a start byte was found; call again.
//   - frame == nil, consumed == 1, err == ErrBadCRC: the start byte of a
//     frame with a bad CRC was skipped; call again to resync.
//   - frame == nil, consumed == 0, err == nil: need more bytes.
func Decode(buf *bytes.Buffer) (fr *Frame, consumed int, err error) {
	compactBuffer(buf)
	data := buf.Bytes()
	if len(data) == 0 {
		return nil, 0, nil
	}
	if data[0] != StartByte {
		i := bytes.IndexByte(data, StartByte)
		if i < 0 {
			n := len(data)
			buf.Next(n)
			return nil, n, ErrBadStartByte
		}
		buf.Next(i)
		return nil, i, ErrBadStartByte
	}
	if len(data) < 4 { // start + len(2) + type(1)
		return nil, 0, nil
	}
	payloadLen := int(binary.LittleEndian.Uint16(data[1:3]))
	total := minFrameSize + payloadLen
	if len(data) < total {
		return nil, 0, nil
	}
	computed := crc.CRC16CCITT(data[1 : total-2])
	onWire := binary.LittleEndian.Uint16(data[total-2 : total])
	if computed != onWire {
		metrics.IncFrameCRCError()
		buf.Next(1)
		return nil, 1, ErrBadCRC
	}
	f := &Frame{
		Type:    data[3],
		Payload: append([]byte(nil), data[4:total-2]...),
	}
	buf.Next(total)
	metrics.IncFrameDecoded()
	return f, total, nil
}

// compactBuffer reclaims consumed prefix capacity once the unread region
// shrinks relative to the underlying array, mirroring the teacher's
// serial.CompactBuffer thresholds so decoding a long-lived stream never
// grows the buffer unbounded on misaligned garbage.
func compactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	if len(data) < 1024 {
		return false
	}
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}
