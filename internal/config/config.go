// Package config implements the PMU-30 channel configuration codec: a
// count-prefixed array of channel.Channel records plus the validator that
// enforces ID uniqueness, referential integrity, acyclicity, per-variant
// range checks and hardware-binding sanity. Grounded on the teacher's
// internal/cnl handshake codec shape (length-prefixed records decoded in a
// loop, errors classified by sentinel), generalized from one handshake
// record to an arbitrary-length channel array.
package config

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rakyury/pmu30-host/internal/channel"
	"github.com/rakyury/pmu30-host/internal/metrics"
	"github.com/rakyury/pmu30-host/internal/protoerr"
)

// MaxLogicInputs bounds LOGIC.input_count (spec.md §4.3 range check 4).
const MaxLogicInputs = 8

// Config is an ordered list of channel records. ID order as decoded is
// preserved; encode(decode(b)) reproduces b byte-for-byte.
type Config struct {
	Channels []*channel.Channel
}

// Encode serializes a Config to its wire form: N:u16 followed by N
// back-to-back channel records. It does not validate; call Validate first
// if the result must be acceptable to a device.
func Encode(cfg *Config) ([]byte, error) {
	if len(cfg.Channels) > 0xFFFF {
		return nil, fmt.Errorf("config: %d channels exceeds u16 count", len(cfg.Channels))
	}
	var out []byte
	var countBuf [2]byte
	binary.LittleEndian.PutUint16(countBuf[:], uint16(len(cfg.Channels)))
	out = append(out, countBuf[:]...)
	for _, c := range cfg.Channels {
		rec, err := c.Marshal()
		if err != nil {
			return nil, fmt.Errorf("config: channel %d: %w", c.ID, err)
		}
		out = append(out, rec...)
	}
	return out, nil
}

// Decode parses a Config from data. It performs only structural parsing
// (TRUNCATED, BAD_TAG, NAME_TOO_LONG/NAME_NOT_UTF8, CONFIG_SIZE_MISMATCH);
// call Validate separately for the graph-level invariants.
func Decode(data []byte) (*Config, error) {
	if len(data) < 2 {
		metrics.IncConfigValidationError("truncated")
		return nil, fmt.Errorf("config: %w: missing channel count", protoerr.ErrTruncated)
	}
	count := int(binary.LittleEndian.Uint16(data[0:2]))
	off := 2
	cfg := &Config{Channels: make([]*channel.Channel, 0, count)}
	for i := 0; i < count; i++ {
		var c channel.Channel
		n, err := c.Unmarshal(data[off:])
		if err != nil {
			metrics.IncConfigValidationError(classifyParseErr(err))
			return nil, fmt.Errorf("config: channel %d: %w", i, err)
		}
		off += n
		cfg.Channels = append(cfg.Channels, &c)
	}
	if off != len(data) {
		metrics.IncConfigValidationError("size_mismatch")
		return nil, fmt.Errorf("config: %w: %d trailing bytes", protoerr.ErrSizeMismatch, len(data)-off)
	}
	return cfg, nil
}

func classifyParseErr(err error) string {
	switch {
	case errors.Is(err, protoerr.ErrTruncated):
		return "truncated"
	case errors.Is(err, protoerr.ErrBadName):
		return "bad_name"
	default:
		return "bad_tag"
	}
}
