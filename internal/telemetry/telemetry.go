// Package telemetry implements the PMU-30 telemetry codec: a fixed
// 20-byte header followed by a variable set of bit-ascending optional
// sections selected by a flags word. Grounded on the teacher's
// internal/serial.Codec streaming-decode shape, generalized from one
// frame kind to a header-plus-sections layout, and on
// internal/cnl.codec's use of small fixed-offset structs per record.
package telemetry

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/periph/conn/physic"

	"github.com/rakyury/pmu30-host/internal/protoerr"
)

// HeaderSize is the fixed, always-present portion of a telemetry packet.
const HeaderSize = 20

// SectionFlags selects which optional sections follow the header. Bits
// are read in ascending order, matching their appearance on the wire.
type SectionFlags uint16

const (
	SectionADC       SectionFlags = 0x0001
	SectionOutputs   SectionFlags = 0x0002
	SectionHBridge   SectionFlags = 0x0004
	SectionDin       SectionFlags = 0x0008
	SectionVirtuals  SectionFlags = 0x0010
	SectionFaults    SectionFlags = 0x0020
	SectionCurrents  SectionFlags = 0x0040
	SectionExtended  SectionFlags = 0x0080
)

var sectionOrder = []SectionFlags{
	SectionADC, SectionOutputs, SectionHBridge, SectionDin,
	SectionVirtuals, SectionFaults, SectionCurrents, SectionExtended,
}

var sectionNames = map[SectionFlags]string{
	SectionADC:      "ADC",
	SectionOutputs:  "OUTPUTS",
	SectionHBridge:  "HBRIDGE",
	SectionDin:      "DIN",
	SectionVirtuals: "VIRTUALS",
	SectionFaults:   "FAULTS",
	SectionCurrents: "CURRENTS",
	SectionExtended: "EXTENDED",
}

// String renders the set of flags as a "|"-joined list of section names,
// in bit-ascending order, e.g. "ADC|DIN|FAULTS".
func (f SectionFlags) String() string {
	var out string
	for _, bit := range sectionOrder {
		if f&bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += sectionNames[bit]
	}
	if out == "" {
		return "NONE"
	}
	return out
}

const (
	adcChannels      = 20
	outputChannels   = 30
	hbridgeChannels  = 4
	maxVirtuals      = 32
	currentChannels  = 30
)

func sectionSize(f SectionFlags, virtualCount int) int {
	switch f {
	case SectionADC:
		return adcChannels * 2
	case SectionOutputs:
		return outputChannels
	case SectionHBridge:
		return hbridgeChannels*2 + hbridgeChannels*2
	case SectionDin:
		return 4
	case SectionVirtuals:
		return 2 + virtualCount*(2+4)
	case SectionFaults:
		return 4
	case SectionCurrents:
		return currentChannels * 2
	case SectionExtended:
		return 0
	default:
		return 0
	}
}

// VirtualEntry is one (channel id, value) pair in the VIRTUALS section.
type VirtualEntry struct {
	ID    uint16
	Value int32
}

// Packet is a fully decoded telemetry datagram.
type Packet struct {
	StreamCounter uint32
	TimestampMS   uint32
	InputVoltage  uint16 // mV
	MCUTemp       int16  // deci-°C
	BoardTemp     int16  // deci-°C
	TotalCurrent  uint32 // mA
	Flags         SectionFlags

	ADC       [adcChannels]uint16
	Outputs   [outputChannels]uint8
	HBridge   [hbridgeChannels]hbridgeReading
	DinMask   uint32
	Virtuals  []VirtualEntry
	FaultStatus uint8
	FaultFlags  uint8
	Currents    [currentChannels]uint16
}

type hbridgeReading struct {
	CurrentMA int16
	DutyPct   uint16
}

// HasSection reports whether bit is set in the packet's section flags.
func (p *Packet) HasSection(bit SectionFlags) bool { return p.Flags&bit != 0 }

// VirtualValue returns the value of virtual channel id, or (0, false) if
// the VIRTUALS section is absent or does not contain id.
func (p *Packet) VirtualValue(id uint16) (int32, bool) {
	if !p.HasSection(SectionVirtuals) {
		return 0, false
	}
	for _, v := range p.Virtuals {
		if v.ID == id {
			return v.Value, true
		}
	}
	return 0, false
}

// Din reports digital input i (0-31) from the DIN bitmask section.
func (p *Packet) Din(i int) bool {
	if !p.HasSection(SectionDin) || i < 0 || i > 31 {
		return false
	}
	return p.DinMask&(1<<uint(i)) != 0
}

// InputVoltageTyped returns InputVoltage as a typed electric potential.
func (p *Packet) InputVoltageTyped() physic.ElectricPotential {
	return physic.ElectricPotential(p.InputVoltage) * physic.MilliVolt
}

// TotalCurrentTyped returns TotalCurrent as a typed electric current.
func (p *Packet) TotalCurrentTyped() physic.ElectricCurrent {
	return physic.ElectricCurrent(p.TotalCurrent) * physic.MilliAmpere
}

// MCUTempTyped returns MCUTemp (deci-°C) as a typed temperature.
func (p *Packet) MCUTempTyped() physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(p.MCUTemp)*100*physic.MilliKelvin
}

// BoardTempTyped returns BoardTemp (deci-°C) as a typed temperature.
func (p *Packet) BoardTempTyped() physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(p.BoardTemp)*100*physic.MilliKelvin
}

// Encode serializes p to its wire form.
func (p *Packet) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.StreamCounter)
	binary.LittleEndian.PutUint32(buf[4:8], p.TimestampMS)
	binary.LittleEndian.PutUint16(buf[8:10], p.InputVoltage)
	binary.LittleEndian.PutUint16(buf[10:12], uint16(p.MCUTemp))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(p.BoardTemp))
	binary.LittleEndian.PutUint32(buf[14:18], p.TotalCurrent)
	binary.LittleEndian.PutUint16(buf[18:20], uint16(p.Flags))

	for _, bit := range sectionOrder {
		if p.Flags&bit == 0 {
			continue
		}
		buf = append(buf, p.encodeSection(bit)...)
	}
	return buf
}

func (p *Packet) encodeSection(bit SectionFlags) []byte {
	switch bit {
	case SectionADC:
		b := make([]byte, adcChannels*2)
		for i, v := range p.ADC {
			binary.LittleEndian.PutUint16(b[i*2:i*2+2], v)
		}
		return b
	case SectionOutputs:
		return append([]byte(nil), p.Outputs[:]...)
	case SectionHBridge:
		b := make([]byte, hbridgeChannels*4)
		for i, r := range p.HBridge {
			binary.LittleEndian.PutUint16(b[i*2:i*2+2], uint16(r.CurrentMA))
		}
		off := hbridgeChannels * 2
		for i, r := range p.HBridge {
			binary.LittleEndian.PutUint16(b[off+i*2:off+i*2+2], r.DutyPct)
		}
		return b
	case SectionDin:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, p.DinMask)
		return b
	case SectionVirtuals:
		n := len(p.Virtuals)
		if n > maxVirtuals {
			n = maxVirtuals
		}
		b := make([]byte, 2+n*6)
		binary.LittleEndian.PutUint16(b[0:2], uint16(n))
		off := 2
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(b[off:off+2], p.Virtuals[i].ID)
			binary.LittleEndian.PutUint32(b[off+2:off+6], uint32(p.Virtuals[i].Value))
			off += 6
		}
		return b
	case SectionFaults:
		return []byte{p.FaultStatus, p.FaultFlags, 0, 0}
	case SectionCurrents:
		b := make([]byte, currentChannels*2)
		for i, v := range p.Currents {
			binary.LittleEndian.PutUint16(b[i*2:i*2+2], v)
		}
		return b
	case SectionExtended:
		return nil
	default:
		return nil
	}
}

// Parse decodes a Packet from data, rejecting ErrTelemetryTruncated if
// fewer bytes remain than the declared section flags demand. Trailing
// bytes beyond the last enabled section are ignored.
func Parse(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("telemetry: %w: have %d header bytes, need %d", protoerr.ErrTelemetryTruncated, len(data), HeaderSize)
	}
	p := &Packet{
		StreamCounter: binary.LittleEndian.Uint32(data[0:4]),
		TimestampMS:   binary.LittleEndian.Uint32(data[4:8]),
		InputVoltage:  binary.LittleEndian.Uint16(data[8:10]),
		MCUTemp:       int16(binary.LittleEndian.Uint16(data[10:12])),
		BoardTemp:     int16(binary.LittleEndian.Uint16(data[12:14])),
		TotalCurrent:  binary.LittleEndian.Uint32(data[14:18]),
		Flags:         SectionFlags(binary.LittleEndian.Uint16(data[18:20])),
	}

	off := HeaderSize
	for _, bit := range sectionOrder {
		if p.Flags&bit == 0 {
			continue
		}
		if bit == SectionVirtuals {
			if off+2 > len(data) {
				return nil, fmt.Errorf("telemetry: %w: virtuals count", protoerr.ErrTelemetryTruncated)
			}
			count := int(binary.LittleEndian.Uint16(data[off : off+2]))
			if count > maxVirtuals {
				count = maxVirtuals
			}
			need := 2 + count*6
			if off+need > len(data) {
				return nil, fmt.Errorf("telemetry: %w: virtuals body", protoerr.ErrTelemetryTruncated)
			}
			entries := make([]VirtualEntry, count)
			vo := off + 2
			for i := 0; i < count; i++ {
				entries[i] = VirtualEntry{
					ID:    binary.LittleEndian.Uint16(data[vo : vo+2]),
					Value: int32(binary.LittleEndian.Uint32(data[vo+2 : vo+6])),
				}
				vo += 6
			}
			p.Virtuals = entries
			off += need
			continue
		}
		size := sectionSize(bit, 0)
		if off+size > len(data) {
			return nil, fmt.Errorf("telemetry: %w: section %s", protoerr.ErrTelemetryTruncated, sectionNames[bit])
		}
		decodeFixedSection(p, bit, data[off:off+size])
		off += size
	}
	return p, nil
}

func decodeFixedSection(p *Packet, bit SectionFlags, b []byte) {
	switch bit {
	case SectionADC:
		for i := 0; i < adcChannels; i++ {
			p.ADC[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
		}
	case SectionOutputs:
		copy(p.Outputs[:], b)
	case SectionHBridge:
		for i := 0; i < hbridgeChannels; i++ {
			p.HBridge[i].CurrentMA = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
		}
		off := hbridgeChannels * 2
		for i := 0; i < hbridgeChannels; i++ {
			p.HBridge[i].DutyPct = binary.LittleEndian.Uint16(b[off+i*2 : off+i*2+2])
		}
	case SectionDin:
		p.DinMask = binary.LittleEndian.Uint32(b)
	case SectionFaults:
		p.FaultStatus = b[0]
		p.FaultFlags = b[1]
	case SectionCurrents:
		for i := 0; i < currentChannels; i++ {
			p.Currents[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
		}
	}
}
