package telemetry

import (
	"encoding/binary"
	"fmt"

	"github.com/rakyury/pmu30-host/internal/protoerr"
)

// legacyNucleoSize is the fixed length of the pre-section-flags firmware
// packet: header fields plus ADC, OUTPUTS and DIN always present and
// nothing else, in that fixed order.
const legacyNucleoSize = 4 + 4 + 2 + 2 + 2 + 4 + adcChannels*2 + outputChannels + 4

// ParseLegacyNucleo decodes the pre-PMU_TELEM_VERSION=1 firmware's
// telemetry record: a fixed-offset layout with no section_flags word and
// no optional sections, present on devices running firmware older than
// the one spec.md describes. It exists solely for
// cmd/pmu-test-runner's --legacy-telemetry compatibility path; current
// client and emulator code never calls it.
func ParseLegacyNucleo(data []byte) (*Packet, error) {
	if len(data) < legacyNucleoSize {
		return nil, fmt.Errorf("telemetry: %w: legacy packet needs %d bytes, have %d", protoerr.ErrTelemetryTruncated, legacyNucleoSize, len(data))
	}
	p := &Packet{
		StreamCounter: binary.LittleEndian.Uint32(data[0:4]),
		TimestampMS:   binary.LittleEndian.Uint32(data[4:8]),
		InputVoltage:  binary.LittleEndian.Uint16(data[8:10]),
		MCUTemp:       int16(binary.LittleEndian.Uint16(data[10:12])),
		BoardTemp:     int16(binary.LittleEndian.Uint16(data[12:14])),
		TotalCurrent:  binary.LittleEndian.Uint32(data[14:18]),
		Flags:         SectionADC | SectionOutputs | SectionDin,
	}
	off := 18
	for i := 0; i < adcChannels; i++ {
		p.ADC[i] = binary.LittleEndian.Uint16(data[off : off+2])
		off += 2
	}
	copy(p.Outputs[:], data[off:off+outputChannels])
	off += outputChannels
	p.DinMask = binary.LittleEndian.Uint32(data[off : off+4])
	return p, nil
}
