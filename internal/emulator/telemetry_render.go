package emulator

import (
	"github.com/rakyury/pmu30-host/internal/channel"
	"github.com/rakyury/pmu30-host/internal/telemetry"
)

// defaultStreamFlags is used when a session has not configured a
// narrower set via START_STREAM's flags word.
const defaultStreamFlags = telemetry.SectionADC | telemetry.SectionOutputs |
	telemetry.SectionDin | telemetry.SectionVirtuals | telemetry.SectionFaults

// renderTelemetry maps the runtime's current value map onto the wire
// sections selected by d.streamFlags, scattering each bound channel's
// value into its hw_index slot the way real firmware would.
func (d *Device) renderTelemetry(timestampMS uint32) *telemetry.Packet {
	flags := d.streamFlags
	if flags == 0 {
		flags = defaultStreamFlags
	}
	p := &telemetry.Packet{
		StreamCounter: d.streamCount,
		TimestampMS:   timestampMS,
		InputVoltage:  13800,
		MCUTemp:       350,
		BoardTemp:     320,
		Flags:         flags,
	}

	if d.cfg == nil {
		return p
	}
	var totalCurrent int32
	for _, c := range d.cfg.Channels {
		val := d.rt.get(c.ID)
		switch c.Kind {
		case channel.TypeAnalogInput, channel.TypeFrequencyInput, channel.TypeCANInput:
			if c.HwDevice != channel.HwNone && int(c.HwIndex) < len(p.ADC) {
				p.ADC[c.HwIndex] = uint16(val)
			}
		case channel.TypeDigitalInput:
			if val != 0 && c.HwIndex < 32 {
				p.DinMask |= 1 << uint(c.HwIndex)
			}
		case channel.TypePowerOutput, channel.TypePWMOutput:
			if c.HwDevice != channel.HwNone {
				if int(c.HwIndex) < len(p.Outputs) {
					p.Outputs[c.HwIndex] = uint8(val)
				}
				if int(c.HwIndex) < len(p.Currents) {
					current := uint16(val) * 50
					p.Currents[c.HwIndex] = current
					totalCurrent += int32(current)
				}
			}
		case channel.TypeHBridge:
			if int(c.HwIndex) < len(p.HBridge) {
				p.HBridge[c.HwIndex].DutyPct = uint16(val)
				p.HBridge[c.HwIndex].CurrentMA = int16(val) * 20
			}
		default:
			if c.Kind.IsVirtual() && len(p.Virtuals) < 32 {
				p.Virtuals = append(p.Virtuals, telemetry.VirtualEntry{ID: c.ID, Value: val})
			}
		}
	}
	p.TotalCurrent = uint32(totalCurrent)
	return p
}
