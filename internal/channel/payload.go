package channel

import (
	"encoding/binary"
	"fmt"
)

// Payload is implemented by every per-kind variant struct. References
// returns the set of channel-id reference fields the config validator
// must check (excluding RefNone entries), so the validator does not need
// a type switch over every kind.
type Payload interface {
	Size() int
	Marshal() []byte
	Unmarshal(data []byte) error
	References() []uint16
}

// payloadSizes pins the single canonical byte width for every kind in the
// tag table, resolving the inconsistency original_source/ showed across
// PID, TABLE_3D and HBRIDGE. Mirrored by schema_test.go.
var payloadSizes = map[Type]int{
	TypeNone: 0,

	TypeDigitalInput:   4,
	TypeAnalogInput:    14,
	TypeFrequencyInput: 10,
	TypeCANInput:       20,

	TypePowerOutput: 12,
	TypePWMOutput:   10,
	TypeHBridge:     14,
	TypeCANOutput:   16,

	TypeTimer:   12,
	TypeLogic:   26,
	TypeMath:    12,
	TypeTable2D: 36,
	TypeTable3D: 42,
	TypeFilter:  8,
	TypePID:     28,
	TypeNumber:  16,
	TypeSwitch:  22,
	TypeEnum:    36,

	TypeSystem: 4,
}

// PayloadSize returns the pinned wire size of t's variant payload, or
// (0, false) if t is not a known kind.
func PayloadSize(t Type) (int, bool) {
	n, ok := payloadSizes[t]
	return n, ok
}

// NewPayload allocates the zero-value payload struct for a known kind.
func NewPayload(t Type) (Payload, error) {
	switch t {
	case TypeNone:
		return &NonePayload{}, nil
	case TypeDigitalInput:
		return &DigitalInputPayload{}, nil
	case TypeAnalogInput:
		return &AnalogInputPayload{}, nil
	case TypeFrequencyInput:
		return &FrequencyInputPayload{}, nil
	case TypeCANInput:
		return &CANInputPayload{}, nil
	case TypePowerOutput:
		return &PowerOutputPayload{}, nil
	case TypePWMOutput:
		return &PWMOutputPayload{}, nil
	case TypeHBridge:
		return &HBridgePayload{}, nil
	case TypeCANOutput:
		return &CANOutputPayload{}, nil
	case TypeTimer:
		return &TimerPayload{}, nil
	case TypeLogic:
		return &LogicPayload{}, nil
	case TypeMath:
		return &MathPayload{}, nil
	case TypeTable2D:
		return &Table2DPayload{}, nil
	case TypeTable3D:
		return &Table3DPayload{}, nil
	case TypeFilter:
		return &FilterPayload{}, nil
	case TypePID:
		return &PIDPayload{}, nil
	case TypeNumber:
		return &NumberPayload{}, nil
	case TypeSwitch:
		return &SwitchPayload{}, nil
	case TypeEnum:
		return &EnumPayload{}, nil
	case TypeSystem:
		return &SystemPayload{}, nil
	default:
		return nil, fmt.Errorf("channel: unknown type tag 0x%02X", byte(t))
	}
}

func requireLen(data []byte, n int) error {
	if len(data) != n {
		return fmt.Errorf("channel: payload length %d, want %d", len(data), n)
	}
	return nil
}

func noRefs() []uint16 { return nil }

func filterRef(ids ...uint16) []uint16 {
	out := make([]uint16, 0, len(ids))
	for _, id := range ids {
		if id != RefNone {
			out = append(out, id)
		}
	}
	return out
}

// NonePayload is the zero-size sentinel-kind payload.
type NonePayload struct{}

func (NonePayload) Size() int                   { return 0 }
func (NonePayload) Marshal() []byte              { return nil }
func (*NonePayload) Unmarshal(data []byte) error { return requireLen(data, 0) }
func (NonePayload) References() []uint16         { return noRefs() }

// DigitalInputPayload: gpio_pin:u8, active_high:u8, debounce_ms:u16 (4 bytes).
type DigitalInputPayload struct {
	GPIOPin     uint8
	ActiveHigh  bool
	DebounceMS  uint16
}

func (DigitalInputPayload) Size() int { return 4 }

func (p DigitalInputPayload) Marshal() []byte {
	b := make([]byte, 4)
	b[0] = p.GPIOPin
	if p.ActiveHigh {
		b[1] = 1
	}
	binary.LittleEndian.PutUint16(b[2:4], p.DebounceMS)
	return b
}

func (p *DigitalInputPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 4); err != nil {
		return err
	}
	p.GPIOPin = data[0]
	p.ActiveHigh = data[1] != 0
	p.DebounceMS = binary.LittleEndian.Uint16(data[2:4])
	return nil
}

func (DigitalInputPayload) References() []uint16 { return noRefs() }

// AnalogInputPayload: raw_min:u16, raw_max:u16, eng_min:i32, eng_max:i32,
// filter_samples:u8, reserved:u8 (14 bytes).
type AnalogInputPayload struct {
	RawMin        uint16
	RawMax        uint16
	EngMin        int32
	EngMax        int32
	FilterSamples uint8
}

func (AnalogInputPayload) Size() int { return 14 }

func (p AnalogInputPayload) Marshal() []byte {
	b := make([]byte, 14)
	binary.LittleEndian.PutUint16(b[0:2], p.RawMin)
	binary.LittleEndian.PutUint16(b[2:4], p.RawMax)
	binary.LittleEndian.PutUint32(b[4:8], uint32(p.EngMin))
	binary.LittleEndian.PutUint32(b[8:12], uint32(p.EngMax))
	b[12] = p.FilterSamples
	return b
}

func (p *AnalogInputPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 14); err != nil {
		return err
	}
	p.RawMin = binary.LittleEndian.Uint16(data[0:2])
	p.RawMax = binary.LittleEndian.Uint16(data[2:4])
	p.EngMin = int32(binary.LittleEndian.Uint32(data[4:8]))
	p.EngMax = int32(binary.LittleEndian.Uint32(data[8:12]))
	p.FilterSamples = data[12]
	return nil
}

func (AnalogInputPayload) References() []uint16 { return noRefs() }

// FrequencyInputPayload: pulses_per_unit:u16, scale_milli:i32,
// timeout_ms:u16, reserved:u16 (10 bytes).
type FrequencyInputPayload struct {
	PulsesPerUnit uint16
	ScaleMilli    int32
	TimeoutMS     uint16
}

func (FrequencyInputPayload) Size() int { return 10 }

func (p FrequencyInputPayload) Marshal() []byte {
	b := make([]byte, 10)
	binary.LittleEndian.PutUint16(b[0:2], p.PulsesPerUnit)
	binary.LittleEndian.PutUint32(b[2:6], uint32(p.ScaleMilli))
	binary.LittleEndian.PutUint16(b[6:8], p.TimeoutMS)
	return b
}

func (p *FrequencyInputPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 10); err != nil {
		return err
	}
	p.PulsesPerUnit = binary.LittleEndian.Uint16(data[0:2])
	p.ScaleMilli = int32(binary.LittleEndian.Uint32(data[2:6]))
	p.TimeoutMS = binary.LittleEndian.Uint16(data[6:8])
	return nil
}

func (FrequencyInputPayload) References() []uint16 { return noRefs() }

// CANInputPayload: can_id:u32, dlc:u8, byte_offset:u8, bit_offset:u8,
// bit_length:u8, scale_milli:i32, offset:i32, bus_index:u8, reserved[3] (20 bytes).
type CANInputPayload struct {
	CANID      uint32
	DLC        uint8
	ByteOffset uint8
	BitOffset  uint8
	BitLength  uint8
	ScaleMilli int32
	Offset     int32
	BusIndex   uint8
}

func (CANInputPayload) Size() int { return 20 }

func (p CANInputPayload) Marshal() []byte {
	b := make([]byte, 20)
	binary.LittleEndian.PutUint32(b[0:4], p.CANID)
	b[4] = p.DLC
	b[5] = p.ByteOffset
	b[6] = p.BitOffset
	b[7] = p.BitLength
	binary.LittleEndian.PutUint32(b[8:12], uint32(p.ScaleMilli))
	binary.LittleEndian.PutUint32(b[12:16], uint32(p.Offset))
	b[16] = p.BusIndex
	return b
}

func (p *CANInputPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 20); err != nil {
		return err
	}
	p.CANID = binary.LittleEndian.Uint32(data[0:4])
	p.DLC = data[4]
	p.ByteOffset = data[5]
	p.BitOffset = data[6]
	p.BitLength = data[7]
	p.ScaleMilli = int32(binary.LittleEndian.Uint32(data[8:12]))
	p.Offset = int32(binary.LittleEndian.Uint32(data[12:16]))
	p.BusIndex = data[16]
	return nil
}

func (CANInputPayload) References() []uint16 { return noRefs() }

// PowerOutputPayload: current_limit_mA:u16, inrush_limit_mA:u16,
// inrush_time_ms:u16, soft_start_steps:u8, soft_start_ms:u8,
// pwm_freq_hz:u16, pwm_duty:u8, reserved:u8 (12 bytes).
type PowerOutputPayload struct {
	CurrentLimitMA  uint16
	InrushLimitMA   uint16
	InrushTimeMS    uint16
	SoftStartSteps  uint8
	SoftStartMS     uint8
	PWMFreqHz       uint16
	PWMDuty         uint8
}

func (PowerOutputPayload) Size() int { return 12 }

func (p PowerOutputPayload) Marshal() []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint16(b[0:2], p.CurrentLimitMA)
	binary.LittleEndian.PutUint16(b[2:4], p.InrushLimitMA)
	binary.LittleEndian.PutUint16(b[4:6], p.InrushTimeMS)
	b[6] = p.SoftStartSteps
	b[7] = p.SoftStartMS
	binary.LittleEndian.PutUint16(b[8:10], p.PWMFreqHz)
	b[10] = p.PWMDuty
	return b
}

func (p *PowerOutputPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 12); err != nil {
		return err
	}
	p.CurrentLimitMA = binary.LittleEndian.Uint16(data[0:2])
	p.InrushLimitMA = binary.LittleEndian.Uint16(data[2:4])
	p.InrushTimeMS = binary.LittleEndian.Uint16(data[4:6])
	p.SoftStartSteps = data[6]
	p.SoftStartMS = data[7]
	p.PWMFreqHz = binary.LittleEndian.Uint16(data[8:10])
	p.PWMDuty = data[10]
	return nil
}

func (PowerOutputPayload) References() []uint16 { return noRefs() }

// PWMOutputPayload: freq_hz:u16, duty_default:u8, min_duty:u8,
// max_duty:u8, soft_start_ms:u16, reserved[3] (10 bytes).
type PWMOutputPayload struct {
	FreqHz       uint16
	DutyDefault  uint8
	MinDuty      uint8
	MaxDuty      uint8
	SoftStartMS  uint16
}

func (PWMOutputPayload) Size() int { return 10 }

func (p PWMOutputPayload) Marshal() []byte {
	b := make([]byte, 10)
	binary.LittleEndian.PutUint16(b[0:2], p.FreqHz)
	b[2] = p.DutyDefault
	b[3] = p.MinDuty
	b[4] = p.MaxDuty
	binary.LittleEndian.PutUint16(b[5:7], p.SoftStartMS)
	return b
}

func (p *PWMOutputPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 10); err != nil {
		return err
	}
	p.FreqHz = binary.LittleEndian.Uint16(data[0:2])
	p.DutyDefault = data[2]
	p.MinDuty = data[3]
	p.MaxDuty = data[4]
	p.SoftStartMS = binary.LittleEndian.Uint16(data[5:7])
	return nil
}

func (PWMOutputPayload) References() []uint16 { return noRefs() }

// HBridgePayload: current_limit_mA:u16, accel_ms:u16, decel_ms:u16,
// fwd_channel:u16, rev_channel:u16, brake_mode:u8, reserved[3] (14 bytes).
type HBridgePayload struct {
	CurrentLimitMA uint16
	AccelMS        uint16
	DecelMS        uint16
	FwdChannel     uint16
	RevChannel     uint16
	BrakeMode      uint8
}

func (HBridgePayload) Size() int { return 14 }

func (p HBridgePayload) Marshal() []byte {
	b := make([]byte, 14)
	binary.LittleEndian.PutUint16(b[0:2], p.CurrentLimitMA)
	binary.LittleEndian.PutUint16(b[2:4], p.AccelMS)
	binary.LittleEndian.PutUint16(b[4:6], p.DecelMS)
	binary.LittleEndian.PutUint16(b[6:8], p.FwdChannel)
	binary.LittleEndian.PutUint16(b[8:10], p.RevChannel)
	b[10] = p.BrakeMode
	return b
}

func (p *HBridgePayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 14); err != nil {
		return err
	}
	p.CurrentLimitMA = binary.LittleEndian.Uint16(data[0:2])
	p.AccelMS = binary.LittleEndian.Uint16(data[2:4])
	p.DecelMS = binary.LittleEndian.Uint16(data[4:6])
	p.FwdChannel = binary.LittleEndian.Uint16(data[6:8])
	p.RevChannel = binary.LittleEndian.Uint16(data[8:10])
	p.BrakeMode = data[10]
	return nil
}

func (p HBridgePayload) References() []uint16 { return filterRef(p.FwdChannel, p.RevChannel) }

// CANOutputPayload: can_id:u32, dlc:u8, byte_offset:u8, bit_offset:u8,
// bit_length:u8, source_scale_milli:i32, bus_index:u8, period_ms:u16,
// reserved:u8 (16 bytes).
type CANOutputPayload struct {
	CANID            uint32
	DLC              uint8
	ByteOffset       uint8
	BitOffset        uint8
	BitLength        uint8
	SourceScaleMilli int32
	BusIndex         uint8
	PeriodMS         uint16
}

func (CANOutputPayload) Size() int { return 16 }

func (p CANOutputPayload) Marshal() []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:4], p.CANID)
	b[4] = p.DLC
	b[5] = p.ByteOffset
	b[6] = p.BitOffset
	b[7] = p.BitLength
	binary.LittleEndian.PutUint32(b[8:12], uint32(p.SourceScaleMilli))
	b[12] = p.BusIndex
	binary.LittleEndian.PutUint16(b[13:15], p.PeriodMS)
	return b
}

func (p *CANOutputPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 16); err != nil {
		return err
	}
	p.CANID = binary.LittleEndian.Uint32(data[0:4])
	p.DLC = data[4]
	p.ByteOffset = data[5]
	p.BitOffset = data[6]
	p.BitLength = data[7]
	p.SourceScaleMilli = int32(binary.LittleEndian.Uint32(data[8:12]))
	p.BusIndex = data[12]
	p.PeriodMS = binary.LittleEndian.Uint16(data[13:15])
	return nil
}

func (CANOutputPayload) References() []uint16 { return noRefs() }

// TimerPayload: mode:u8, start_channel:u16, start_edge:u8, limit_ms:u32,
// reserved[4] (12 bytes).
type TimerPayload struct {
	Mode         uint8
	StartChannel uint16
	StartEdge    uint8
	LimitMS      uint32
}

func (TimerPayload) Size() int { return 12 }

func (p TimerPayload) Marshal() []byte {
	b := make([]byte, 12)
	b[0] = p.Mode
	binary.LittleEndian.PutUint16(b[1:3], p.StartChannel)
	b[3] = p.StartEdge
	binary.LittleEndian.PutUint32(b[4:8], p.LimitMS)
	return b
}

func (p *TimerPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 12); err != nil {
		return err
	}
	p.Mode = data[0]
	p.StartChannel = binary.LittleEndian.Uint16(data[1:3])
	p.StartEdge = data[3]
	p.LimitMS = binary.LittleEndian.Uint32(data[4:8])
	return nil
}

func (p TimerPayload) References() []uint16 { return filterRef(p.StartChannel) }

// LogicPayload: operation:u8, input_count:u8, inputs[8]:u16, threshold:i32,
// invert:u8, reserved[3] (26 bytes).
type LogicPayload struct {
	Operation  LogicOp
	InputCount uint8
	Inputs     [8]uint16
	Threshold  int32
	Invert     bool
}

func (LogicPayload) Size() int { return 26 }

func (p LogicPayload) Marshal() []byte {
	b := make([]byte, 26)
	b[0] = byte(p.Operation)
	b[1] = p.InputCount
	for i, in := range p.Inputs {
		binary.LittleEndian.PutUint16(b[2+i*2:4+i*2], in)
	}
	binary.LittleEndian.PutUint32(b[18:22], uint32(p.Threshold))
	if p.Invert {
		b[22] = 1
	}
	return b
}

func (p *LogicPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 26); err != nil {
		return err
	}
	p.Operation = LogicOp(data[0])
	p.InputCount = data[1]
	for i := range p.Inputs {
		p.Inputs[i] = binary.LittleEndian.Uint16(data[2+i*2 : 4+i*2])
	}
	p.Threshold = int32(binary.LittleEndian.Uint32(data[18:22]))
	p.Invert = data[22] != 0
	return nil
}

func (p LogicPayload) References() []uint16 {
	n := int(p.InputCount)
	if n > len(p.Inputs) {
		n = len(p.Inputs)
	}
	return filterRef(p.Inputs[:n]...)
}

// MathPayload: op:u8, input_a:u16, input_b:u16, constant:i32, reserved[3]
// (12 bytes).
type MathPayload struct {
	Op       uint8
	InputA   uint16
	InputB   uint16
	Constant int32
}

func (MathPayload) Size() int { return 12 }

func (p MathPayload) Marshal() []byte {
	b := make([]byte, 12)
	b[0] = p.Op
	binary.LittleEndian.PutUint16(b[1:3], p.InputA)
	binary.LittleEndian.PutUint16(b[3:5], p.InputB)
	binary.LittleEndian.PutUint32(b[5:9], uint32(p.Constant))
	return b
}

func (p *MathPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 12); err != nil {
		return err
	}
	p.Op = data[0]
	p.InputA = binary.LittleEndian.Uint16(data[1:3])
	p.InputB = binary.LittleEndian.Uint16(data[3:5])
	p.Constant = int32(binary.LittleEndian.Uint32(data[5:9]))
	return nil
}

func (p MathPayload) References() []uint16 { return filterRef(p.InputA, p.InputB) }

// table2DPoints bounds the fixed point count pinned for TABLE_2D.
const table2DPoints = 4

// Table2DPayload: x_axis_channel:u16, point_count:u8, reserved:u8,
// points[4]{x:i32,y:i32} (36 bytes).
type Table2DPayload struct {
	XAxisChannel uint16
	PointCount   uint8
	PointsX      [table2DPoints]int32
	PointsY      [table2DPoints]int32
}

func (Table2DPayload) Size() int { return 36 }

func (p Table2DPayload) Marshal() []byte {
	b := make([]byte, 36)
	binary.LittleEndian.PutUint16(b[0:2], p.XAxisChannel)
	b[2] = p.PointCount
	off := 4
	for i := 0; i < table2DPoints; i++ {
		binary.LittleEndian.PutUint32(b[off:off+4], uint32(p.PointsX[i]))
		binary.LittleEndian.PutUint32(b[off+4:off+8], uint32(p.PointsY[i]))
		off += 8
	}
	return b
}

func (p *Table2DPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 36); err != nil {
		return err
	}
	p.XAxisChannel = binary.LittleEndian.Uint16(data[0:2])
	p.PointCount = data[2]
	off := 4
	for i := 0; i < table2DPoints; i++ {
		p.PointsX[i] = int32(binary.LittleEndian.Uint32(data[off : off+4]))
		p.PointsY[i] = int32(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
	}
	return nil
}

func (p Table2DPayload) References() []uint16 { return filterRef(p.XAxisChannel) }

// table3DGrid bounds the fixed square grid pinned for TABLE_3D.
const table3DGrid = 3

// Table3DPayload: x_axis_channel:u16, y_axis_channel:u16, rows:u8, cols:u8,
// values[3*3]:i32 (42 bytes).
type Table3DPayload struct {
	XAxisChannel uint16
	YAxisChannel uint16
	Rows         uint8
	Cols         uint8
	Values       [table3DGrid * table3DGrid]int32
}

func (Table3DPayload) Size() int { return 42 }

func (p Table3DPayload) Marshal() []byte {
	b := make([]byte, 42)
	binary.LittleEndian.PutUint16(b[0:2], p.XAxisChannel)
	binary.LittleEndian.PutUint16(b[2:4], p.YAxisChannel)
	b[4] = p.Rows
	b[5] = p.Cols
	off := 6
	for _, v := range p.Values {
		binary.LittleEndian.PutUint32(b[off:off+4], uint32(v))
		off += 4
	}
	return b
}

func (p *Table3DPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 42); err != nil {
		return err
	}
	p.XAxisChannel = binary.LittleEndian.Uint16(data[0:2])
	p.YAxisChannel = binary.LittleEndian.Uint16(data[2:4])
	p.Rows = data[4]
	p.Cols = data[5]
	off := 6
	for i := range p.Values {
		p.Values[i] = int32(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
	}
	return nil
}

func (p Table3DPayload) References() []uint16 {
	return filterRef(p.XAxisChannel, p.YAxisChannel)
}

// FilterPayload: input_channel:u16, type:u8, tau_ms:u16, reserved[3] (8 bytes).
type FilterPayload struct {
	InputChannel uint16
	Type         uint8
	TauMS        uint16
}

func (FilterPayload) Size() int { return 8 }

func (p FilterPayload) Marshal() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint16(b[0:2], p.InputChannel)
	b[2] = p.Type
	binary.LittleEndian.PutUint16(b[3:5], p.TauMS)
	return b
}

func (p *FilterPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 8); err != nil {
		return err
	}
	p.InputChannel = binary.LittleEndian.Uint16(data[0:2])
	p.Type = data[2]
	p.TauMS = binary.LittleEndian.Uint16(data[3:5])
	return nil
}

func (p FilterPayload) References() []uint16 { return filterRef(p.InputChannel) }

// PIDPayload: input_channel:u16, setpoint_channel:u16, kp:i32, ki:i32,
// kd:i32, output_min:i32, output_max:i32, reserved[4] (28 bytes).
type PIDPayload struct {
	InputChannel    uint16
	SetpointChannel uint16
	Kp, Ki, Kd      int32
	OutputMin       int32
	OutputMax       int32
}

func (PIDPayload) Size() int { return 28 }

func (p PIDPayload) Marshal() []byte {
	b := make([]byte, 28)
	binary.LittleEndian.PutUint16(b[0:2], p.InputChannel)
	binary.LittleEndian.PutUint16(b[2:4], p.SetpointChannel)
	binary.LittleEndian.PutUint32(b[4:8], uint32(p.Kp))
	binary.LittleEndian.PutUint32(b[8:12], uint32(p.Ki))
	binary.LittleEndian.PutUint32(b[12:16], uint32(p.Kd))
	binary.LittleEndian.PutUint32(b[16:20], uint32(p.OutputMin))
	binary.LittleEndian.PutUint32(b[20:24], uint32(p.OutputMax))
	return b
}

func (p *PIDPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 28); err != nil {
		return err
	}
	p.InputChannel = binary.LittleEndian.Uint16(data[0:2])
	p.SetpointChannel = binary.LittleEndian.Uint16(data[2:4])
	p.Kp = int32(binary.LittleEndian.Uint32(data[4:8]))
	p.Ki = int32(binary.LittleEndian.Uint32(data[8:12]))
	p.Kd = int32(binary.LittleEndian.Uint32(data[12:16]))
	p.OutputMin = int32(binary.LittleEndian.Uint32(data[16:20]))
	p.OutputMax = int32(binary.LittleEndian.Uint32(data[20:24]))
	return nil
}

func (p PIDPayload) References() []uint16 {
	return filterRef(p.InputChannel, p.SetpointChannel)
}

// NumberPayload: constant:i32, min:i32, max:i32, step:i32 (16 bytes).
type NumberPayload struct {
	Constant int32
	Min      int32
	Max      int32
	Step     int32
}

func (NumberPayload) Size() int { return 16 }

func (p NumberPayload) Marshal() []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:4], uint32(p.Constant))
	binary.LittleEndian.PutUint32(b[4:8], uint32(p.Min))
	binary.LittleEndian.PutUint32(b[8:12], uint32(p.Max))
	binary.LittleEndian.PutUint32(b[12:16], uint32(p.Step))
	return b
}

func (p *NumberPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 16); err != nil {
		return err
	}
	p.Constant = int32(binary.LittleEndian.Uint32(data[0:4]))
	p.Min = int32(binary.LittleEndian.Uint32(data[4:8]))
	p.Max = int32(binary.LittleEndian.Uint32(data[8:12]))
	p.Step = int32(binary.LittleEndian.Uint32(data[12:16]))
	return nil
}

func (NumberPayload) References() []uint16 { return noRefs() }

// SwitchPayload: position_count:u8, default_position:u8, input_channel:u16,
// values[4]:i32, reserved[2] (22 bytes).
type SwitchPayload struct {
	PositionCount   uint8
	DefaultPosition uint8
	InputChannel    uint16
	Values          [4]int32
}

func (SwitchPayload) Size() int { return 22 }

func (p SwitchPayload) Marshal() []byte {
	b := make([]byte, 22)
	b[0] = p.PositionCount
	b[1] = p.DefaultPosition
	binary.LittleEndian.PutUint16(b[2:4], p.InputChannel)
	off := 4
	for _, v := range p.Values {
		binary.LittleEndian.PutUint32(b[off:off+4], uint32(v))
		off += 4
	}
	return b
}

func (p *SwitchPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 22); err != nil {
		return err
	}
	p.PositionCount = data[0]
	p.DefaultPosition = data[1]
	p.InputChannel = binary.LittleEndian.Uint16(data[2:4])
	off := 4
	for i := range p.Values {
		p.Values[i] = int32(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
	}
	return nil
}

func (p SwitchPayload) References() []uint16 { return filterRef(p.InputChannel) }

// EnumPayload: source_channel:u16, value_count:u8, reserved:u8,
// values[8]:i32 (36 bytes).
type EnumPayload struct {
	SourceChannel uint16
	ValueCount    uint8
	Values        [8]int32
}

func (EnumPayload) Size() int { return 36 }

func (p EnumPayload) Marshal() []byte {
	b := make([]byte, 36)
	binary.LittleEndian.PutUint16(b[0:2], p.SourceChannel)
	b[2] = p.ValueCount
	off := 4
	for _, v := range p.Values {
		binary.LittleEndian.PutUint32(b[off:off+4], uint32(v))
		off += 4
	}
	return b
}

func (p *EnumPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 36); err != nil {
		return err
	}
	p.SourceChannel = binary.LittleEndian.Uint16(data[0:2])
	p.ValueCount = data[2]
	off := 4
	for i := range p.Values {
		p.Values[i] = int32(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
	}
	return nil
}

func (p EnumPayload) References() []uint16 { return filterRef(p.SourceChannel) }

// SystemPayload: metric_id:u16, reserved[2] (4 bytes). Builtin, readonly.
type SystemPayload struct {
	MetricID uint16
}

func (SystemPayload) Size() int { return 4 }

func (p SystemPayload) Marshal() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:2], p.MetricID)
	return b
}

func (p *SystemPayload) Unmarshal(data []byte) error {
	if err := requireLen(data, 4); err != nil {
		return err
	}
	p.MetricID = binary.LittleEndian.Uint16(data[0:2])
	return nil
}

func (SystemPayload) References() []uint16 { return noRefs() }
