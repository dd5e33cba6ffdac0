// Package channel defines the PMU-30 channel type system: the tagged
// variant enum, hardware binding enum, flags bitmask, and the typed
// per-kind payload structs that the config codec serializes. Grounded on
// the teacher's internal/can.Frame pattern of a small value type plus a
// CopyShallow-style helper, generalized from one CAN frame shape to an
// exhaustive sum type over 19 channel kinds.
package channel

// Type is the wire tag identifying a channel's kind (spec.md §4.3).
type Type uint8

const (
	TypeNone Type = 0x00

	TypeDigitalInput   Type = 0x01
	TypeAnalogInput    Type = 0x02
	TypeFrequencyInput Type = 0x03
	TypeCANInput       Type = 0x04

	TypePowerOutput Type = 0x10
	TypePWMOutput   Type = 0x11
	TypeHBridge     Type = 0x12
	TypeCANOutput   Type = 0x13

	TypeTimer   Type = 0x20
	TypeLogic   Type = 0x21
	TypeMath    Type = 0x22
	TypeTable2D Type = 0x23
	TypeTable3D Type = 0x24
	TypeFilter  Type = 0x25
	TypePID     Type = 0x26
	TypeNumber  Type = 0x27
	TypeSwitch  Type = 0x28
	TypeEnum    Type = 0x29

	TypeSystem Type = 0xF0
)

// names gives Type.String() its wire-stable label; any tag absent here is
// unknown and reported as such rather than guessed at.
var names = map[Type]string{
	TypeNone: "NONE",

	TypeDigitalInput:   "DIGITAL_INPUT",
	TypeAnalogInput:    "ANALOG_INPUT",
	TypeFrequencyInput: "FREQUENCY_INPUT",
	TypeCANInput:       "CAN_INPUT",

	TypePowerOutput: "POWER_OUTPUT",
	TypePWMOutput:   "PWM_OUTPUT",
	TypeHBridge:     "HBRIDGE",
	TypeCANOutput:   "CAN_OUTPUT",

	TypeTimer:   "TIMER",
	TypeLogic:   "LOGIC",
	TypeMath:    "MATH",
	TypeTable2D: "TABLE_2D",
	TypeTable3D: "TABLE_3D",
	TypeFilter:  "FILTER",
	TypePID:     "PID",
	TypeNumber:  "NUMBER",
	TypeSwitch:  "SWITCH",
	TypeEnum:    "ENUM",

	TypeSystem: "SYSTEM",
}

func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return "UNKNOWN"
}

// Known reports whether t is one of the tags in the exhaustive table.
func (t Type) Known() bool {
	_, ok := names[t]
	return ok
}

// IsInput, IsOutput, IsVirtual, IsSystem classify a known tag by category.
func (t Type) IsInput() bool {
	return t == TypeDigitalInput || t == TypeAnalogInput || t == TypeFrequencyInput || t == TypeCANInput
}

func (t Type) IsOutput() bool {
	return t == TypePowerOutput || t == TypePWMOutput || t == TypeHBridge || t == TypeCANOutput
}

func (t Type) IsVirtual() bool {
	switch t {
	case TypeTimer, TypeLogic, TypeMath, TypeTable2D, TypeTable3D, TypeFilter, TypePID, TypeNumber, TypeSwitch, TypeEnum:
		return true
	}
	return false
}

func (t Type) IsSystem() bool { return t == TypeSystem }

// HwDevice identifies the physical peripheral a channel is bound to.
type HwDevice uint8

const (
	HwNone   HwDevice = 0x00
	HwGPIO   HwDevice = 0x01
	HwADC    HwDevice = 0x02
	HwPWM    HwDevice = 0x03
	HwDAC    HwDevice = 0x04
	HwPROFET HwDevice = 0x05
	HwHBridge HwDevice = 0x06
	HwCAN    HwDevice = 0x07
	HwFreq   HwDevice = 0x08
)

// DataType describes the runtime representation of a channel's value.
type DataType uint8

const (
	DataBool    DataType = 0x00
	DataUint8   DataType = 0x01
	DataInt8    DataType = 0x02
	DataUint16  DataType = 0x03
	DataInt16   DataType = 0x04
	DataUint32  DataType = 0x05
	DataInt32   DataType = 0x06
	DataFloat32 DataType = 0x07
)

// Flags is the per-channel bitmask.
type Flags uint8

const (
	FlagEnabled  Flags = 0x01
	FlagInverted Flags = 0x02
	FlagBuiltin  Flags = 0x04
	FlagReadonly Flags = 0x08
	FlagHidden   Flags = 0x10
	FlagFault    Flags = 0x20
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// RefNone is the sentinel meaning "no channel referenced". It is never a
// live channel ID.
const RefNone uint16 = 0xFFFF

// UserIDMin/UserIDMax bound the host-assignable channel_id range; IDs at
// or above SystemIDMin are system/builtin channels.
const (
	UserIDMin   = 200
	UserIDMax   = 999
	SystemIDMin = 1000
)
