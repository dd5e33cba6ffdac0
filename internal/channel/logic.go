package channel

// LogicOp is the nested enum carried inside a LOGIC channel's payload
// (spec.md §4.3). The member list here is the canonical set; other
// variants seen across original_source/ are superseded by this table.
type LogicOp uint8

const (
	LogicAND LogicOp = iota
	LogicOR
	LogicXOR
	LogicNAND
	LogicNOR
	LogicNOT
	LogicIsTrue
	LogicIsFalse
	LogicEQ
	LogicNE
	LogicGT
	LogicGE
	LogicLT
	LogicLE
	LogicRange
	LogicOutside
	LogicRisingEdge
	LogicFallingEdge
	LogicSetResetLatch
	LogicToggle
	LogicPulse
	LogicFlash
	LogicChanged
	LogicHysteresis
)

var logicOpNames = [...]string{
	"AND", "OR", "XOR", "NAND", "NOR", "NOT", "IS_TRUE", "IS_FALSE",
	"EQ", "NE", "GT", "GE", "LT", "LE", "RANGE", "OUTSIDE",
	"RISING_EDGE", "FALLING_EDGE", "SET_RESET_LATCH", "TOGGLE", "PULSE",
	"FLASH", "CHANGED", "HYSTERESIS",
}

func (op LogicOp) String() string {
	if int(op) < len(logicOpNames) {
		return logicOpNames[op]
	}
	return "UNKNOWN"
}

// Valid reports whether op is one of the 24 canonical operations.
func (op LogicOp) Valid() bool { return int(op) < len(logicOpNames) }
