package emulator

import (
	"math"

	"github.com/rakyury/pmu30-host/internal/channel"
	"github.com/rakyury/pmu30-host/internal/config"
)

// runtime holds the live value of every channel in a config, enough to
// emit believable telemetry (spec.md's own phrase for this component):
// input channels synthesize a deterministic waveform, virtual channels
// evaluate their payload's expression against the current value map, and
// output channels hold whatever SET_OUTPUT last commanded.
type runtime struct {
	cfg    *config.Config
	values map[uint16]int32
	tick   uint64
}

func newRuntime(cfg *config.Config) *runtime {
	r := &runtime{cfg: cfg, values: make(map[uint16]int32)}
	if cfg != nil {
		for _, c := range cfg.Channels {
			r.values[c.ID] = c.Default
		}
	}
	return r
}

func (r *runtime) get(id uint16) int32 {
	if id == channel.RefNone {
		return 0
	}
	return r.values[id]
}

// Step advances the simulated graph by one tick: inputs get a fresh
// synthetic sample, then virtual channels are evaluated in config order.
// Two passes cover the common case of a virtual channel referencing
// another virtual channel defined later in the array.
func (r *runtime) Step() {
	r.tick++
	if r.cfg == nil {
		return
	}
	for _, c := range r.cfg.Channels {
		if c.Kind.IsInput() {
			r.values[c.ID] = r.sampleInput(c)
		}
	}
	for pass := 0; pass < 2; pass++ {
		for _, c := range r.cfg.Channels {
			if c.Kind.IsVirtual() || c.Kind.IsSystem() {
				r.values[c.ID] = r.evalVirtual(c)
			}
		}
	}
}

// sampleInput synthesizes a slow, channel-distinct oscillation so repeated
// polls look like a live sensor rather than a constant.
func (r *runtime) sampleInput(c *channel.Channel) int32 {
	phase := float64(r.tick)/20 + float64(c.ID)
	switch p := c.Payload.(type) {
	case *channel.AnalogInputPayload:
		mid := (p.EngMin + p.EngMax) / 2
		span := (p.EngMax - p.EngMin) / 2
		return mid + int32(float64(span)*math.Sin(phase))
	case *channel.DigitalInputPayload:
		_ = p
		if int(r.tick/10)%2 == 0 {
			return 1
		}
		return 0
	case *channel.FrequencyInputPayload:
		return int32(1000 + 200*math.Sin(phase))
	case *channel.CANInputPayload:
		return int32(500 + 50*math.Sin(phase))
	default:
		return c.Default
	}
}

func (r *runtime) evalVirtual(c *channel.Channel) int32 {
	switch p := c.Payload.(type) {
	case *channel.LogicPayload:
		return r.evalLogic(p)
	case *channel.MathPayload:
		return r.evalMath(p)
	case *channel.FilterPayload:
		prev := r.values[c.ID]
		in := r.get(p.InputChannel)
		if p.TauMS == 0 {
			return in
		}
		return prev + (in-prev)/4
	case *channel.PIDPayload:
		errVal := r.get(p.SetpointChannel) - r.get(p.InputChannel)
		out := p.Kp * errVal / 1000
		if out < p.OutputMin {
			out = p.OutputMin
		}
		if out > p.OutputMax {
			out = p.OutputMax
		}
		return out
	case *channel.Table2DPayload:
		return interpolate2D(p, r.get(p.XAxisChannel))
	case *channel.Table3DPayload:
		return r.get(p.XAxisChannel) // simplified: see DESIGN.md
	case *channel.TimerPayload:
		return r.values[c.ID]
	case *channel.NumberPayload:
		return p.Constant
	case *channel.SwitchPayload:
		idx := r.get(p.InputChannel)
		if idx >= 0 && int(idx) < len(p.Values) && int(idx) < int(p.PositionCount) {
			return p.Values[idx]
		}
		return p.Values[p.DefaultPosition]
	case *channel.EnumPayload:
		src := r.get(p.SourceChannel)
		if src >= 0 && int(src) < len(p.Values) && int(src) < int(p.ValueCount) {
			return p.Values[src]
		}
		return 0
	case *channel.SystemPayload:
		return systemMetric(p.MetricID, r.tick)
	default:
		return c.Default
	}
}

func (r *runtime) evalLogic(p *channel.LogicPayload) int32 {
	vals := make([]bool, p.InputCount)
	for i := 0; i < int(p.InputCount) && i < len(p.Inputs); i++ {
		vals[i] = r.get(p.Inputs[i]) != 0
	}
	result := false
	switch p.Operation {
	case channel.LogicAND:
		result = true
		for _, v := range vals {
			result = result && v
		}
	case channel.LogicOR:
		for _, v := range vals {
			result = result || v
		}
	case channel.LogicXOR:
		for _, v := range vals {
			result = result != v
		}
	case channel.LogicNOT, channel.LogicIsFalse:
		result = len(vals) > 0 && !vals[0]
	case channel.LogicIsTrue:
		result = len(vals) > 0 && vals[0]
	case channel.LogicGT:
		result = len(vals) > 0 && int32FromBool(vals[0]) > p.Threshold
	default:
		result = len(vals) > 0 && vals[0]
	}
	if p.Invert {
		result = !result
	}
	return int32FromBool(result)
}

func int32FromBool(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (r *runtime) evalMath(p *channel.MathPayload) int32 {
	a, b := r.get(p.InputA), r.get(p.InputB)
	switch p.Op {
	case 0: // add
		return a + b
	case 1: // sub
		return a - b
	case 2: // mul
		return a * b
	case 3: // div
		if b == 0 {
			return 0
		}
		return a / b
	case 4: // min
		if a < b {
			return a
		}
		return b
	case 5: // max
		if a > b {
			return a
		}
		return b
	default:
		return a + p.Constant
	}
}

func interpolate2D(p *channel.Table2DPayload, x int32) int32 {
	n := int(p.PointCount)
	if n == 0 {
		return 0
	}
	if x <= p.PointsX[0] {
		return p.PointsY[0]
	}
	if x >= p.PointsX[n-1] {
		return p.PointsY[n-1]
	}
	for i := 1; i < n; i++ {
		if x <= p.PointsX[i] {
			x0, x1 := p.PointsX[i-1], p.PointsX[i]
			y0, y1 := p.PointsY[i-1], p.PointsY[i]
			if x1 == x0 {
				return y0
			}
			return y0 + (y1-y0)*(x-x0)/(x1-x0)
		}
	}
	return p.PointsY[n-1]
}

// systemMetric stands in for a handful of builtin SYSTEM metrics (spec.md
// §4.3 names uptime/cpu-load style channels without pinning their IDs).
func systemMetric(metricID uint16, tick uint64) int32 {
	switch metricID {
	case 0: // uptime seconds, assuming a 100ms tick
		return int32(tick / 10)
	default:
		return int32(tick)
	}
}
