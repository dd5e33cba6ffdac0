// Package emulator is the device-side counterpart to internal/client: it
// speaks the identical frame/transport/config/telemetry codecs so the
// test suite (and cmd/pmu-emulator) can exercise a host without real
// PMU-30 hardware. Grounded on the teacher's cmd/can-server/backend.go
// for the "one session, one small protocol state machine" shape, and on
// internal/server's accept loop for session plumbing (internal/emulator's
// own accept loop lives in session.go).
package emulator

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/blang/semver"

	"github.com/rakyury/pmu30-host/internal/client"
	"github.com/rakyury/pmu30-host/internal/config"
	"github.com/rakyury/pmu30-host/internal/emulator/store"
	"github.com/rakyury/pmu30-host/internal/logging"
	"github.com/rakyury/pmu30-host/internal/metrics"
	"github.com/rakyury/pmu30-host/internal/telemetry"
)

// FirmwareVersion is the version cmd/pmu-emulator reports from GET_INFO.
var FirmwareVersion = semver.Version{Major: 1, Minor: 0, Patch: 0}

// Response is one reliable application frame the session should send back
// to the host, in order.
type Response struct {
	Cmd     byte
	Payload []byte
}

// Device holds one emulated PMU-30's state: its active config, the
// runtime value map that drives telemetry, and the chunk-reassembly
// buffers for the two upload commands.
type Device struct {
	mu sync.Mutex

	sessionID string
	store     store.Store

	cfg *config.Config
	rt  *runtime

	streaming    bool
	streamRateHz uint16
	streamFlags  telemetry.SectionFlags
	streamCount  uint32

	uploadBuf   []byte
	uploadTotal int
	uploadCmd   byte
}

// NewDevice loads any persisted config from st and returns a Device
// identified by sessionID (the emulator's satori/go.uuid session tag,
// surfaced back to the host as GetInfo's serial field).
func NewDevice(ctx context.Context, sessionID string, st store.Store) *Device {
	d := &Device{sessionID: sessionID, store: st, rt: newRuntime(nil)}
	if raw, err := st.Load(ctx); err == nil {
		if cfg, decErr := config.Decode(raw); decErr == nil {
			d.cfg = cfg
			d.rt = newRuntime(cfg)
		}
	}
	return d
}

// Handle dispatches one application command frame and returns the
// reliable responses the session must send back, in order. Unreliable
// commands (START_STREAM/STOP_STREAM) return no response, matching
// internal/client's SendUnreliable contract.
func (d *Device) Handle(ctx context.Context, cmd byte, payload []byte) []Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch cmd {
	case client.CmdPing:
		return []Response{{Cmd: client.CmdPong}}
	case client.CmdGetInfo:
		return []Response{{Cmd: client.CmdInfoResp, Payload: d.infoPayload()}}
	case client.CmdGetConfig:
		return d.handleGetConfig()
	case client.CmdSetConfig:
		return d.handleUploadChunk(cmd, client.CmdConfigAck, payload, d.applyConfig)
	case client.CmdSaveConfig:
		return []Response{{Cmd: client.CmdFlashAck, Payload: []byte{d.saveConfig(ctx)}}}
	case client.CmdClearConfig:
		return []Response{{Cmd: client.CmdClearAck, Payload: []byte{d.clearConfig(ctx)}}}
	case client.CmdStartStream:
		d.handleStartStream(payload)
		return nil
	case client.CmdStopStream:
		d.streaming = false
		return nil
	case client.CmdSetOutput:
		return []Response{{Cmd: client.CmdOutputAck, Payload: []byte{d.handleSetOutput(payload)}}}
	case client.CmdLoadBinary:
		return d.handleUploadChunk(cmd, client.CmdBinaryAck, payload, func([]byte) bool { return true })
	default:
		logging.L().Warn("emulator_unknown_command", "cmd", fmt.Sprintf("0x%02X", cmd), "session", d.sessionID)
		return []Response{{Cmd: client.CmdError, Payload: errorPayload(1, "unknown command")}}
	}
}

func (d *Device) infoPayload() []byte {
	b := make([]byte, 4+16+32)
	b[0] = byte(FirmwareVersion.Major)
	b[1] = byte(FirmwareVersion.Minor)
	b[2] = byte(FirmwareVersion.Patch)
	b[3] = 1 // hardware_rev
	copy(b[4:20], d.sessionID)
	copy(b[20:52], "pmu30-emulator")
	return b
}

func (d *Device) handleGetConfig() []Response {
	if d.cfg == nil {
		return []Response{{Cmd: client.CmdError, Payload: errorPayload(2, "no active config")}}
	}
	data, err := config.Encode(d.cfg)
	if err != nil {
		return []Response{{Cmd: client.CmdError, Payload: errorPayload(3, "config encode failed")}}
	}
	total := (len(data) + client.ChunkSize - 1) / client.ChunkSize
	if total == 0 {
		total = 1
	}
	resp := make([]Response, 0, total)
	for idx := 0; idx < total; idx++ {
		start := idx * client.ChunkSize
		end := start + client.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		body := make([]byte, 4+(end-start))
		binary.LittleEndian.PutUint16(body[0:2], uint16(idx))
		binary.LittleEndian.PutUint16(body[2:4], uint16(total))
		copy(body[4:], data[start:end])
		resp = append(resp, Response{Cmd: client.CmdConfigData, Payload: body})
	}
	return resp
}

// handleUploadChunk accumulates one SET_CONFIG/LOAD_BINARY chunk and, on
// the last one, calls commit with the reassembled bytes. commit reports
// whether the upload is accepted.
func (d *Device) handleUploadChunk(reqCmd, ackCmd byte, payload []byte, commit func([]byte) bool) []Response {
	if len(payload) < 4 {
		return []Response{{Cmd: ackCmd, Payload: []byte{0}}}
	}
	idx := int(binary.LittleEndian.Uint16(payload[0:2]))
	total := int(binary.LittleEndian.Uint16(payload[2:4]))
	if idx == 0 || d.uploadCmd != reqCmd {
		d.uploadBuf = nil
		d.uploadTotal = total
		d.uploadCmd = reqCmd
	}
	d.uploadBuf = append(d.uploadBuf, payload[4:]...)

	ack := make([]byte, 4)
	if idx < total-1 {
		ack[0] = 1
		return []Response{{Cmd: ackCmd, Payload: ack}}
	}
	ok := commit(d.uploadBuf)
	d.uploadBuf, d.uploadTotal, d.uploadCmd = nil, 0, 0
	if !ok {
		return []Response{{Cmd: ackCmd, Payload: []byte{0, 0, 0, 0}}}
	}
	channels := 0
	if d.cfg != nil {
		channels = len(d.cfg.Channels)
	}
	ack[0] = 1
	binary.LittleEndian.PutUint16(ack[2:4], uint16(channels))
	return []Response{{Cmd: ackCmd, Payload: ack}}
}

// applyConfig decodes and validates data and replaces the active config
// with it. SET_CONFIG is destructive: a rejected upload leaves the device
// with no active config, not the previous one.
func (d *Device) applyConfig(data []byte) bool {
	cfg, err := config.Decode(data)
	if err != nil {
		metrics.IncError(metrics.ErrConfigParse)
		d.cfg = nil
		d.rt = newRuntime(nil)
		return false
	}
	if err := config.Validate(cfg); err != nil {
		metrics.IncConfigValidationError("emulator_reject")
		d.cfg = nil
		d.rt = newRuntime(nil)
		return false
	}
	d.cfg = cfg
	d.rt = newRuntime(cfg)
	return true
}

func (d *Device) saveConfig(ctx context.Context) byte {
	if d.cfg == nil {
		return 0
	}
	enc, err := config.Encode(d.cfg)
	if err != nil {
		return 0
	}
	if err := d.store.Save(ctx, enc); err != nil {
		metrics.IncError(metrics.ErrStoreBackend)
		return 0
	}
	return 1
}

func (d *Device) clearConfig(ctx context.Context) byte {
	if err := d.store.Clear(ctx); err != nil {
		metrics.IncError(metrics.ErrStoreBackend)
		return 0
	}
	d.cfg = nil
	d.rt = newRuntime(nil)
	return 1
}

func (d *Device) handleStartStream(payload []byte) {
	if len(payload) < 4 {
		return
	}
	d.streamRateHz = binary.LittleEndian.Uint16(payload[0:2])
	d.streamFlags = telemetry.SectionFlags(binary.LittleEndian.Uint16(payload[2:4]))
	d.streaming = true
}

func (d *Device) handleSetOutput(payload []byte) byte {
	if len(payload) < 6 {
		return 0
	}
	id := binary.LittleEndian.Uint16(payload[0:2])
	bits := binary.LittleEndian.Uint32(payload[2:6])
	value := math.Float32frombits(bits)
	if _, ok := d.rt.values[id]; !ok {
		return 0
	}
	d.rt.values[id] = int32(value)
	return 1
}

// Streaming reports whether START_STREAM is active and, if so, the
// configured rate and section flags.
func (d *Device) Streaming() (bool, uint16, telemetry.SectionFlags) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming, d.streamRateHz, d.streamFlags
}

// Tick advances the simulated graph one step and renders a telemetry
// packet for the currently configured section flags.
func (d *Device) Tick(timestampMS uint32) *telemetry.Packet {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rt.Step()
	d.streamCount++
	return d.renderTelemetry(timestampMS)
}

func errorPayload(code uint16, msg string) []byte {
	b := make([]byte, 3+len(msg))
	binary.LittleEndian.PutUint16(b[0:2], code)
	b[2] = byte(len(msg))
	copy(b[3:], msg)
	return b
}
