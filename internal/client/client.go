// Package client composes internal/transport, internal/config and
// internal/telemetry into the PMU-30 device command surface: the stable
// command catalogue of spec.md §4.6, chunked config upload/download, and
// the telemetry pause arbiter. Grounded on the teacher's cmd/can-server
// backend.go, which plays the analogous "compose transport + protocol
// into a small RPC-shaped API" role for the CAN bridge.
package client

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/blang/semver"

	"github.com/rakyury/pmu30-host/internal/config"
	"github.com/rakyury/pmu30-host/internal/logging"
	"github.com/rakyury/pmu30-host/internal/metrics"
	"github.com/rakyury/pmu30-host/internal/protoerr"
	"github.com/rakyury/pmu30-host/internal/telemetry"
	"github.com/rakyury/pmu30-host/internal/transport"
)

// Command catalogue (spec.md §4.6, stable u8 IDs).
const (
	CmdPing         byte = 0x01
	CmdPong         byte = 0x02
	CmdGetInfo      byte = 0x10
	CmdInfoResp     byte = 0x11
	CmdGetConfig    byte = 0x20
	CmdConfigData   byte = 0x21
	CmdSetConfig    byte = 0x22
	CmdConfigAck    byte = 0x23
	CmdSaveConfig   byte = 0x24
	CmdFlashAck     byte = 0x25
	CmdClearConfig  byte = 0x26
	CmdClearAck     byte = 0x27
	CmdStartStream  byte = 0x30
	CmdStopStream   byte = 0x31
	CmdTelemetry    byte = 0x32
	CmdSetOutput    byte = 0x40
	CmdOutputAck    byte = 0x41
	CmdLoadBinary   byte = 0x68
	CmdBinaryAck    byte = 0x69
	CmdError        byte = 0xE1
)

// ChunkSize is the recommended SET_CONFIG/LOAD_BINARY chunk payload size
// (spec.md §4.6: "recommended 1024 bytes ... any value ≤ 2 KB acceptable").
const ChunkSize = 1024

// StreamState is the telemetry pause arbiter's observable state.
type StreamState int

const (
	StreamStopped StreamState = iota
	StreamStarting
	StreamStreaming
	StreamPaused
)

func (s StreamState) String() string {
	switch s {
	case StreamStopped:
		return "STOPPED"
	case StreamStarting:
		return "STARTING"
	case StreamStreaming:
		return "STREAMING"
	case StreamPaused:
		return "PAUSED"
	default:
		return "UNKNOWN"
	}
}

// DeviceInfo is the decoded GET_INFO response.
type DeviceInfo struct {
	FirmwareVersion semver.Version
	HardwareRev     uint8
	Serial          string
	Name            string
}

// DeviceClient is a single-owner session over one transport.
type DeviceClient struct {
	tr *transport.Transport

	streamState StreamState
	pauseReason string
}

// New wraps tr in a DeviceClient. The caller owns running tr.Poll.
func New(tr *transport.Transport) *DeviceClient {
	return &DeviceClient{tr: tr}
}

func (c *DeviceClient) call(ctx context.Context, cmd byte, payload []byte) (transport.AppFrame, error) {
	start := time.Now()
	resp, err := c.tr.QueueReliable(ctx, cmd, payload)
	metrics.ObserveCommandLatency(commandName(cmd), time.Since(start).Seconds())
	if err != nil {
		metrics.IncError(metrics.ErrDeviceProto)
		return transport.AppFrame{}, err
	}
	if resp.Cmd == CmdError {
		return transport.AppFrame{}, decodeDeviceError(resp.Payload)
	}
	return resp, nil
}

func decodeDeviceError(payload []byte) error {
	if len(payload) < 3 {
		return &protoerr.DeviceError{Code: 0, Message: "malformed ERROR frame"}
	}
	code := uint16(payload[0]) | uint16(payload[1])<<8
	n := int(payload[2])
	msg := ""
	if len(payload) >= 3+n {
		msg = string(payload[3 : 3+n])
	}
	return &protoerr.DeviceError{Code: code, Message: msg}
}

func commandName(cmd byte) string {
	switch cmd {
	case CmdPing:
		return "ping"
	case CmdGetInfo:
		return "get_info"
	case CmdGetConfig:
		return "get_config"
	case CmdSetConfig:
		return "set_config"
	case CmdSaveConfig:
		return "save_config"
	case CmdClearConfig:
		return "clear_config"
	case CmdSetOutput:
		return "set_output"
	case CmdLoadBinary:
		return "load_binary"
	default:
		return fmt.Sprintf("0x%02X", cmd)
	}
}

// Ping issues PING and blocks for PONG.
func (c *DeviceClient) Ping(ctx context.Context) error {
	_, err := c.call(ctx, CmdPing, nil)
	return err
}

// GetInfo issues GET_INFO and decodes the INFO_RESP payload.
func (c *DeviceClient) GetInfo(ctx context.Context) (*DeviceInfo, error) {
	resp, err := c.call(ctx, CmdGetInfo, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Payload) < 4+16+32 {
		return nil, fmt.Errorf("client: %w: short INFO_RESP", protoerr.ErrProtocol)
	}
	p := resp.Payload
	info := &DeviceInfo{
		FirmwareVersion: semver.Version{Major: uint64(p[0]), Minor: uint64(p[1]), Patch: uint64(p[2])},
		HardwareRev:     p[3],
		Serial:          trimZero(p[4:20]),
		Name:            trimZero(p[20:52]),
	}
	return info, nil
}

func trimZero(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}

// GetConfig downloads and reassembles the device's active config by
// issuing GET_CONFIG and collecting CONFIG_DATA chunks in order.
func (c *DeviceClient) GetConfig(ctx context.Context) (*config.Config, error) {
	resp, err := c.call(ctx, CmdGetConfig, nil)
	if err != nil {
		return nil, err
	}
	var data []byte
	expected := uint16(0)
	for {
		if len(resp.Payload) < 4 {
			return nil, fmt.Errorf("client: %w: short CONFIG_DATA chunk", protoerr.ErrProtocol)
		}
		chunkIdx := uint16(resp.Payload[0]) | uint16(resp.Payload[1])<<8
		total := uint16(resp.Payload[2]) | uint16(resp.Payload[3])<<8
		if chunkIdx != expected {
			return nil, fmt.Errorf("client: %w: chunk %d, expected %d", protoerr.ErrChunkOutOfOrder, chunkIdx, expected)
		}
		data = append(data, resp.Payload[4:]...)
		expected++
		if expected >= total {
			break
		}
		next, ok := <-c.tr.Inbox()
		if !ok {
			return nil, fmt.Errorf("client: transport closed mid-transfer")
		}
		resp = next
	}
	return config.Decode(data)
}

// SetConfig validates cfg, encodes it, and uploads it in ChunkSize
// chunks, invoking progress after each acknowledged chunk. A failed
// upload leaves the device with no active config (spec.md §4.6):
// callers should retry or send ClearConfig.
func (c *DeviceClient) SetConfig(ctx context.Context, cfg *config.Config, progress func(sent, total int)) (channelsLoaded int, err error) {
	if err := config.Validate(cfg); err != nil {
		return 0, err
	}
	data, err := config.Encode(cfg)
	if err != nil {
		return 0, err
	}
	c.pause("set_config")
	defer c.resume()

	total := (len(data) + ChunkSize - 1) / ChunkSize
	if total == 0 {
		total = 1
	}
	for idx := 0; idx < total; idx++ {
		start := idx * ChunkSize
		end := start + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		body := make([]byte, 4+(end-start))
		body[0] = byte(idx)
		body[1] = byte(idx >> 8)
		body[2] = byte(total)
		body[3] = byte(total >> 8)
		copy(body[4:], data[start:end])

		resp, err := c.call(ctx, CmdSetConfig, body)
		if err != nil {
			return 0, err
		}
		if len(resp.Payload) < 3 || resp.Payload[0] == 0 {
			return 0, fmt.Errorf("client: %w: device rejected chunk %d", protoerr.ErrProtocol, idx)
		}
		if progress != nil {
			progress(idx+1, total)
		}
		if idx == total-1 {
			channelsLoaded = len(cfg.Channels)
		}
	}
	metrics.IncConfigUpload()
	return channelsLoaded, nil
}

// SaveConfig persists the device's active config to flash.
func (c *DeviceClient) SaveConfig(ctx context.Context) error {
	c.pause("save_config")
	defer c.resume()
	resp, err := c.call(ctx, CmdSaveConfig, nil)
	if err != nil {
		return err
	}
	if len(resp.Payload) < 1 || resp.Payload[0] == 0 {
		return fmt.Errorf("client: %w: flash save failed", protoerr.ErrProtocol)
	}
	return nil
}

// ClearConfig tears down the device's active config.
func (c *DeviceClient) ClearConfig(ctx context.Context) error {
	resp, err := c.call(ctx, CmdClearConfig, nil)
	if err != nil {
		return err
	}
	if len(resp.Payload) < 1 || resp.Payload[0] == 0 {
		return fmt.Errorf("client: %w: clear config failed", protoerr.ErrProtocol)
	}
	return nil
}

// StartStream subscribes to telemetry at rateHz with the given section
// flags. It is unreliable and a no-op while the pause arbiter is paused.
func (c *DeviceClient) StartStream(rateHz uint16, flags telemetry.SectionFlags) error {
	if c.streamState == StreamPaused {
		return nil
	}
	c.streamState = StreamStarting
	body := []byte{byte(rateHz), byte(rateHz >> 8), byte(flags), byte(flags >> 8)}
	if err := c.tr.SendUnreliable(CmdStartStream, body); err != nil {
		return err
	}
	c.streamState = StreamStreaming
	return nil
}

// stopStreamQuiescence bounds how long StopStream waits for in-flight
// telemetry to stop arriving before giving up on draining it (spec.md
// §4.5: STOP_STREAM is best-effort, so the device may have already sent
// a few more TELEMETRY frames before it processes the unsubscribe).
const stopStreamQuiescence = 250 * time.Millisecond

// StopStream unsubscribes from telemetry, then drains Inbox of any
// TELEMETRY frames still arriving until a brief quiescence window
// elapses, so the caller never sees telemetry after StopStream returns.
func (c *DeviceClient) StopStream() error {
	err := c.tr.SendUnreliable(CmdStopStream, nil)
	c.streamState = StreamStopped
	c.drainTelemetry()
	return err
}

// drainTelemetry discards Inbox frames until stopStreamQuiescence passes
// with nothing arriving, resetting the window on every frame seen.
func (c *DeviceClient) drainTelemetry() {
	timer := time.NewTimer(stopStreamQuiescence)
	defer timer.Stop()
	for {
		select {
		case af := <-c.tr.Inbox():
			if af.Cmd != CmdTelemetry {
				logging.L().Debug("stop_stream_drain_unexpected_frame", "cmd", af.Cmd, "reliable", af.Reliable)
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(stopStreamQuiescence)
		case <-timer.C:
			return
		}
	}
}

// SetOutput issues SET_OUTPUT for a virtual/physical output channel.
func (c *DeviceClient) SetOutput(ctx context.Context, channelID uint16, value float32) error {
	body := make([]byte, 6)
	body[0] = byte(channelID)
	body[1] = byte(channelID >> 8)
	putFloat32(body[2:6], value)
	resp, err := c.call(ctx, CmdSetOutput, body)
	if err != nil {
		return err
	}
	if len(resp.Payload) < 1 || resp.Payload[0] == 0 {
		return fmt.Errorf("client: %w: set output rejected", protoerr.ErrProtocol)
	}
	return nil
}

// LoadBinary uploads a raw firmware/binary blob in ChunkSize chunks,
// mirroring SetConfig's chunking shape but against the LOAD_BINARY
// command; the final BINARY_ACK reports the channel count instantiated.
func (c *DeviceClient) LoadBinary(ctx context.Context, data []byte, progress func(sent, total int)) (channelsLoaded int, err error) {
	c.pause("load_binary")
	defer c.resume()

	total := (len(data) + ChunkSize - 1) / ChunkSize
	if total == 0 {
		total = 1
	}
	for idx := 0; idx < total; idx++ {
		start := idx * ChunkSize
		end := start + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		body := make([]byte, 4+(end-start))
		body[0] = byte(idx)
		body[1] = byte(idx >> 8)
		body[2] = byte(total)
		body[3] = byte(total >> 8)
		copy(body[4:], data[start:end])

		resp, err := c.call(ctx, CmdLoadBinary, body)
		if err != nil {
			return 0, err
		}
		if len(resp.Payload) < 4 || resp.Payload[0] == 0 {
			return 0, fmt.Errorf("client: %w: device rejected binary chunk %d", protoerr.ErrProtocol, idx)
		}
		if progress != nil {
			progress(idx+1, total)
		}
		if idx == total-1 {
			channelsLoaded = int(uint16(resp.Payload[2]) | uint16(resp.Payload[3])<<8)
		}
	}
	return channelsLoaded, nil
}

func putFloat32(b []byte, f float32) {
	bits := math.Float32bits(f)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

// pause transitions the stream arbiter into PAUSED for the duration of a
// blocking operation (config upload, flash save), resuming afterward.
func (c *DeviceClient) pause(reason string) {
	if c.streamState == StreamStreaming {
		c.pauseReason = reason
		c.streamState = StreamPaused
		logging.L().Debug("stream_paused", "reason", reason)
	}
}

func (c *DeviceClient) resume() {
	if c.streamState == StreamPaused {
		c.streamState = StreamStreaming
		logging.L().Debug("stream_resumed", "reason", c.pauseReason)
		c.pauseReason = ""
	}
}

// StreamState reports the pause arbiter's current state.
func (c *DeviceClient) StreamState() StreamState { return c.streamState }
