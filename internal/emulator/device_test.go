package emulator

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/rakyury/pmu30-host/internal/channel"
	"github.com/rakyury/pmu30-host/internal/client"
	"github.com/rakyury/pmu30-host/internal/config"
	"github.com/rakyury/pmu30-host/internal/emulator/store"
)

func sampleConfig() *config.Config {
	return &config.Config{
		Channels: []*channel.Channel{
			{
				ID: 50, Kind: channel.TypeDigitalInput, Flags: channel.FlagEnabled,
				HwDevice: channel.HwGPIO, SourceID: channel.RefNone, Name: "DIN0",
				Payload: &channel.DigitalInputPayload{GPIOPin: 0, ActiveHigh: true, DebounceMS: 10},
			},
			{
				ID: 100, Kind: channel.TypePowerOutput, Flags: channel.FlagEnabled,
				HwDevice: channel.HwPROFET, HwIndex: 1, SourceID: 50, Name: "OUT0",
				Payload: &channel.PowerOutputPayload{CurrentLimitMA: 5000},
			},
		},
	}
}

func TestHandlePingPong(t *testing.T) {
	d := NewDevice(context.Background(), "sess-1", store.NewMemStore())
	resp := d.Handle(context.Background(), client.CmdPing, nil)
	if len(resp) != 1 || resp[0].Cmd != client.CmdPong {
		t.Fatalf("ping: got %#v", resp)
	}
}

func TestHandleGetInfoEchoesSessionID(t *testing.T) {
	d := NewDevice(context.Background(), "SN-0099", store.NewMemStore())
	resp := d.Handle(context.Background(), client.CmdGetInfo, nil)
	if len(resp) != 1 || resp[0].Cmd != client.CmdInfoResp {
		t.Fatalf("get_info: got %#v", resp)
	}
	p := resp[0].Payload
	if len(p) != 4+16+32 {
		t.Fatalf("info payload length = %d, want %d", len(p), 4+16+32)
	}
	serial := string(trimZero(p[4:20]))
	if serial != "SN-0099" {
		t.Fatalf("serial = %q, want SN-0099", serial)
	}
}

func TestGetConfigWithoutConfigReturnsError(t *testing.T) {
	d := NewDevice(context.Background(), "sess", store.NewMemStore())
	resp := d.Handle(context.Background(), client.CmdGetConfig, nil)
	if len(resp) != 1 || resp[0].Cmd != client.CmdError {
		t.Fatalf("expected a single CmdError response, got %#v", resp)
	}
}

func TestSetConfigThenGetConfigRoundTrips(t *testing.T) {
	d := NewDevice(context.Background(), "sess", store.NewMemStore())
	cfg := sampleConfig()
	data, err := config.Encode(cfg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	chunkPayload := func(idx, total uint16, body []byte) []byte {
		b := make([]byte, 4+len(body))
		binary.LittleEndian.PutUint16(b[0:2], idx)
		binary.LittleEndian.PutUint16(b[2:4], total)
		copy(b[4:], body)
		return b
	}

	resp := d.Handle(context.Background(), client.CmdSetConfig, chunkPayload(0, 1, data))
	if len(resp) != 1 || resp[0].Cmd != client.CmdConfigAck || resp[0].Payload[0] != 1 {
		t.Fatalf("set_config ack: got %#v", resp)
	}

	got := d.Handle(context.Background(), client.CmdGetConfig, nil)
	if len(got) != 1 || got[0].Cmd != client.CmdConfigData {
		t.Fatalf("get_config: got %#v", got)
	}
	total := binary.LittleEndian.Uint16(got[0].Payload[2:4])
	if total != 1 {
		t.Fatalf("expected a single chunk, total = %d", total)
	}
	roundTripped, err := config.Decode(got[0].Payload[4:])
	if err != nil {
		t.Fatalf("decode round trip: %v", err)
	}
	if len(roundTripped.Channels) != len(cfg.Channels) {
		t.Fatalf("got %d channels, want %d", len(roundTripped.Channels), len(cfg.Channels))
	}
}

func TestSetConfigRejectsMalformedUpload(t *testing.T) {
	d := NewDevice(context.Background(), "sess", store.NewMemStore())
	garbage := make([]byte, 4+8)
	binary.LittleEndian.PutUint16(garbage[0:2], 0)
	binary.LittleEndian.PutUint16(garbage[2:4], 1)
	resp := d.Handle(context.Background(), client.CmdSetConfig, garbage)
	if len(resp) != 1 || resp[0].Cmd != client.CmdConfigAck || resp[0].Payload[0] != 0 {
		t.Fatalf("expected a rejected ack, got %#v", resp)
	}
}

func TestSaveAndClearConfigRoundTripThroughStore(t *testing.T) {
	st := store.NewMemStore()
	d := NewDevice(context.Background(), "sess", st)
	d.cfg = sampleConfig()
	d.rt = newRuntime(d.cfg)

	resp := d.Handle(context.Background(), client.CmdSaveConfig, nil)
	if len(resp) != 1 || resp[0].Payload[0] != 1 {
		t.Fatalf("save_config: got %#v", resp)
	}

	fresh := NewDevice(context.Background(), "sess-2", st)
	if fresh.cfg == nil || len(fresh.cfg.Channels) != len(d.cfg.Channels) {
		t.Fatalf("expected a freshly constructed Device to load the saved config")
	}

	resp = d.Handle(context.Background(), client.CmdClearConfig, nil)
	if len(resp) != 1 || resp[0].Payload[0] != 1 {
		t.Fatalf("clear_config: got %#v", resp)
	}
	if d.cfg != nil {
		t.Fatalf("expected cfg to be nil after clear_config")
	}
}

func TestSetOutputRejectsUnknownChannel(t *testing.T) {
	d := NewDevice(context.Background(), "sess", store.NewMemStore())
	d.cfg = sampleConfig()
	d.rt = newRuntime(d.cfg)

	payload := make([]byte, 6)
	binary.LittleEndian.PutUint16(payload[0:2], 9999)
	binary.LittleEndian.PutUint32(payload[2:6], math.Float32bits(1))
	resp := d.Handle(context.Background(), client.CmdSetOutput, payload)
	if resp[0].Payload[0] != 0 {
		t.Fatalf("expected rejection for unknown channel id")
	}
}

func TestSetOutputAppliesKnownChannel(t *testing.T) {
	d := NewDevice(context.Background(), "sess", store.NewMemStore())
	d.cfg = sampleConfig()
	d.rt = newRuntime(d.cfg)

	payload := make([]byte, 6)
	binary.LittleEndian.PutUint16(payload[0:2], 100)
	binary.LittleEndian.PutUint32(payload[2:6], math.Float32bits(42))
	resp := d.Handle(context.Background(), client.CmdSetOutput, payload)
	if resp[0].Payload[0] != 1 {
		t.Fatalf("expected an accepted ack, got %#v", resp)
	}
	if d.rt.get(100) != 42 {
		t.Fatalf("rt.values[100] = %d, want 42", d.rt.get(100))
	}
}

func TestStartStopStreamToggleStreaming(t *testing.T) {
	d := NewDevice(context.Background(), "sess", store.NewMemStore())
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:2], 10)
	binary.LittleEndian.PutUint16(payload[2:4], 0x0001)
	d.Handle(context.Background(), client.CmdStartStream, payload)
	if on, rate, _ := d.Streaming(); !on || rate != 10 {
		t.Fatalf("expected streaming at 10Hz, got on=%v rate=%d", on, rate)
	}
	d.Handle(context.Background(), client.CmdStopStream, nil)
	if on, _, _ := d.Streaming(); on {
		t.Fatalf("expected streaming to stop")
	}
}

func TestTickAdvancesStreamCount(t *testing.T) {
	d := NewDevice(context.Background(), "sess", store.NewMemStore())
	d.cfg = sampleConfig()
	d.rt = newRuntime(d.cfg)
	pkt := d.Tick(1000)
	if pkt.StreamCounter != 1 {
		t.Fatalf("StreamCounter = %d, want 1", pkt.StreamCounter)
	}
	pkt2 := d.Tick(1100)
	if pkt2.StreamCounter != 2 {
		t.Fatalf("StreamCounter = %d, want 2", pkt2.StreamCounter)
	}
}

func TestUnknownCommandReturnsError(t *testing.T) {
	d := NewDevice(context.Background(), "sess", store.NewMemStore())
	resp := d.Handle(context.Background(), 0x7F, nil)
	if len(resp) != 1 || resp[0].Cmd != client.CmdError {
		t.Fatalf("expected CmdError, got %#v", resp)
	}
}

func trimZero(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
