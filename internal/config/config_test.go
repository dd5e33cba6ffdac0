package config

import (
	"errors"
	"testing"

	"github.com/rakyury/pmu30-host/internal/channel"
	"github.com/rakyury/pmu30-host/internal/protoerr"
)

func sampleConfig() *Config {
	din := &channel.Channel{
		ID:       50,
		Kind:     channel.TypeDigitalInput,
		Flags:    channel.FlagEnabled,
		HwDevice: channel.HwGPIO,
		HwIndex:  0,
		SourceID: channel.RefNone,
		Name:     "TestDIN",
		Payload:  &channel.DigitalInputPayload{GPIOPin: 0, ActiveHigh: true, DebounceMS: 0},
	}
	out := &channel.Channel{
		ID:       100,
		Kind:     channel.TypePowerOutput,
		Flags:    channel.FlagEnabled,
		HwDevice: channel.HwPROFET,
		HwIndex:  1,
		SourceID: 50,
		Name:     "OutLED",
		Payload: &channel.PowerOutputPayload{
			CurrentLimitMA: 5000,
			InrushLimitMA:  10000,
			InrushTimeMS:   100,
			SoftStartSteps: 0,
			SoftStartMS:    3,
			PWMFreqHz:      100,
			PWMDuty:        1,
		},
	}
	return &Config{Channels: []*channel.Channel{din, out}}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := sampleConfig()
	data, err := Encode(cfg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Channels) != 2 {
		t.Fatalf("len(Channels) = %d, want 2", len(got.Channels))
	}
	if got.Channels[0].ID != 50 || got.Channels[1].ID != 100 {
		t.Fatalf("ids = %d, %d", got.Channels[0].ID, got.Channels[1].ID)
	}
	if err := Validate(got); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	// round-trip law: encode(decode(b)) == b
	again, err := Encode(got)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if len(again) != len(data) {
		t.Fatalf("re-encoded length %d, want %d", len(again), len(data))
	}
	for i := range again {
		if again[i] != data[i] {
			t.Fatalf("re-encoded byte %d differs", i)
		}
	}
}

func TestConfigDanglingReference(t *testing.T) {
	cfg := sampleConfig()
	cfg.Channels[1].SourceID = 999
	err := Validate(cfg)
	if !errors.Is(err, protoerr.ErrDanglingRef) {
		t.Fatalf("err = %v, want ErrDanglingRef", err)
	}
}

func TestConfigDuplicateID(t *testing.T) {
	cfg := sampleConfig()
	cfg.Channels[1].ID = 50
	err := Validate(cfg)
	if !errors.Is(err, protoerr.ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}
}

func TestConfigCyclicReference(t *testing.T) {
	a := &channel.Channel{ID: 201, Kind: channel.TypeFilter, SourceID: channel.RefNone,
		Name: "a", Payload: &channel.FilterPayload{InputChannel: 202}}
	b := &channel.Channel{ID: 202, Kind: channel.TypeFilter, SourceID: channel.RefNone,
		Name: "b", Payload: &channel.FilterPayload{InputChannel: 201}}
	cfg := &Config{Channels: []*channel.Channel{a, b}}
	err := Validate(cfg)
	if !errors.Is(err, protoerr.ErrCyclicRef) {
		t.Fatalf("err = %v, want ErrCyclicRef", err)
	}
}

func TestConfigHwBindingOutputRequiresDevice(t *testing.T) {
	cfg := sampleConfig()
	cfg.Channels[1].HwDevice = channel.HwNone
	err := Validate(cfg)
	if !errors.Is(err, protoerr.ErrHwBinding) {
		t.Fatalf("err = %v, want ErrHwBinding", err)
	}
}

func TestConfigHwBindingVirtualRejectsDevice(t *testing.T) {
	f := &channel.Channel{ID: 300, Kind: channel.TypeFilter, HwDevice: channel.HwADC,
		SourceID: channel.RefNone, Name: "f", Payload: &channel.FilterPayload{InputChannel: channel.RefNone}}
	cfg := &Config{Channels: []*channel.Channel{f}}
	err := Validate(cfg)
	if !errors.Is(err, protoerr.ErrHwBinding) {
		t.Fatalf("err = %v, want ErrHwBinding", err)
	}
}

func TestConfigLogicInputCountRangeCheck(t *testing.T) {
	l := &channel.Channel{ID: 400, Kind: channel.TypeLogic, SourceID: channel.RefNone,
		Name: "l", Payload: &channel.LogicPayload{InputCount: 9}}
	cfg := &Config{Channels: []*channel.Channel{l}}
	err := Validate(cfg)
	if !errors.Is(err, protoerr.ErrRangeInvalid) {
		t.Fatalf("err = %v, want ErrRangeInvalid", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, err := Decode([]byte{0x01}); !errors.Is(err, protoerr.ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}

func TestDecodeTrailingBytesIsSizeMismatch(t *testing.T) {
	cfg := &Config{Channels: nil}
	data, _ := Encode(cfg)
	data = append(data, 0xFF)
	if _, err := Decode(data); !errors.Is(err, protoerr.ErrSizeMismatch) {
		t.Fatalf("err = %v, want ErrSizeMismatch", err)
	}
}

func TestEncodeEmptyConfig(t *testing.T) {
	data, err := Encode(&Config{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) != 2 || data[0] != 0 || data[1] != 0 {
		t.Fatalf("data = %v, want [0 0]", data)
	}
}
