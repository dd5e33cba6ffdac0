package telemetry

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rakyury/pmu30-host/internal/protoerr"
)

func TestHeaderOnlyRoundTrip(t *testing.T) {
	p := &Packet{
		StreamCounter: 42,
		TimestampMS:   100000,
		InputVoltage:  13800,
		MCUTemp:       325,
		BoardTemp:     301,
		TotalCurrent:  4200,
	}
	data := p.Encode()
	if len(data) != HeaderSize {
		t.Fatalf("len(data) = %d, want %d", len(data), HeaderSize)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestDinAndFaultsSections(t *testing.T) {
	p := &Packet{
		Flags:       SectionDin | SectionFaults,
		DinMask:     0b101,
		FaultStatus: 1,
		FaultFlags:  2,
	}
	data := p.Encode()
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !got.Din(0) || got.Din(1) || !got.Din(2) {
		t.Fatalf("Din bits wrong: mask=%b", got.DinMask)
	}
	if got.FaultStatus != 1 || got.FaultFlags != 2 {
		t.Fatalf("faults mismatch: %+v", got)
	}
}

func TestVirtualsSection(t *testing.T) {
	p := &Packet{
		Flags: SectionVirtuals,
		Virtuals: []VirtualEntry{
			{ID: 500, Value: -17},
			{ID: 501, Value: 4096},
		},
	}
	data := p.Encode()
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v, ok := got.VirtualValue(500)
	if !ok || v != -17 {
		t.Fatalf("VirtualValue(500) = %d, %v", v, ok)
	}
	if _, ok := got.VirtualValue(999); ok {
		t.Fatal("expected VirtualValue(999) to be absent")
	}
}

func TestSectionsAppearInBitAscendingOrderRegardlessOfFlagOrder(t *testing.T) {
	p := &Packet{Flags: SectionCurrents | SectionADC}
	p.ADC[0] = 0x1111
	p.Currents[0] = 0x2222
	data := p.Encode()
	// ADC (bit 0x01) must be encoded before CURRENTS (bit 0x40).
	want := HeaderSize + adcChannels*2 + currentChannels*2
	if len(data) != want {
		t.Fatalf("len(data) = %d, want %d", len(data), want)
	}
	if data[HeaderSize] != 0x11 || data[HeaderSize+adcChannels*2] != 0x22 {
		t.Fatalf("sections out of order: first ADC byte 0x%02X, first CURRENTS byte 0x%02X", data[HeaderSize], data[HeaderSize+adcChannels*2])
	}
}

func TestParseTruncatedHeader(t *testing.T) {
	_, err := Parse(make([]byte, 10))
	if !errors.Is(err, protoerr.ErrTelemetryTruncated) {
		t.Fatalf("err = %v, want ErrTelemetryTruncated", err)
	}
}

func TestParseTruncatedSectionBody(t *testing.T) {
	p := &Packet{Flags: SectionADC}
	data := p.Encode()
	_, err := Parse(data[:len(data)-5])
	if !errors.Is(err, protoerr.ErrTelemetryTruncated) {
		t.Fatalf("err = %v, want ErrTelemetryTruncated", err)
	}
}

func TestSectionFlagsString(t *testing.T) {
	f := SectionADC | SectionDin | SectionFaults
	if got, want := f.String(), "ADC|DIN|FAULTS"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if (SectionFlags(0)).String() != "NONE" {
		t.Fatal("empty flags should render NONE")
	}
}

func TestTrailingBytesIgnored(t *testing.T) {
	p := &Packet{Flags: SectionDin, DinMask: 7}
	data := append(p.Encode(), 0xDE, 0xAD)
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.DinMask != 7 {
		t.Fatalf("DinMask = %d, want 7", got.DinMask)
	}
}

func TestTypedAccessors(t *testing.T) {
	p := &Packet{InputVoltage: 13800, TotalCurrent: 2500, MCUTemp: 250}
	if got := p.InputVoltageTyped().String(); got == "" {
		t.Fatal("InputVoltageTyped() returned empty string")
	}
	if got := p.TotalCurrentTyped().String(); got == "" {
		t.Fatal("TotalCurrentTyped() returned empty string")
	}
}
