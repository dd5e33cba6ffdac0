package channel

import "testing"

func TestChannelRoundTrip(t *testing.T) {
	c := &Channel{
		ID:       50,
		Kind:     TypeDigitalInput,
		Flags:    FlagEnabled | FlagInverted,
		HwDevice: HwGPIO,
		HwIndex:  3,
		SourceID: RefNone,
		Default:  0,
		Name:     "door_sw",
		Payload:  &DigitalInputPayload{GPIOPin: 3, ActiveHigh: false, DebounceMS: 25},
	}
	data, err := c.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Channel
	n, err := got.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if n != len(data) {
		t.Fatalf("consumed %d, want %d", n, len(data))
	}
	if got.ID != c.ID || got.Kind != c.Kind || got.Flags != c.Flags || got.Name != c.Name {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, c)
	}
	dip, ok := got.Payload.(*DigitalInputPayload)
	if !ok {
		t.Fatalf("payload type = %T, want *DigitalInputPayload", got.Payload)
	}
	if *dip != *(c.Payload.(*DigitalInputPayload)) {
		t.Fatalf("payload mismatch: got %+v", dip)
	}
}

func TestChannelUnmarshalTruncated(t *testing.T) {
	var c Channel
	if _, err := c.Unmarshal([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestChannelUnmarshalUnknownKind(t *testing.T) {
	c := &Channel{ID: 1, Kind: TypeNone, SourceID: RefNone, Name: "x", Payload: &NonePayload{}}
	data, err := c.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	data[2] = 0x99 // corrupt the kind tag
	var got Channel
	if _, err := got.Unmarshal(data); err == nil {
		t.Fatal("expected error for unknown kind tag")
	}
}

func TestChannelMarshalRejectsOversizeName(t *testing.T) {
	c := &Channel{Kind: TypeNone, Name: "this_name_is_definitely_longer_than_thirty_one_bytes", Payload: &NonePayload{}}
	if _, err := c.Marshal(); err == nil {
		t.Fatal("expected error for oversize name")
	}
}

func TestChannelReferencesCollectsSourceAndPayload(t *testing.T) {
	c := &Channel{
		Kind:     TypeHBridge,
		SourceID: 210,
		Payload:  &HBridgePayload{FwdChannel: 220, RevChannel: RefNone},
	}
	refs := c.References()
	if len(refs) != 2 || refs[0] != 210 || refs[1] != 220 {
		t.Fatalf("References() = %v, want [210 220]", refs)
	}
}
