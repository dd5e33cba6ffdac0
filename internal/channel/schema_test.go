package channel

import "testing"

// TestPayloadSizesMatchStructs pins every kind's declared size against the
// actual Size() of its struct, so the registry table in payload.go and the
// struct layouts can never silently drift apart.
func TestPayloadSizesMatchStructs(t *testing.T) {
	for kind := range payloadSizes {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			p, err := NewPayload(kind)
			if err != nil {
				t.Fatalf("NewPayload(%s): %v", kind, err)
			}
			want := payloadSizes[kind]
			if got := p.Size(); got != want {
				t.Fatalf("Size() = %d, payloadSizes says %d", got, want)
			}
			if got := len(p.Marshal()); got != want {
				t.Fatalf("len(Marshal()) = %d, want %d", got, want)
			}
		})
	}
}

func TestUnknownKindRejected(t *testing.T) {
	if _, err := NewPayload(Type(0x99)); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestLogicPayloadRoundTrip(t *testing.T) {
	p := &LogicPayload{
		Operation:  LogicRisingEdge,
		InputCount: 2,
		Inputs:     [8]uint16{201, 202},
		Threshold:  1500,
		Invert:     true,
	}
	data := p.Marshal()
	got := &LogicPayload{}
	if err := got.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if *got != *p {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
	refs := got.References()
	if len(refs) != 2 || refs[0] != 201 || refs[1] != 202 {
		t.Fatalf("References() = %v, want [201 202]", refs)
	}
}

func TestLogicPayloadReferencesIgnoresUnusedInputs(t *testing.T) {
	p := &LogicPayload{InputCount: 1, Inputs: [8]uint16{201, RefNone, RefNone}}
	refs := p.References()
	if len(refs) != 1 || refs[0] != 201 {
		t.Fatalf("References() = %v, want [201]", refs)
	}
}

func TestHBridgeReferencesSkipRefNone(t *testing.T) {
	p := &HBridgePayload{FwdChannel: RefNone, RevChannel: 300}
	refs := p.References()
	if len(refs) != 1 || refs[0] != 300 {
		t.Fatalf("References() = %v, want [300]", refs)
	}
}

func TestDigitalInputPayloadRoundTrip(t *testing.T) {
	p := &DigitalInputPayload{GPIOPin: 5, ActiveHigh: true, DebounceMS: 40}
	data := p.Marshal()
	if len(data) != 4 {
		t.Fatalf("len(data) = %d, want 4", len(data))
	}
	got := &DigitalInputPayload{}
	if err := got.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if *got != *p {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestPayloadUnmarshalRejectsWrongLength(t *testing.T) {
	p := &FilterPayload{}
	if err := p.Unmarshal([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short payload")
	}
}
