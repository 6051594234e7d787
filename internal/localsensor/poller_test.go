package localsensor

import (
	"context"
	"errors"
	"smarthub/pkg/frame"
	"testing"
)

type fakeReader struct {
	holding map[uint16][]byte
	input   map[uint16][]byte
}

func (reader fakeReader) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	raw, ok := reader.holding[address]
	if !ok {
		return nil, errors.New("illegal data address")
	}
	return raw, nil
}

func (reader fakeReader) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	raw, ok := reader.input[address]
	if !ok {
		return nil, errors.New("illegal data address")
	}
	return raw, nil
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		datatype string
		raw      []byte
		gain     float64
		want     float64
		wantErr  bool
	}{
		{"u16 with gain", TypeU16, []byte{0x00, 0xd7}, 0.1, 21.5, false},
		{"s16 negative", TypeS16, []byte{0xff, 0xf6}, 1, -10, false},
		{"u32", TypeU32, []byte{0x00, 0x01, 0x00, 0x00}, 0, 65536, false},
		{"u32 low word first", TypeU32LE, []byte{0x00, 0x00, 0x00, 0x01}, 0, 65536, false},
		{"f32", TypeF32BE, []byte{0x41, 0xac, 0x00, 0x00}, 1, 21.5, false},
		{"short response", TypeU32, []byte{0x00, 0x01}, 1, 0, true},
		{"unknown type", "BCD", []byte{0x00, 0x01}, 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decode(tt.datatype, tt.raw, tt.gain)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPollOnce(t *testing.T) {
	registry := frame.DefaultRegistry()

	var emitted []frame.Frame
	poller, err := New(Config{
		Address: "127.0.0.1:502",
		Registers: []Register{
			{Message: "temperature", Address: 100, Datatype: TypeS16, Gain: 0.1},
			{Message: "fire_alarm", Address: 7, FunctionCode: FunctionInput, Datatype: TypeU16},
			{Message: "gas_leakage", Address: 200, Datatype: TypeU16},
			{Message: "humidity", Address: 300, Datatype: TypeU16}, // not mapped, read fails
		},
	}, registry, func(f frame.Frame) bool {
		emitted = append(emitted, f)
		return true
	})
	if err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	poller.reader = fakeReader{
		holding: map[uint16][]byte{100: {0x00, 0xd7}, 200: {0x03, 0x2c}},
		input:   map[uint16][]byte{7: {0x00, 0x01}},
	}

	if got := poller.pollOnce(context.Background()); got != 3 {
		t.Fatalf("expected 3 frames, got %d", got)
	}

	want := []struct {
		message string
		value   any
	}{
		{"temperature", 21.5},
		{"fire_alarm", true},
		{"gas_leakage", uint64(812)},
	}
	for i, w := range want {
		value, err := registry.Get(emitted[i], w.message)
		if err != nil {
			t.Fatalf("frame %d: failed to read %s: %v", i, w.message, err)
		}
		if f, ok := value.(float64); ok {
			if wf := w.value.(float64); f < wf-1e-9 || f > wf+1e-9 {
				t.Fatalf("frame %d: expected %v, got %v", i, w.value, value)
			}
			continue
		}
		if value != w.value {
			t.Fatalf("frame %d: expected %v, got %v", i, w.value, value)
		}
	}
}

func TestNew_RejectsBadRegisters(t *testing.T) {
	registry := frame.DefaultRegistry()
	emit := func(frame.Frame) bool { return true }

	tests := []struct {
		name string
		reg  Register
	}{
		{"unknown message", Register{Message: "pressure", Datatype: TypeU16}},
		{"unknown field", Register{Message: "temperature", Field: "kelvin", Datatype: TypeU16}},
		{"unknown datatype", Register{Message: "temperature", Datatype: "BCD"}},
		{"unsupported function", Register{Message: "temperature", Datatype: TypeU16, FunctionCode: 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Registers: []Register{tt.reg}}, registry, emit)
			if err == nil {
				t.Fatalf("expected config error")
			}
		})
	}
}
