package frame

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func mustFrame(t *testing.T, registry *Registry, name string, values map[string]any) (f Frame) {
	t.Helper()

	f, err := registry.New(name)
	if err != nil {
		t.Fatalf("failed to create %s frame: %v", name, err)
	}
	for field, value := range values {
		if err := registry.Set(&f, field, value); err != nil {
			t.Fatalf("failed to set %s.%s: %v", name, field, err)
		}
	}
	return
}

func TestDeserializeMany(t *testing.T) {
	registry := DefaultRegistry()

	temp := mustFrame(t, registry, "temperature", map[string]any{"temperature": 21.5, FieldDeviceID: uint8(2)})
	alarm := mustFrame(t, registry, "fire_alarm", map[string]any{"fire_alarm": true})
	gas := mustFrame(t, registry, "gas_leakage", map[string]any{"gas_leakage": 812, FieldTimestamp: uint64(1700000000123)})

	var stream []byte
	for _, f := range []Frame{temp, alarm, gas} {
		data, err := f.Serialize()
		if err != nil {
			t.Fatalf("serialize failed: %v", err)
		}
		stream = append(stream, data...)
	}

	tests := []struct {
		name       string
		input      []byte
		wantFrames []Frame
		wantRest   []byte
	}{
		{
			name:       "empty input",
			input:      nil,
			wantFrames: nil,
			wantRest:   nil,
		},
		{
			name:       "all complete",
			input:      stream,
			wantFrames: []Frame{temp, alarm, gas},
			wantRest:   []byte{},
		},
		{
			name:       "partial trailing frame kept",
			input:      stream[:len(stream)-3],
			wantFrames: []Frame{temp, alarm},
			wantRest:   nil, // checked by length below
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, rest, err := DeserializeMany(tt.input)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(frames) != len(tt.wantFrames) {
				t.Fatalf("expected %d frames, got %d", len(tt.wantFrames), len(frames))
			}
			for i := range frames {
				if !reflect.DeepEqual(frames[i], tt.wantFrames[i]) {
					t.Fatalf("frame %d mismatch:\n got  %#v\n want %#v", i, frames[i], tt.wantFrames[i])
				}
			}

			consumed := 0
			for _, f := range frames {
				data, _ := f.Serialize()
				consumed += len(data)
			}
			if !bytes.Equal(rest, tt.input[consumed:]) {
				t.Fatalf("expected rest of %d bytes, got %d", len(tt.input)-consumed, len(rest))
			}
		})
	}
}

func TestDeserializeMany_Malformed(t *testing.T) {
	registry := DefaultRegistry()
	good := mustFrame(t, registry, "humidity", map[string]any{"humidity": 40.0})
	data, err := good.Serialize()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	tests := []struct {
		name    string
		garbage []byte
	}{
		{"stray break byte", []byte{0xff}},
		{"integer instead of frame", []byte{0x01}},
		{"array of wrong length", []byte{0x83, 0x01, 0x80, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := append(append([]byte(nil), data...), tt.garbage...)

			frames, rest, err := DeserializeMany(input)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
			if len(frames) != 1 {
				t.Fatalf("expected the valid leading frame to be decoded, got %d frames", len(frames))
			}
			if !bytes.Equal(rest, tt.garbage) {
				t.Fatalf("expected rest to start at the malformed bytes, got % x", rest)
			}
		})
	}
}

func TestRegistry_FieldAccess(t *testing.T) {
	registry := DefaultRegistry()

	tests := []struct {
		name    string
		message string
		field   string
		value   any
		wantErr error
		want    any
	}{
		{"device id on sensor message", "temperature", FieldDeviceID, uint8(7), nil, uint64(7)},
		{"timestamp", "humidity", FieldTimestamp, uint64(1700000000000), nil, uint64(1700000000000)},
		{"float from int", "temperature", "temperature", 20, nil, float64(20)},
		{"ping has no device id", "ping", FieldDeviceID, uint8(1), ErrFieldNotFound, nil},
		{"unknown field", "fire_alarm", "smoke", true, ErrFieldNotFound, nil},
		{"wrong kind", "fire_alarm", "fire_alarm", "yes", ErrFieldType, nil},
		{"negative into unsigned", "gas_leakage", "gas_leakage", -4, ErrFieldType, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := registry.New(tt.message)
			if err != nil {
				t.Fatalf("failed to create frame: %v", err)
			}

			err = registry.Set(&f, tt.field, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			got, err := registry.Get(f, tt.field)
			if err != nil {
				t.Fatalf("expected no error reading back, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	registry := DefaultRegistry()

	f := Frame{Type: 999, Fields: []any{uint64(1)}}
	if err := registry.SetDeviceID(&f, 1); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if err := registry.Validate(f); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType from Validate, got %v", err)
	}
}

func TestRegistry_Register(t *testing.T) {
	registry := DefaultRegistry()

	tests := []struct {
		name    string
		schema  Schema
		wantErr bool
	}{
		{"new type", Schema{Type: 20, Name: "pressure", Fields: []FieldDesc{{FieldDeviceID, KindUint}, {"pressure", KindFloat}}}, false},
		{"duplicate id", Schema{Type: TypeHumidity, Name: "other"}, true},
		{"duplicate name", Schema{Type: 21, Name: "humidity"}, true},
		{"duplicate field", Schema{Type: 22, Name: "dup", Fields: []FieldDesc{{"a", KindUint}, {"a", KindBool}}}, true},
		{"no name", Schema{Type: 23}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.Register(tt.schema)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestRegistry_Validate(t *testing.T) {
	registry := DefaultRegistry()

	f := mustFrame(t, registry, "temperature", nil)
	if err := registry.Validate(f); err != nil {
		t.Fatalf("expected fresh frame to validate, got %v", err)
	}

	short := Frame{Type: TypeTemperature, Fields: []any{uint64(1)}}
	if err := registry.Validate(short); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for short frame, got %v", err)
	}

	wrong := f.Clone()
	wrong.Fields[2] = "hot"
	if err := registry.Validate(wrong); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for wrong field kind, got %v", err)
	}
	if _, ok := f.Fields[2].(float64); !ok {
		t.Fatalf("expected clone to leave original untouched, got %#v", f.Fields[2])
	}
}
