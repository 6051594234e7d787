package codec

import (
	"errors"
	"reflect"
	"smarthub/pkg/frame"
	"testing"
)

func sampleStream(t *testing.T, count int) (frames []frame.Frame, stream []byte) {
	t.Helper()

	registry := frame.DefaultRegistry()
	for i := 0; i < count; i++ {
		name := []string{"temperature", "humidity", "fire_alarm", "gas_leakage"}[i%4]
		f, err := registry.New(name)
		if err != nil {
			t.Fatalf("failed to create frame: %v", err)
		}
		if err := registry.SetTimestamp(&f, uint64(1700000000000+i)); err != nil {
			t.Fatalf("failed to stamp frame: %v", err)
		}

		data, err := f.Serialize()
		if err != nil {
			t.Fatalf("serialize failed: %v", err)
		}
		frames = append(frames, f)
		stream = append(stream, data...)
	}
	return
}

func TestAccumulator_AnyChunking(t *testing.T) {
	want, stream := sampleStream(t, 12)

	tests := []struct {
		name  string
		chunk int
	}{
		{"one byte at a time", 1},
		{"two bytes", 2},
		{"odd chunk", 7},
		{"larger than a frame", 40},
		{"whole stream", len(stream)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccumulator(0)

			var got []frame.Frame
			for start := 0; start < len(stream); start += tt.chunk {
				end := min(start+tt.chunk, len(stream))
				frames, err := acc.Feed(stream[start:end])
				if err != nil {
					t.Fatalf("expected no error at offset %d, got %v", start, err)
				}
				got = append(got, frames...)
			}

			if !reflect.DeepEqual(got, want) {
				t.Fatalf("decoded frames differ from sent frames:\n got  %v\n want %v", got, want)
			}
			if acc.Buffered() != 0 {
				t.Fatalf("expected empty buffer after full stream, got %d bytes", acc.Buffered())
			}
		})
	}
}

func TestAccumulator_Overflow(t *testing.T) {
	_, stream := sampleStream(t, 1)

	// A truncated frame bigger than the limit keeps waiting and trips the bound
	acc := NewAccumulator(4)
	_, err := acc.Feed(stream[:len(stream)-1])
	if !errors.Is(err, ErrBufferOverflow) {
		t.Fatalf("expected ErrBufferOverflow, got %v", err)
	}

	acc.Reset()
	if acc.Buffered() != 0 {
		t.Fatalf("expected reset to drop buffered bytes, got %d", acc.Buffered())
	}

	frames, err := acc.Feed(stream)
	if err != nil || len(frames) != 1 {
		t.Fatalf("expected 1 frame after reset, got %d (err %v)", len(frames), err)
	}
}

func TestAccumulator_Malformed(t *testing.T) {
	want, stream := sampleStream(t, 2)

	acc := NewAccumulator(0)
	frames, err := acc.Feed(append(append([]byte(nil), stream...), 0xff))
	if !errors.Is(err, frame.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if !reflect.DeepEqual(frames, want) {
		t.Fatalf("expected frames before the bad byte to be returned, got %v", frames)
	}
	if acc.Buffered() != 1 {
		t.Fatalf("expected the bad byte to remain buffered, got %d bytes", acc.Buffered())
	}
}

func TestAccumulator_SkipResyncs(t *testing.T) {
	want, stream := sampleStream(t, 2)

	acc := NewAccumulator(0)
	_, err := acc.Feed(append([]byte{0xff, 0xff}, stream...))
	if !errors.Is(err, frame.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}

	var got []frame.Frame
	skipped := 0
	for errors.Is(err, frame.ErrMalformed) {
		skipped += acc.Skip(1)
		var frames []frame.Frame
		frames, err = acc.Feed(nil)
		got = append(got, frames...)
	}
	if err != nil {
		t.Fatalf("expected clean decode after skipping, got %v", err)
	}
	if skipped != 2 {
		t.Fatalf("expected 2 skipped bytes, got %d", skipped)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected frames after the bad bytes, got %v", got)
	}
	if acc.Buffered() != 0 {
		t.Fatalf("expected empty buffer, got %d bytes", acc.Buffered())
	}
	if dropped := acc.Skip(5); dropped != 0 {
		t.Fatalf("expected nothing to skip on an empty buffer, got %d", dropped)
	}
}
