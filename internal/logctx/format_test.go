package logctx

import (
	"testing"
	"time"
)

func TestEventFormat(t *testing.T) {
	ts := time.Date(2026, 3, 14, 6, 30, 0, 250000000, time.UTC)
	stamp := "[2026-03-14T06:30:00.250000000Z]"

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"complete", Event{ts, "Warn", []string{"Hub", "Ingest"}, "accumulator reset\n"}, stamp + " [Hub/Ingest] [Warn] accumulator reset\n"},
		{"no message", Event{ts, "Info", []string{"Hub"}, ""}, stamp + " [Hub] [Info]"},
		{"untagged", Event{ts, "Error", nil, "storage gone"}, stamp + " [Error] storage gone"},
		{"no severity", Event{ts, "", []string{"Delivery"}, "connected"}, stamp + " [Delivery] connected"},
		{"message only", Event{Message: "raw"}, "raw"},
		{"empty", Event{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.event.Format()
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPadTimestamp_FixedWidth(t *testing.T) {
	tests := []struct {
		name  string
		input time.Time
		want  string
	}{
		{"whole second", time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC), "2026-03-14T06:30:00.000000000Z"},
		{"single nanosecond", time.Date(2026, 3, 14, 6, 30, 0, 1, time.UTC), "2026-03-14T06:30:00.000000001Z"},
		{"offset zone", time.Date(2026, 3, 14, 6, 30, 0, 42000, time.FixedZone("CET", 3600)), "2026-03-14T06:30:00.000042000+01:00"},
	}

	width := len(tests[0].want)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := padTimestamp(tt.input)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
			if tt.input.Location() == time.UTC && len(got) != width {
				t.Fatalf("expected width %d, got %d", width, len(got))
			}
		})
	}
}
