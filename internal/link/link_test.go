package link

import "testing"

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Address
		wantErr bool
	}{
		{"colon separated", "24:6f:28:ab:0c:01", Address{0x24, 0x6f, 0x28, 0xab, 0x0c, 0x01}, false},
		{"dash separated", "24-6F-28-AB-0C-01", Address{0x24, 0x6f, 0x28, 0xab, 0x0c, 0x01}, false},
		{"bare", "FFFFFFFFFFFF", Broadcast, false},
		{"too short", "24:6f:28", Address{}, true},
		{"non hex", "24:6f:28:ab:0c:zz", Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			if reparsed, _ := ParseAddress(got.String()); reparsed != got {
				t.Fatalf("expected String to round trip, got %s", got.String())
			}
		})
	}
}
