// Copyright 2026 Aiku AI

package aprs

import "testing"

func TestPasscode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		callsign string
		want     int
	}{
		{"N0CALL", 13023},
		// The SSID never participates in the hash.
		{"N0CALL-9", 13023},
		{"N0CALL-15", 13023},
		// Case-insensitive.
		{"n0call", 13023},
	}
	for _, tt := range tests {
		if got := Passcode(tt.callsign); got != tt.want {
			t.Errorf("Passcode(%q) = %d, want %d", tt.callsign, got, tt.want)
		}
	}
}

func TestPasscodeInRange(t *testing.T) {
	t.Parallel()
	for _, callsign := range []string{"A", "AB1CDE", "ZZ9ZZZ", "K6XYZ-7"} {
		got := Passcode(callsign)
		if got < 0 || got > 0x7fff {
			t.Errorf("Passcode(%q) = %d, outside 15-bit range", callsign, got)
		}
	}
}
