// Copyright 2026 Aiku AI

package aprs

import "strings"

// Passcode derives the APRS-IS passcode for a callsign. The SSID suffix is
// ignored; the hash covers the uppercased base callsign only. APRS-IS uses
// this to authorize transmission — reception works with passcode -1.
func Passcode(callsign string) int {
	base, _, _ := strings.Cut(callsign, "-")
	base = strings.ToUpper(base)
	hash := 0x73e2
	for i := 0; i < len(base); i += 2 {
		hash ^= int(base[i]) << 8
		if i+1 < len(base) {
			hash ^= int(base[i+1])
		}
	}
	return hash & 0x7fff
}
