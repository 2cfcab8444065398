// Copyright 2026 Aiku AI

// Package aprs implements the subset of the APRS protocol needed to bridge
// position reports between APRS-IS and other location networks: the
// degrees-minutes coordinate codec, TNC2 packet framing, plain-text position
// report payloads, passcode derivation and an APRS-IS TCP session.
package aprs

import (
	"fmt"
	"math"
	"strconv"
)

// RangeError reports a coordinate outside the valid decimal-degree domain.
type RangeError struct {
	Field string
	Value float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("aprs: %s %v out of range", e.Field, e.Value)
}

// FormatError reports a malformed degrees-minutes coordinate string.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("aprs: bad coordinate %q: %s", e.Input, e.Reason)
}

// LatitudeToDegMin converts a signed decimal-degree latitude to the
// fixed-width APRS DDMM.mm form plus hemisphere letter, e.g. 52.2297 ->
// ("5213.78", 'N'). Minutes are rounded to hundredths.
func LatitudeToDegMin(lat float64) (string, byte, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return "", 0, &RangeError{Field: "latitude", Value: lat}
	}
	deg, min := splitDegMin(lat)
	hemi := byte('N')
	if lat < 0 {
		hemi = 'S'
	}
	return fmt.Sprintf("%02d%05.2f", deg, min), hemi, nil
}

// LongitudeToDegMin converts a signed decimal-degree longitude to the
// fixed-width APRS DDDMM.mm form plus hemisphere letter, e.g. 21.0122 ->
// ("02100.73", 'E').
func LongitudeToDegMin(lon float64) (string, byte, error) {
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return "", 0, &RangeError{Field: "longitude", Value: lon}
	}
	deg, min := splitDegMin(lon)
	hemi := byte('E')
	if lon < 0 {
		hemi = 'W'
	}
	return fmt.Sprintf("%03d%05.2f", deg, min), hemi, nil
}

// splitDegMin returns the whole degrees and decimal minutes of the absolute
// coordinate, carrying the degree when minutes round up to 60.00.
func splitDegMin(v float64) (int, float64) {
	abs := math.Abs(v)
	deg := int(abs)
	min := math.Round((abs-float64(deg))*60*100) / 100
	if min >= 60 {
		deg++
		min -= 60
	}
	return deg, min
}

// DegMinToDecimal is the inverse of the encoders above. The input must be
// exactly DDMM.mm (latitude, 7 chars) or DDDMM.mm (longitude, 8 chars) with
// a hemisphere letter matching the width. S and W yield negative values.
func DegMinToDecimal(degMin string, hemi byte) (float64, error) {
	var degWidth int
	switch {
	case len(degMin) == 7 && (hemi == 'N' || hemi == 'S'):
		degWidth = 2
	case len(degMin) == 8 && (hemi == 'E' || hemi == 'W'):
		degWidth = 3
	default:
		return 0, &FormatError{Input: degMin, Reason: fmt.Sprintf("bad width for hemisphere %q", string(hemi))}
	}
	if degMin[degWidth+2] != '.' {
		return 0, &FormatError{Input: degMin, Reason: "missing decimal point"}
	}
	deg, err := strconv.Atoi(degMin[:degWidth])
	if err != nil {
		return 0, &FormatError{Input: degMin, Reason: "non-numeric degrees"}
	}
	min, err := strconv.ParseFloat(degMin[degWidth:], 64)
	if err != nil || min < 0 {
		return 0, &FormatError{Input: degMin, Reason: "non-numeric minutes"}
	}
	if min >= 60 {
		return 0, &FormatError{Input: degMin, Reason: "minutes >= 60"}
	}
	dec := float64(deg) + min/60
	if hemi == 'S' || hemi == 'W' {
		dec = -dec
	}
	if (degWidth == 2 && math.Abs(dec) > 90) || (degWidth == 3 && math.Abs(dec) > 180) {
		return 0, &FormatError{Input: degMin, Reason: "degrees out of range"}
	}
	return dec, nil
}

// Unit conversions between the metric values carried by Owntracks and the
// knots/feet fields used on the APRS side. All total; APRS omits a field
// rather than encoding an invalid value.

const (
	kmhPerKnot    = 1.852
	metersPerFoot = 0.3048
)

// KmhToKnots converts a speed in km/h to knots.
func KmhToKnots(kmh float64) float64 { return kmh / kmhPerKnot }

// KnotsToKmh converts a speed in knots to km/h.
func KnotsToKmh(knots float64) float64 { return knots * kmhPerKnot }

// MetersToFeet converts an altitude in metres to feet.
func MetersToFeet(m float64) float64 { return m / metersPerFoot }

// FeetToMeters converts an altitude in feet to metres.
func FeetToMeters(ft float64) float64 { return ft * metersPerFoot }
