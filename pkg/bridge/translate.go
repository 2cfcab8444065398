// Copyright 2026 Aiku AI

package bridge

import (
	"time"

	"github.com/aiku/mqtt-aprs/pkg/aprs"
)

const (
	// outgoingDest is the TNC2 destination for packets we originate.
	outgoingDest = "APRS"
	// defaultComment tags our position reports on the air.
	defaultComment = " mqtt-aprs"
)

// outgoingPath marks packets as internet-originated, never to be gated
// back onto RF.
var outgoingPath = []string{"TCPIP*"}

// Translator converts between LocationRecords and APRS packet lines. It is
// pure: no I/O, no state beyond the station identity it stamps on outgoing
// packets.
type Translator struct {
	callsign    string
	symbolTable byte
	symbolCode  byte
}

// NewTranslator builds a translator for the configured station identity.
func NewTranslator(cfg *Config) *Translator {
	return &Translator{
		callsign:    cfg.StationCallsign(),
		symbolTable: cfg.APRS.Table[0],
		symbolCode:  cfg.APRS.Symbol[0],
	}
}

// Callsign is the station identity stamped on outgoing packets.
func (t *Translator) Callsign() string {
	return t.callsign
}

// ToLine renders a LocationRecord as a complete outgoing TNC2 line.
// Coordinates out of range yield an aprs.RangeError; the caller drops the
// record. Speed and altitude are converted to the knots and feet APRS uses.
func (t *Translator) ToLine(rec *LocationRecord) (string, error) {
	pos := &aprs.Position{
		Latitude:    rec.Latitude,
		Longitude:   rec.Longitude,
		SymbolTable: t.symbolTable,
		SymbolCode:  t.symbolCode,
		CourseDeg:   rec.CourseDeg,
	}
	if rec.SpeedKmh != nil {
		kt := aprs.KmhToKnots(*rec.SpeedKmh)
		pos.SpeedKnots = &kt
	}
	if rec.AltitudeM != nil {
		ft := aprs.MetersToFeet(*rec.AltitudeM)
		pos.AltitudeFt = &ft
	}
	if rec.Comment != "" {
		pos.Comment = " " + rec.Comment
	} else {
		pos.Comment = defaultComment
	}
	info, err := aprs.EncodePosition(pos)
	if err != nil {
		return "", err
	}
	pkt := &aprs.Packet{
		Src:  t.callsign,
		Dst:  outgoingDest,
		Path: outgoingPath,
		Info: info,
	}
	return pkt.TNC2(), nil
}

// FromLine decodes an incoming TNC2 line into a LocationRecord. Lines that
// are valid APRS but not position reports yield aprs.ErrNotPosition; the
// caller skips them without logging. Reports without a usable timestamp get
// the receipt time now.
func (t *Translator) FromLine(line string, now time.Time) (*LocationRecord, error) {
	pkt, err := aprs.ParseTNC2(line)
	if err != nil {
		return nil, err
	}
	pos, err := aprs.ParsePosition(pkt.Info, now)
	if err != nil {
		return nil, err
	}
	rec := &LocationRecord{
		SourceID:  pkt.Src,
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		Timestamp: now,
		CourseDeg: pos.CourseDeg,
		Comment:   pos.Comment,
	}
	if !pos.Timestamp.IsZero() {
		rec.Timestamp = pos.Timestamp
	}
	if pos.SpeedKnots != nil {
		kmh := aprs.KnotsToKmh(*pos.SpeedKnots)
		rec.SpeedKmh = &kmh
	}
	if pos.AltitudeFt != nil {
		m := aprs.FeetToMeters(*pos.AltitudeFt)
		rec.AltitudeM = &m
	}
	return rec, nil
}
