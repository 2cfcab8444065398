// Copyright 2026 Aiku AI

package aprs

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrNotPosition is returned by ParsePosition for payloads that are valid
// APRS but not plain-text position reports (status, messages, telemetry,
// compressed positions). Callers drop these silently; APRS-IS traffic is
// heterogeneous and most of it is not for us.
var ErrNotPosition = errors.New("aprs: not a plain-text position report")

// ParseError reports a payload that claims to be a position report but
// cannot be decoded. These are dropped and logged, never retried.
type ParseError struct {
	Payload string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("aprs: unparsable position report %q: %s", e.Payload, e.Reason)
}

// Packet is one TNC2-framed APRS packet: SOURCE>DEST,PATH:payload.
type Packet struct {
	Src  string
	Dst  string
	Path []string
	Info string
}

// ParseTNC2 splits a raw TNC2 line into its header and payload. It does not
// interpret the payload.
func ParseTNC2(line string) (*Packet, error) {
	header, info, ok := strings.Cut(line, ":")
	if !ok {
		return nil, &ParseError{Payload: line, Reason: "no header/payload separator"}
	}
	src, route, ok := strings.Cut(header, ">")
	if !ok || src == "" {
		return nil, &ParseError{Payload: line, Reason: "no source callsign"}
	}
	hops := strings.Split(route, ",")
	if hops[0] == "" {
		return nil, &ParseError{Payload: line, Reason: "no destination"}
	}
	return &Packet{
		Src:  src,
		Dst:  hops[0],
		Path: hops[1:],
		Info: info,
	}, nil
}

// TNC2 renders the packet back into a single TNC2 line (no terminator).
func (p *Packet) TNC2() string {
	var b strings.Builder
	b.WriteString(p.Src)
	b.WriteByte('>')
	b.WriteString(p.Dst)
	for _, hop := range p.Path {
		b.WriteByte(',')
		b.WriteString(hop)
	}
	b.WriteByte(':')
	b.WriteString(p.Info)
	return b.String()
}

// Position is a decoded plain-text position report payload. Optional fields
// are pointers; absence on the wire stays absence here.
type Position struct {
	Latitude    float64
	Longitude   float64
	SymbolTable byte
	SymbolCode  byte

	CourseDeg  *float64
	SpeedKnots *float64
	AltitudeFt *float64

	// Timestamp is non-zero only when the report carried a decodable
	// zulu or hms timestamp; callers substitute receipt time otherwise.
	Timestamp time.Time

	Comment string
}

// Plain-text position body layout after the data type indicator and optional
// timestamp: DDMM.mmN <table> DDDMM.mmE <symbol>.
const positionBodyLen = 8 + 1 + 9 + 1

// ParsePosition decodes a position report payload (the part after the TNC2
// ':'). Data type indicators '!' and '=' are real-time reports; '@' and '/'
// carry a 7-character timestamp. Any other indicator yields ErrNotPosition.
func ParsePosition(info string, now time.Time) (*Position, error) {
	if info == "" {
		return nil, ErrNotPosition
	}
	body := info[1:]
	var ts time.Time
	switch info[0] {
	case '!', '=':
	case '@', '/':
		if len(body) < 7 {
			return nil, &ParseError{Payload: info, Reason: "truncated timestamp"}
		}
		ts = parseTimestamp(body[:7], now)
		body = body[7:]
	default:
		return nil, ErrNotPosition
	}

	if len(body) < positionBodyLen {
		return nil, &ParseError{Payload: info, Reason: "truncated position body"}
	}
	lat, err := DegMinToDecimal(body[0:7], body[7])
	if err != nil {
		return nil, &ParseError{Payload: info, Reason: err.Error()}
	}
	lon, err := DegMinToDecimal(body[9:17], body[17])
	if err != nil {
		return nil, &ParseError{Payload: info, Reason: err.Error()}
	}
	pos := &Position{
		Latitude:    lat,
		Longitude:   lon,
		SymbolTable: body[8],
		SymbolCode:  body[18],
		Timestamp:   ts,
	}

	rest := body[positionBodyLen:]
	rest = parseCourseSpeed(rest, pos)
	rest = parseAltitude(rest, pos)
	pos.Comment = strings.TrimSpace(rest)
	return pos, nil
}

// parseCourseSpeed consumes a leading CSE/SPD data extension (DDD/SSS) if
// present and returns the remainder. Course 0 means unknown on the wire.
func parseCourseSpeed(rest string, pos *Position) string {
	if len(rest) < 7 || rest[3] != '/' {
		return rest
	}
	course, err1 := strconv.Atoi(rest[0:3])
	speed, err2 := strconv.Atoi(rest[4:7])
	if err1 != nil || err2 != nil {
		return rest
	}
	if course > 0 {
		// 360 is transmitted for north.
		c := float64(course % 360)
		pos.CourseDeg = &c
	}
	s := float64(speed)
	pos.SpeedKnots = &s
	return rest[7:]
}

// parseAltitude extracts an /A=nnnnnn altitude (feet) from anywhere in the
// comment, removing it from the returned remainder.
func parseAltitude(rest string, pos *Position) string {
	idx := strings.Index(rest, "/A=")
	if idx < 0 || len(rest) < idx+9 {
		return rest
	}
	alt, err := strconv.Atoi(strings.TrimPrefix(rest[idx+3:idx+9], "+"))
	if err != nil {
		return rest
	}
	ft := float64(alt)
	pos.AltitudeFt = &ft
	return rest[:idx] + rest[idx+9:]
}

// parseTimestamp decodes the 7-character APRS timestamp forms. 'z' is
// day/hour/minute UTC, 'h' is hour/minute/second UTC; the local-time '/'
// form is ambiguous without the sender's zone and falls back to receipt
// time (zero value).
func parseTimestamp(s string, now time.Time) time.Time {
	n, err := strconv.Atoi(s[:6])
	if err != nil {
		return time.Time{}
	}
	a, b, c := n/10000, n/100%100, n%100
	switch s[6] {
	case 'z':
		if a < 1 || a > 31 || b > 23 || c > 59 {
			return time.Time{}
		}
		t := time.Date(now.Year(), now.Month(), a, b, c, 0, 0, time.UTC)
		// A day-of-month ahead of now belongs to the previous month.
		if t.After(now.Add(time.Hour)) {
			t = t.AddDate(0, -1, 0)
		}
		return t
	case 'h':
		if a > 23 || b > 59 || c > 59 {
			return time.Time{}
		}
		t := time.Date(now.Year(), now.Month(), now.Day(), a, b, c, 0, time.UTC)
		if t.After(now.Add(time.Hour)) {
			t = t.AddDate(0, 0, -1)
		}
		return t
	default:
		return time.Time{}
	}
}

// EncodePosition renders a real-time position report payload ('=' data type
// indicator, no timestamp). The output is deterministic: encoding the same
// Position twice yields identical bytes.
func EncodePosition(pos *Position) (string, error) {
	latStr, latHemi, err := LatitudeToDegMin(pos.Latitude)
	if err != nil {
		return "", err
	}
	lonStr, lonHemi, err := LongitudeToDegMin(pos.Longitude)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteByte('=')
	b.WriteString(latStr)
	b.WriteByte(latHemi)
	b.WriteByte(pos.SymbolTable)
	b.WriteString(lonStr)
	b.WriteByte(lonHemi)
	b.WriteByte(pos.SymbolCode)

	if pos.CourseDeg != nil || pos.SpeedKnots != nil {
		course := 0
		if pos.CourseDeg != nil {
			course = int(math.Round(*pos.CourseDeg))
			// 0 means unknown on the wire; north is sent as 360.
			for course < 1 {
				course += 360
			}
			for course > 360 {
				course -= 360
			}
		}
		speed := 0
		if pos.SpeedKnots != nil {
			speed = int(math.Round(*pos.SpeedKnots))
		}
		speed = min(max(speed, 0), 999)
		fmt.Fprintf(&b, "%03d/%03d", course, speed)
	}
	if pos.AltitudeFt != nil {
		alt := int(math.Round(*pos.AltitudeFt))
		alt = min(max(alt, -99999), 999999)
		fmt.Fprintf(&b, "/A=%06d", alt)
	}
	if pos.Comment != "" {
		b.WriteString(pos.Comment)
	}
	return b.String(), nil
}
