// Copyright 2026 Aiku AI

package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNotLocation is returned by DecodeOwntracks for valid Owntracks messages
// of a non-location type (lwt, waypoint, transition). These are normal
// traffic on an Owntracks topic and are dropped silently.
var ErrNotLocation = errors.New("bridge: not a location message")

// IncompleteRecordError reports a location message missing a required field.
type IncompleteRecordError struct {
	Field string
}

func (e *IncompleteRecordError) Error() string {
	return fmt.Sprintf("bridge: location message missing %s", e.Field)
}

// LocationRecord is the protocol-neutral position passed between the
// translator and the pipelines. Optional fields are pointers; a nil field
// was absent at the source and stays absent at the sink.
type LocationRecord struct {
	// SourceID identifies the originating station: the callsign-SSID on
	// the APRS side, the callsign-SSID of this station on the MQTT side.
	SourceID  string
	Latitude  float64
	Longitude float64
	Timestamp time.Time

	SpeedKmh  *float64
	CourseDeg *float64
	AltitudeM *float64

	Comment string
}

// locationMessage is the wire shape of an Owntracks location publish.
// Pointer coordinates distinguish absent from zero.
type locationMessage struct {
	Type string   `json:"_type"`
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
	Tst  int64    `json:"tst,omitempty"`
	Tid  string   `json:"tid,omitempty"`
	Vel  *int     `json:"vel,omitempty"`
	Cog  *int     `json:"cog,omitempty"`
	Alt  *int     `json:"alt,omitempty"`
}

// DecodeOwntracks parses an Owntracks JSON payload into a LocationRecord.
// Unknown fields are ignored. A missing tst falls back to now.
func DecodeOwntracks(payload []byte, now time.Time) (*LocationRecord, error) {
	var msg locationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("bridge: malformed owntracks payload: %w", err)
	}
	if msg.Type != "location" {
		return nil, ErrNotLocation
	}
	if msg.Lat == nil {
		return nil, &IncompleteRecordError{Field: "lat"}
	}
	if msg.Lon == nil {
		return nil, &IncompleteRecordError{Field: "lon"}
	}
	rec := &LocationRecord{
		Latitude:  *msg.Lat,
		Longitude: *msg.Lon,
		Timestamp: now,
	}
	if msg.Tst > 0 {
		rec.Timestamp = time.Unix(msg.Tst, 0).UTC()
	}
	if msg.Vel != nil {
		v := float64(*msg.Vel)
		rec.SpeedKmh = &v
	}
	if msg.Cog != nil {
		c := float64(*msg.Cog)
		rec.CourseDeg = &c
	}
	if msg.Alt != nil {
		a := float64(*msg.Alt)
		rec.AltitudeM = &a
	}
	return rec, nil
}

// EncodeOwntracks renders a LocationRecord as an Owntracks location publish.
// The tid is the first two characters of the source callsign, the tracker-ID
// convention Owntracks clients display on the map.
func EncodeOwntracks(rec *LocationRecord) ([]byte, error) {
	msg := locationMessage{
		Type: "location",
		Lat:  &rec.Latitude,
		Lon:  &rec.Longitude,
		Tst:  rec.Timestamp.Unix(),
		Tid:  trackerID(rec.SourceID),
	}
	if rec.SpeedKmh != nil {
		v := int(math.Round(*rec.SpeedKmh))
		msg.Vel = &v
	}
	if rec.CourseDeg != nil {
		c := int(math.Round(*rec.CourseDeg))
		msg.Cog = &c
	}
	if rec.AltitudeM != nil {
		a := int(math.Round(*rec.AltitudeM))
		msg.Alt = &a
	}
	return json.Marshal(&msg)
}

func trackerID(sourceID string) string {
	if len(sourceID) < 2 {
		return sourceID
	}
	return sourceID[:2]
}
