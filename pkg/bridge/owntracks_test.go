// Copyright 2026 Aiku AI

package bridge

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDecodeOwntracks(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"_type":"location","lat":52.2297,"lon":21.0122,"tst":1772300000,"vel":36,"cog":88,"alt":120,"batt":77}`)
	rec, err := DecodeOwntracks(payload, now)
	if err != nil {
		t.Fatalf("DecodeOwntracks: %v", err)
	}
	if rec.Latitude != 52.2297 || rec.Longitude != 21.0122 {
		t.Errorf("coords = %v,%v", rec.Latitude, rec.Longitude)
	}
	if got := rec.Timestamp.Unix(); got != 1772300000 {
		t.Errorf("Timestamp = %d, want 1772300000", got)
	}
	if rec.SpeedKmh == nil || *rec.SpeedKmh != 36 {
		t.Errorf("SpeedKmh = %v, want 36", rec.SpeedKmh)
	}
	if rec.CourseDeg == nil || *rec.CourseDeg != 88 {
		t.Errorf("CourseDeg = %v, want 88", rec.CourseDeg)
	}
	if rec.AltitudeM == nil || *rec.AltitudeM != 120 {
		t.Errorf("AltitudeM = %v, want 120", rec.AltitudeM)
	}
}

func TestDecodeOwntracks_NoTimestamp(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	rec, err := DecodeOwntracks([]byte(`{"_type":"location","lat":1,"lon":2}`), now)
	if err != nil {
		t.Fatalf("DecodeOwntracks: %v", err)
	}
	if !rec.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want receipt time %v", rec.Timestamp, now)
	}
	if rec.SpeedKmh != nil || rec.CourseDeg != nil || rec.AltitudeM != nil {
		t.Error("expected no optional fields")
	}
}

func TestDecodeOwntracks_NotLocation(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	for _, payload := range []string{
		`{"_type":"lwt","tst":1}`,
		`{"_type":"waypoint","lat":1,"lon":2}`,
		`{"foo":"bar"}`,
	} {
		_, err := DecodeOwntracks([]byte(payload), now)
		if !errors.Is(err, ErrNotLocation) {
			t.Errorf("DecodeOwntracks(%s) err = %v, want ErrNotLocation", payload, err)
		}
	}
}

func TestDecodeOwntracks_Incomplete(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	for _, tt := range []struct {
		payload string
		field   string
	}{
		{`{"_type":"location","lon":21.0122}`, "lat"},
		{`{"_type":"location","lat":52.2297}`, "lon"},
	} {
		_, err := DecodeOwntracks([]byte(tt.payload), now)
		var inc *IncompleteRecordError
		if !errors.As(err, &inc) {
			t.Errorf("DecodeOwntracks(%s) err = %v, want IncompleteRecordError", tt.payload, err)
			continue
		}
		if inc.Field != tt.field {
			t.Errorf("missing field = %q, want %q", inc.Field, tt.field)
		}
	}
}

func TestDecodeOwntracks_Malformed(t *testing.T) {
	t.Parallel()
	_, err := DecodeOwntracks([]byte(`{"_type":"location","lat":`), time.Now().UTC())
	if err == nil || errors.Is(err, ErrNotLocation) {
		t.Errorf("err = %v, want decode failure", err)
	}
}

func TestEncodeOwntracks(t *testing.T) {
	t.Parallel()
	vel, cog, alt := 36.2, 88.0, 120.4
	rec := &LocationRecord{
		SourceID:  "N0CALL-9",
		Latitude:  52.2297,
		Longitude: 21.0122,
		Timestamp: time.Unix(1772300000, 0).UTC(),
		SpeedKmh:  &vel,
		CourseDeg: &cog,
		AltitudeM: &alt,
	}
	payload, err := EncodeOwntracks(rec)
	if err != nil {
		t.Fatalf("EncodeOwntracks: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if got["_type"] != "location" {
		t.Errorf("_type = %v", got["_type"])
	}
	if got["lat"] != 52.2297 || got["lon"] != 21.0122 {
		t.Errorf("coords = %v,%v", got["lat"], got["lon"])
	}
	if got["tst"] != float64(1772300000) {
		t.Errorf("tst = %v", got["tst"])
	}
	if got["tid"] != "N0" {
		t.Errorf("tid = %v, want N0", got["tid"])
	}
	if got["vel"] != float64(36) || got["cog"] != float64(88) || got["alt"] != float64(120) {
		t.Errorf("vel/cog/alt = %v/%v/%v", got["vel"], got["cog"], got["alt"])
	}
}

func TestEncodeOwntracks_MinimalRecord(t *testing.T) {
	t.Parallel()
	rec := &LocationRecord{
		SourceID:  "X",
		Latitude:  1,
		Longitude: 2,
		Timestamp: time.Unix(1, 0),
	}
	payload, err := EncodeOwntracks(rec)
	if err != nil {
		t.Fatalf("EncodeOwntracks: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	for _, absent := range []string{"vel", "cog", "alt"} {
		if _, ok := got[absent]; ok {
			t.Errorf("unexpected %q in minimal message", absent)
		}
	}
	if got["tid"] != "X" {
		t.Errorf("tid = %v, want X", got["tid"])
	}
}
