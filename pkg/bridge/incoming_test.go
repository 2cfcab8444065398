// Copyright 2026 Aiku AI

package bridge

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestIncoming(t *testing.T, pub *fakePublisher) *IncomingPipeline {
	t.Helper()
	cfg := newTestConfig(t)
	cfg.APRS.Callsign = "K6ABC"
	cfg.Incoming.Enabled = true
	return NewIncomingPipeline(cfg, NewTranslator(cfg), &fakeAPRSSession{}, pub, false, zerolog.Nop())
}

func TestIncomingDeliver(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	p := newTestIncoming(t, pub)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	p.deliver("N0CALL>APRS,TCPIP*:!5213.78N/02100.73E>comment", now)

	topics, payloads := pub.published()
	if len(topics) != 1 {
		t.Fatalf("published %d messages, want 1", len(topics))
	}
	if want := "owntracks/aprs/N0CALL"; topics[0] != want {
		t.Errorf("topic = %q, want %q", topics[0], want)
	}
	var msg struct {
		Type string  `json:"_type"`
		Lat  float64 `json:"lat"`
		Lon  float64 `json:"lon"`
		Tst  int64   `json:"tst"`
		Tid  string  `json:"tid"`
	}
	if err := json.Unmarshal(payloads[0], &msg); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if msg.Type != "location" {
		t.Errorf("_type = %q", msg.Type)
	}
	if math.Abs(msg.Lat-52.2297) > coordTolerance || math.Abs(msg.Lon-21.0122) > coordTolerance {
		t.Errorf("coords = %v,%v, want ~52.2297,21.0122", msg.Lat, msg.Lon)
	}
	if msg.Tst != now.Unix() {
		t.Errorf("tst = %d, want receipt time %d", msg.Tst, now.Unix())
	}
	if msg.Tid != "N0" {
		t.Errorf("tid = %q, want N0", msg.Tid)
	}
}

func TestIncomingDeliver_SuppressesEcho(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	p := newTestIncoming(t, pub)
	p.deliver("K6ABC>APRS,TCPIP*:!5213.78N/02100.73E>", time.Now().UTC())
	if topics, _ := pub.published(); len(topics) != 0 {
		t.Errorf("published %v, want our own packet suppressed", topics)
	}
}

func TestIncomingDeliver_SkipsNonPositions(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	p := newTestIncoming(t, pub)
	now := time.Now().UTC()
	for _, line := range []string{
		"N0CALL>APRS,TCPIP*:>status text",
		"N0CALL>APRS,TCPIP*:T#005,199,000,255,073,123,01101001",
		"N0CALL>APRS,TCPIP*:!garbage",
		"complete garbage",
	} {
		p.deliver(line, now)
	}
	if topics, _ := pub.published(); len(topics) != 0 {
		t.Errorf("published %v, want nothing", topics)
	}
}

func TestIncomingDeliver_PublishFailureDrops(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{publishErr: errors.New("broker down")}
	p := newTestIncoming(t, pub)
	// Must not panic or retry; the position is simply lost.
	p.deliver("N0CALL>APRS,TCPIP*:!5213.78N/02100.73E>", time.Now().UTC())
}
