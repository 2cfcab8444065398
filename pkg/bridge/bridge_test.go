// Copyright 2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/aiku/mqtt-aprs/pkg/aprs"
)

func TestReceiveCallsign(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	cfg.Outgoing.Enabled = false
	cfg.Incoming.Enabled = true
	cfg.APRS.SSID = 9
	if got := receiveCallsign(cfg); got != "N0CALL-9" {
		t.Errorf("sole incoming = %q, want the station callsign", got)
	}

	cfg.Outgoing.Enabled = true
	if got := receiveCallsign(cfg); got != "N0CALL-15" {
		t.Errorf("both directions = %q, want N0CALL-15", got)
	}

	cfg.APRS.SSID = 15
	if got := receiveCallsign(cfg); got != "N0CALL-14" {
		t.Errorf("station already on -15 = %q, want N0CALL-14", got)
	}
}

func TestOutgoingServe_AuthFailure(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	tr := NewTranslator(cfg)
	sess := &fakeAPRSSession{connectErr: fmt.Errorf("login: %w", aprs.ErrUnverified)}

	p := NewOutgoingPipeline(cfg, tr, sess, false, zerolog.Nop())
	if err := p.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("non-sole direction: Serve = %v, want ErrDoNotRestart", err)
	}

	p = NewOutgoingPipeline(cfg, tr, sess, true, zerolog.Nop())
	if err := p.Serve(context.Background()); !errors.Is(err, suture.ErrTerminateSupervisorTree) {
		t.Errorf("sole direction: Serve = %v, want ErrTerminateSupervisorTree", err)
	}
}

func TestIncomingServe_AuthFailure(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	cfg.Incoming.Enabled = true
	tr := NewTranslator(cfg)
	sess := &fakeAPRSSession{connectErr: fmt.Errorf("login: %w", aprs.ErrUnverified)}

	p := NewIncomingPipeline(cfg, tr, sess, &fakePublisher{}, false, zerolog.Nop())
	if err := p.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("non-sole direction: Serve = %v, want ErrDoNotRestart", err)
	}

	p = NewIncomingPipeline(cfg, tr, sess, &fakePublisher{}, true, zerolog.Nop())
	if err := p.Serve(context.Background()); !errors.Is(err, suture.ErrTerminateSupervisorTree) {
		t.Errorf("sole direction: Serve = %v, want ErrTerminateSupervisorTree", err)
	}
}

func TestOutgoingServe_CanceledContext(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	sess := &fakeAPRSSession{connectErr: errors.New("connection refused")}
	p := NewOutgoingPipeline(cfg, NewTranslator(cfg), sess, false, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want context.Canceled", err)
	}
}

func TestNewBridgeWiring(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	cfg.Incoming.Enabled = true
	cfg.Global.StatusAddr = "127.0.0.1:0"
	b := New(cfg, "test", zerolog.Nop())
	if b == nil || b.sup == nil {
		t.Fatal("bridge not wired")
	}
}
