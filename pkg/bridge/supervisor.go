// Copyright 2026 Aiku AI

package bridge

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

const (
	reconnectInitialInterval = 1 * time.Second
	reconnectMaxInterval     = 2 * time.Minute
	supervisorStopTimeout    = 10 * time.Second
)

// newSupervisor builds the root supervision tree with suture events routed
// into the structured log.
func newSupervisor(log zerolog.Logger) *suture.Supervisor {
	slog := log.With().Str("component", "supervisor").Logger()
	return suture.New("mqtt-aprs", suture.Spec{
		EventHook: func(ev suture.Event) {
			switch ev.Type() {
			case suture.EventTypeServicePanic, suture.EventTypeStopTimeout:
				slog.Error().Fields(ev.Map()).Msg(ev.String())
			case suture.EventTypeBackoff:
				slog.Warn().Fields(ev.Map()).Msg(ev.String())
			default:
				slog.Info().Fields(ev.Map()).Msg(ev.String())
			}
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          supervisorStopTimeout,
	})
}

// newReconnectBackoff is the per-session reconnect policy: exponential with
// jitter, capped, never giving up. The shared public servers (APRS-IS tier 2,
// MQTT brokers) must not see fixed-interval retry storms.
func newReconnectBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = reconnectInitialInterval
	bo.MaxInterval = reconnectMaxInterval
	bo.MaxElapsedTime = 0
	return backoff.WithContext(bo, ctx)
}

// sleepBackoff waits for the next backoff interval or context cancellation.
// It returns false when the context is done.
func sleepBackoff(ctx context.Context, bo backoff.BackOff) bool {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
