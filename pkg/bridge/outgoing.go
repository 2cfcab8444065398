// Copyright 2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/aiku/mqtt-aprs/pkg/aprs"
)

// aprsSession is the transport surface the pipelines drive. *aprs.Session
// implements it; tests substitute fakes.
type aprsSession interface {
	Connect(ctx context.Context) error
	ReadLine() (string, error)
	Send(line string) error
	Close() error
}

// OutgoingPipeline forwards Owntracks location updates from MQTT to APRS-IS.
// It owns its APRS-IS session exclusively and reconnects with backoff on
// transport faults. Updates arriving while a send or reconnect is in flight
// supersede the queued one: a position is current state, not an event, and
// transmitting a stale one is worse than transmitting none.
type OutgoingPipeline struct {
	cfg  *Config
	tr   *Translator
	sess aprsSession
	log  zerolog.Logger

	// fatalAuth makes a passcode rejection terminate the whole process,
	// set when this is the only enabled direction.
	fatalAuth bool

	updates chan []byte
}

func NewOutgoingPipeline(cfg *Config, tr *Translator, sess aprsSession, fatalAuth bool, log zerolog.Logger) *OutgoingPipeline {
	return &OutgoingPipeline{
		cfg:       cfg,
		tr:        tr,
		sess:      sess,
		log:       log.With().Str("component", "outgoing_pipeline").Logger(),
		fatalAuth: fatalAuth,
		updates:   make(chan []byte, 1),
	}
}

func (p *OutgoingPipeline) String() string { return "outgoing_pipeline" }

// HandleMessage is the MQTT subscribe callback. It never blocks paho's
// dispatch goroutine: a queued update that has not been sent yet is evicted
// in favor of the newer one.
func (p *OutgoingPipeline) HandleMessage(_ string, payload []byte) {
	select {
	case p.updates <- payload:
		return
	default:
	}
	select {
	case <-p.updates:
		messagesDropped.WithLabelValues(directionOutgoing, "superseded").Inc()
	default:
	}
	select {
	case p.updates <- payload:
	default:
		messagesDropped.WithLabelValues(directionOutgoing, "superseded").Inc()
	}
}

func (p *OutgoingPipeline) Serve(ctx context.Context) error {
	bo := newReconnectBackoff(ctx)
	for {
		if err := p.sess.Connect(ctx); err != nil {
			if errors.Is(err, aprs.ErrUnverified) {
				p.log.Error().Err(err).Msg("APRS-IS rejected the passcode; fix aprs.PASS, not retrying")
				if p.fatalAuth {
					return suture.ErrTerminateSupervisorTree
				}
				return suture.ErrDoNotRestart
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sessionReconnects.WithLabelValues("aprs_outgoing").Inc()
			p.log.Warn().Err(err).Msg("APRS-IS connect failed, backing off")
			if !sleepBackoff(ctx, bo) {
				return ctx.Err()
			}
			continue
		}
		bo.Reset()
		sessionUp.WithLabelValues("aprs_outgoing").Set(1)

		// Drain server chatter so the socket never backs up and read
		// errors surface disconnects promptly.
		readErr := make(chan error, 1)
		go func() {
			for {
				if _, err := p.sess.ReadLine(); err != nil {
					readErr <- err
					return
				}
			}
		}()

		err := p.pump(ctx, readErr)
		p.sess.Close()
		sessionUp.WithLabelValues("aprs_outgoing").Set(0)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sessionReconnects.WithLabelValues("aprs_outgoing").Inc()
		p.log.Warn().Err(err).Msg("APRS-IS session lost, reconnecting")
		if !sleepBackoff(ctx, bo) {
			return ctx.Err()
		}
	}
}

func (p *OutgoingPipeline) pump(ctx context.Context, readErr <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case payload := <-p.updates:
			if err := p.deliver(payload); err != nil {
				return err
			}
		}
	}
}

// deliver translates one Owntracks payload and transmits it. Translation
// failures are final drops; only transport errors propagate and trigger a
// reconnect.
func (p *OutgoingPipeline) deliver(payload []byte) error {
	line, ok := p.translate(payload)
	if !ok {
		return nil
	}
	if err := p.sess.Send(line); err != nil {
		messagesDropped.WithLabelValues(directionOutgoing, "transport").Inc()
		return err
	}
	messagesForwarded.WithLabelValues(directionOutgoing).Inc()
	p.log.Debug().Str("line", line).Msg("Position transmitted")
	return nil
}

func (p *OutgoingPipeline) translate(payload []byte) (string, bool) {
	rec, err := DecodeOwntracks(payload, time.Now().UTC())
	switch {
	case err == nil:
	case errors.Is(err, ErrNotLocation):
		// lwt, waypoint and friends share the topic; not ours.
		return "", false
	default:
		var inc *IncompleteRecordError
		if errors.As(err, &inc) {
			messagesDropped.WithLabelValues(directionOutgoing, "incomplete").Inc()
		} else {
			messagesDropped.WithLabelValues(directionOutgoing, "malformed").Inc()
		}
		p.log.Warn().Err(err).Msg("Dropping undecodable location update")
		return "", false
	}
	line, err := p.tr.ToLine(rec)
	if err != nil {
		messagesDropped.WithLabelValues(directionOutgoing, "range").Inc()
		p.log.Warn().Err(err).
			Float64("lat", rec.Latitude).Float64("lon", rec.Longitude).
			Msg("Dropping out-of-range location update")
		return "", false
	}
	return line, true
}
