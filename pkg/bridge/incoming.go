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

// mqttPublisher is the outbound MQTT surface the incoming pipeline needs.
// *MQTTSession implements it; tests substitute fakes.
type mqttPublisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// IncomingPipeline forwards APRS-IS position reports to MQTT as Owntracks
// location messages. It owns its APRS-IS session, always logged in
// receive-only (reception needs no verification), and relies on the
// server-side filter to keep the firehose down; whatever still arrives and
// is not a parsable position report is dropped without ceremony.
type IncomingPipeline struct {
	cfg  *Config
	tr   *Translator
	sess aprsSession
	pub  mqttPublisher
	log  zerolog.Logger

	fatalAuth bool
}

func NewIncomingPipeline(cfg *Config, tr *Translator, sess aprsSession, pub mqttPublisher, fatalAuth bool, log zerolog.Logger) *IncomingPipeline {
	return &IncomingPipeline{
		cfg:       cfg,
		tr:        tr,
		sess:      sess,
		pub:       pub,
		log:       log.With().Str("component", "incoming_pipeline").Logger(),
		fatalAuth: fatalAuth,
	}
}

func (p *IncomingPipeline) String() string { return "incoming_pipeline" }

func (p *IncomingPipeline) Serve(ctx context.Context) error {
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
			sessionReconnects.WithLabelValues("aprs_incoming").Inc()
			p.log.Warn().Err(err).Msg("APRS-IS connect failed, backing off")
			if !sleepBackoff(ctx, bo) {
				return ctx.Err()
			}
			continue
		}
		bo.Reset()
		sessionUp.WithLabelValues("aprs_incoming").Set(1)

		err := p.drain(ctx)
		p.sess.Close()
		sessionUp.WithLabelValues("aprs_incoming").Set(0)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sessionReconnects.WithLabelValues("aprs_incoming").Inc()
		p.log.Warn().Err(err).Msg("APRS-IS session lost, reconnecting")
		if !sleepBackoff(ctx, bo) {
			return ctx.Err()
		}
	}
}

// drain reads packet lines until the transport fails. Session.ReadLine
// unblocks on context cancellation because the session closes itself.
func (p *IncomingPipeline) drain(ctx context.Context) error {
	for {
		line, err := p.sess.ReadLine()
		if err != nil {
			return err
		}
		p.deliver(line, time.Now().UTC())
	}
}

// deliver translates one received line and publishes it. Every failure is a
// final drop: most APRS-IS traffic is not plain-text position reports, and
// a position that cannot be published right now is stale by the time it
// could be retried.
func (p *IncomingPipeline) deliver(line string, now time.Time) {
	rec, err := p.tr.FromLine(line, now)
	switch {
	case err == nil:
	case errors.Is(err, aprs.ErrNotPosition):
		messagesDropped.WithLabelValues(directionIncoming, "not_position").Inc()
		return
	default:
		messagesDropped.WithLabelValues(directionIncoming, "malformed").Inc()
		p.log.Debug().Err(err).Str("line", line).Msg("Skipping unparsable line")
		return
	}
	if rec.SourceID == p.tr.Callsign() {
		// Our own transmissions come back through the server.
		messagesDropped.WithLabelValues(directionIncoming, "echo").Inc()
		return
	}
	payload, err := EncodeOwntracks(rec)
	if err != nil {
		messagesDropped.WithLabelValues(directionIncoming, "encode").Inc()
		p.log.Warn().Err(err).Str("source", rec.SourceID).Msg("Dropping unencodable record")
		return
	}
	topic := p.cfg.Incoming.TopicPrefix + "/" + rec.SourceID
	if err := p.pub.Publish(topic, payload, false); err != nil {
		messagesDropped.WithLabelValues(directionIncoming, "transport").Inc()
		p.log.Warn().Err(err).Str("topic", topic).Msg("Dropping position, MQTT publish failed")
		return
	}
	messagesForwarded.WithLabelValues(directionIncoming).Inc()
	p.log.Debug().Str("source", rec.SourceID).Str("topic", topic).Msg("Position published")
}
