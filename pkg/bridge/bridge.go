// Copyright 2026 Aiku AI

// Package bridge translates location updates between Owntracks-over-MQTT
// and the APRS-IS network, in both directions, under one supervision tree.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/aiku/mqtt-aprs/pkg/aprs"
)

// AppName identifies the bridge in APRS-IS login lines.
const AppName = "mqtt-aprs"

// mqttService owns the shared broker connection: it performs the initial
// connect (with backoff, so a broker that is still booting does not kill
// us), installs the outgoing subscription and then holds the session open
// until shutdown. Post-connect drops are paho's auto-reconnect's job.
type mqttService struct {
	sess    *MQTTSession
	topic   string
	handler func(topic string, payload []byte)
	log     zerolog.Logger
}

func (s *mqttService) String() string { return "mqtt_session" }

func (s *mqttService) Serve(ctx context.Context) error {
	bo := newReconnectBackoff(ctx)
	for {
		err := s.sess.Connect()
		if err == nil {
			break
		}
		if errors.Is(err, ErrAuth) {
			// Both directions need the broker; nothing useful survives
			// a credential rejection here.
			s.log.Error().Err(err).Msg("MQTT broker rejected credentials; fix mqtt.USER/mqtt.PASS")
			return suture.ErrTerminateSupervisorTree
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sessionReconnects.WithLabelValues("mqtt").Inc()
		s.log.Warn().Err(err).Msg("MQTT connect failed, backing off")
		if !sleepBackoff(ctx, bo) {
			return ctx.Err()
		}
	}
	sessionUp.WithLabelValues("mqtt").Set(1)
	defer sessionUp.WithLabelValues("mqtt").Set(0)

	if s.topic != "" {
		if err := s.sess.Subscribe(s.topic, s.handler); err != nil {
			s.sess.Close()
			return err
		}
	}

	<-ctx.Done()
	s.sess.Close()
	return ctx.Err()
}

// Bridge is the process-wide orchestrator: it builds the translator, the
// transport sessions and the enabled pipelines, and runs them under the
// supervision tree. Each direction fails independently; only configuration
// and credential errors take the whole process down.
type Bridge struct {
	cfg *Config
	log zerolog.Logger
	sup *suture.Supervisor
}

// New wires a bridge from the validated configuration. version goes into
// the APRS-IS login line.
func New(cfg *Config, version string, log zerolog.Logger) *Bridge {
	tr := NewTranslator(cfg)
	sup := newSupervisor(log)
	mqttSess := NewMQTTSession(cfg, log)

	soleOutgoing := cfg.Outgoing.Enabled && !cfg.Incoming.Enabled
	soleIncoming := cfg.Incoming.Enabled && !cfg.Outgoing.Enabled

	var out *OutgoingPipeline
	if cfg.Outgoing.Enabled {
		sess := aprs.NewSession(aprs.SessionConfig{
			Addr:       cfg.APRSAddr(),
			Callsign:   cfg.StationCallsign(),
			Passcode:   cfg.APRSPasscode(),
			AppName:    AppName,
			AppVersion: version,
		}, log)
		out = NewOutgoingPipeline(cfg, tr, sess, soleOutgoing, log)
	}

	svc := &mqttService{
		sess: mqttSess,
		log:  log.With().Str("component", "mqtt_service").Logger(),
	}
	if out != nil {
		svc.topic = cfg.Outgoing.Topic
		svc.handler = out.HandleMessage
	}
	sup.Add(svc)
	if out != nil {
		sup.Add(out)
	}

	if cfg.Incoming.Enabled {
		sess := aprs.NewSession(aprs.SessionConfig{
			Addr:       cfg.APRSAddr(),
			Callsign:   receiveCallsign(cfg),
			Passcode:   aprs.ReceiveOnlyPasscode,
			Filter:     cfg.Incoming.Filter,
			AppName:    AppName,
			AppVersion: version,
		}, log)
		sup.Add(NewIncomingPipeline(cfg, tr, sess, mqttSess, soleIncoming, log))
	}

	if cfg.Global.StatusAddr != "" {
		sup.Add(newStatusServer(cfg.Global.StatusAddr, log))
	}

	return &Bridge{
		cfg: cfg,
		log: log.With().Str("component", "bridge").Logger(),
		sup: sup,
	}
}

// receiveCallsign is the login identity of the receive-only session. When
// both directions run, the two APRS-IS sessions must present distinct login
// names or the server drops the older one; SSID 15 is the conventional
// secondary-station suffix.
func receiveCallsign(cfg *Config) string {
	if !cfg.Outgoing.Enabled {
		return cfg.StationCallsign()
	}
	ssid := 15
	if cfg.APRS.SSID == 15 {
		ssid = 14
	}
	return fmt.Sprintf("%s-%d", cfg.APRS.Callsign, ssid)
}

// Run blocks until ctx is canceled or an unrecoverable failure terminates
// the tree. A nil return means clean shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	if b.cfg.Outgoing.Enabled && b.cfg.APRS.Pass == "" {
		b.log.Info().
			Str("callsign", b.cfg.APRS.Callsign).
			Str("passcode", b.cfg.APRSPasscode()).
			Msg("No aprs.PASS configured, derived passcode from callsign")
	}
	b.log.Info().
		Bool("outgoing", b.cfg.Outgoing.Enabled).
		Bool("incoming", b.cfg.Incoming.Enabled).
		Str("station", b.cfg.StationCallsign()).
		Msg("Bridge starting")

	err := b.sup.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
