// Copyright 2026 Aiku AI

// Command mqtt-aprs is a bidirectional bridge daemon between Owntracks
// location updates on MQTT and the APRS-IS amateur radio packet network.
// Outgoing, it transmits Owntracks positions as APRS position reports;
// incoming, it republishes APRS-IS position reports as Owntracks messages.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/aiku/mqtt-aprs/pkg/bridge"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file path (default: ./mqtt-aprs.yaml, /etc/mqtt-aprs/mqtt-aprs.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mqtt-aprs %s (commit %s, built %s)\n", Tag, Commit, BuildTime)
		return
	}

	cfg, err := bridge.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mqtt-aprs: %v\n", err)
		os.Exit(1)
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mqtt-aprs: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", Tag).Str("commit", Commit).Msg("mqtt-aprs starting")
	if err := bridge.New(cfg, Tag, log).Run(ctx); err != nil {
		log.Error().Err(err).Msg("Bridge terminated")
		closeLog()
		os.Exit(1)
	}
	log.Info().Msg("Clean shutdown")
}

// newLogger builds the root logger per global.DEBUG and global.LOGFILE:
// human-readable console output on stderr by default, JSON lines when
// writing to a file.
func newLogger(cfg *bridge.Config) (zerolog.Logger, func(), error) {
	level := zerolog.InfoLevel
	if cfg.Global.Debug {
		level = zerolog.DebugLevel
	}
	if cfg.Global.LogFile != "" {
		f, err := os.OpenFile(cfg.Global.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("open log file: %w", err)
		}
		log := zerolog.New(f).Level(level).With().Timestamp().Logger()
		return log, func() { f.Close() }, nil
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	log := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return log, func() {}, nil
}
