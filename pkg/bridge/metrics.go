// Copyright 2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Direction labels for the per-pipeline metrics.
const (
	directionOutgoing = "outgoing"
	directionIncoming = "incoming"
)

var (
	messagesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mqttaprs",
		Name:      "messages_forwarded_total",
		Help:      "Messages successfully translated and forwarded, by direction.",
	}, []string{"direction"})

	messagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mqttaprs",
		Name:      "messages_dropped_total",
		Help:      "Messages dropped instead of forwarded, by direction and reason.",
	}, []string{"direction", "reason"})

	sessionUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mqttaprs",
		Name:      "session_up",
		Help:      "Whether a transport session is currently connected.",
	}, []string{"session"})

	sessionReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mqttaprs",
		Name:      "session_reconnects_total",
		Help:      "Reconnection attempts per transport session.",
	}, []string{"session"})
)

// statusServer serves /metrics and /healthz when global.STATUS_ADDR is set.
type statusServer struct {
	addr string
	log  zerolog.Logger
}

func newStatusServer(addr string, log zerolog.Logger) *statusServer {
	return &statusServer{
		addr: addr,
		log:  log.With().Str("component", "status_server").Logger(),
	}
}

func (s *statusServer) String() string { return "status_server" }

func (s *statusServer) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("addr", s.addr).Msg("Status server listening")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}
