// Copyright 2026 Aiku AI

package aprs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State is the connectivity state of an APRS-IS session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateFailed means the server rejected our credentials. The session
	// must not be reconnected; this is an operator error, not a fault.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrUnverified is returned by Connect when the server answers the login
// with an unverified status even though a real passcode was supplied.
var ErrUnverified = errors.New("aprs: login not verified by server")

// ErrNotConnected is returned by Send and ReadLine when the session has no
// live transport.
var ErrNotConnected = errors.New("aprs: session not connected")

// ReceiveOnlyPasscode logs in without transmit authorization.
const ReceiveOnlyPasscode = "-1"

const (
	handshakeTimeout = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

// SessionConfig describes one APRS-IS connection.
type SessionConfig struct {
	// Addr is the server host:port.
	Addr string
	// Callsign includes the SSID, e.g. "N0CALL-9".
	Callsign string
	// Passcode authorizes transmission; ReceiveOnlyPasscode for listen-only.
	Passcode string
	// Filter, when non-empty, is sent as a server-side filter command right
	// after login so the server restricts what it forwards to us.
	Filter string

	AppName    string
	AppVersion string
}

// Session is a single APRS-IS TCP connection. It owns the transport
// exclusively: all socket I/O happens inside its methods, and its State is
// the only cross-goroutine signal it exports.
type Session struct {
	cfg SessionConfig
	log zerolog.Logger

	state atomic.Int32

	mu        sync.Mutex
	conn      net.Conn
	rd        *bufio.Reader
	stopWatch func() bool
}

// NewSession creates an unconnected session.
func NewSession(cfg SessionConfig, log zerolog.Logger) *Session {
	if cfg.Passcode == "" {
		cfg.Passcode = ReceiveOnlyPasscode
	}
	return &Session{
		cfg: cfg,
		log: log.With().Str("component", "aprs_session").Str("server", cfg.Addr).Logger(),
	}
}

// State returns the current connectivity state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Connect dials the server, performs the login handshake and installs the
// server-side filter. When ctx is canceled the session closes itself,
// unblocking any reader. ErrUnverified means bad credentials and must not
// be retried.
func (s *Session) Connect(ctx context.Context) error {
	if s.State() == StateFailed {
		return ErrUnverified
	}
	s.setState(StateConnecting)

	d := net.Dialer{Timeout: handshakeTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("aprs: dial %s: %w", s.cfg.Addr, err)
	}

	// The watcher covers the handshake too: a canceled context must close
	// the socket and unblock the login-response read immediately, not wait
	// out the handshake deadline.
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	rd := bufio.NewReader(conn)
	if err := s.handshake(conn, rd); err != nil {
		stop()
		conn.Close()
		if errors.Is(err, ErrUnverified) {
			s.setState(StateFailed)
		} else {
			s.setState(StateDisconnected)
		}
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.rd = rd
	s.stopWatch = stop
	s.mu.Unlock()
	s.setState(StateConnected)
	s.log.Info().Str("callsign", s.cfg.Callsign).Msg("APRS-IS session established")
	return nil
}

// handshake sends the login line, waits for the server's login response and
// sends the filter command. All reads/writes are bounded by a deadline.
func (s *Session) handshake(conn net.Conn, rd *bufio.Reader) error {
	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return err
	}
	defer conn.SetDeadline(time.Time{})

	login := fmt.Sprintf("user %s pass %s vers %s %s\r\n",
		s.cfg.Callsign, s.cfg.Passcode, s.cfg.AppName, s.cfg.AppVersion)
	if _, err := conn.Write([]byte(login)); err != nil {
		return fmt.Errorf("aprs: send login: %w", err)
	}

	// The server banner and the login response both arrive as comment
	// lines; only the logresp line decides the outcome.
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return fmt.Errorf("aprs: read login response: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		s.log.Debug().Str("line", line).Msg("Server handshake line")
		if !strings.HasPrefix(line, "# logresp") {
			continue
		}
		if strings.Contains(line, " unverified") && s.cfg.Passcode != ReceiveOnlyPasscode {
			return fmt.Errorf("%w: %s", ErrUnverified, line)
		}
		break
	}

	if s.cfg.Filter != "" {
		// aprsc and javAPRSSrvr accept the command with or without a
		// space after the '#'.
		cmd := fmt.Sprintf("#filter %s\r\n", s.cfg.Filter)
		if _, err := conn.Write([]byte(cmd)); err != nil {
			return fmt.Errorf("aprs: send filter: %w", err)
		}
		s.log.Info().Str("filter", s.cfg.Filter).Msg("Server-side filter installed")
	}
	return nil
}

// ReadLine blocks until the next packet line arrives, skipping server
// keep-alive comment lines. The returned line has its CRLF stripped.
func (s *Session) ReadLine() (string, error) {
	s.mu.Lock()
	rd := s.rd
	s.mu.Unlock()
	if rd == nil {
		return "", ErrNotConnected
	}
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			s.dropConn()
			return "", fmt.Errorf("aprs: read: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
}

// Send transmits one TNC2 packet line, appending the CRLF terminator.
func (s *Session) Send(line string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil || s.State() != StateConnected {
		return ErrNotConnected
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		s.dropConn()
		return fmt.Errorf("aprs: set write deadline: %w", err)
	}
	if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
		s.dropConn()
		return fmt.Errorf("aprs: send: %w", err)
	}
	return nil
}

// Close tears down the transport. Safe to call multiple times and from any
// goroutine; a blocked ReadLine returns promptly.
func (s *Session) Close() error {
	err := s.dropConn()
	if s.State() != StateFailed {
		s.setState(StateDisconnected)
	}
	return err
}

func (s *Session) dropConn() error {
	s.mu.Lock()
	conn := s.conn
	stop := s.stopWatch
	s.conn = nil
	s.rd = nil
	s.stopWatch = nil
	s.mu.Unlock()

	if s.State() == StateConnected {
		s.setState(StateDisconnected)
	}
	if stop != nil {
		stop()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
