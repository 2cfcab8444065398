// Copyright 2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// newTestConfig returns a valid default configuration for tests to tweak.
func newTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	return cfg
}

// fakeAPRSSession records sent lines and plays back scripted received ones.
type fakeAPRSSession struct {
	mu         sync.Mutex
	sent       []string
	lines      []string
	connectErr error
	sendErr    error
}

func (f *fakeAPRSSession) Connect(context.Context) error { return f.connectErr }

func (f *fakeAPRSSession) ReadLine() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lines) == 0 {
		return "", errors.New("fake: no more lines")
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	return line, nil
}

func (f *fakeAPRSSession) Send(line string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, line)
	return nil
}

func (f *fakeAPRSSession) Close() error { return nil }

func (f *fakeAPRSSession) sentLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakePublisher records published MQTT messages.
type fakePublisher struct {
	mu         sync.Mutex
	topics     []string
	payloads   [][]byte
	publishErr error
}

func (f *fakePublisher) Publish(topic string, payload []byte, _ bool) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return nil
}

func (f *fakePublisher) published() ([]string, [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...), append([][]byte(nil), f.payloads...)
}
