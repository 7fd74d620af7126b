package main

import (
    "fmt"
    "sync"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "go.uber.org/zap/zaptest/observer"
    "golang.org/x/crypto/bcrypt"
)

// nopLogger returns a logger that discards everything.
func nopLogger() *zap.SugaredLogger {
    return zap.NewNop().Sugar()
}

// observedLogger returns a logger whose entries can be inspected.
func observedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
    core, logs := observer.New(zapcore.DebugLevel)
    return zap.New(core).Sugar(), logs
}

// quickHash hashes with the minimum bcrypt cost to keep tests fast.
func quickHash(password string) string {
    h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
    if err != nil {
        panic(err)
    }
    return string(h)
}

// fakeSensor returns a fixed reading or error and counts calls.
type fakeSensor struct {
    mu      sync.Mutex
    reading Reading
    err     error
    calls   int
}

func (s *fakeSensor) Read() (Reading, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.calls++
    return s.reading, s.err
}

func (s *fakeSensor) Calls() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.calls
}

type fakeHandle struct{ id int }

func (h *fakeHandle) Addr() string { return fmt.Sprintf("fake:%d", h.id) }

// fakeTransport records every Start/Stop and tracks the running balance of
// starts minus stops.
type fakeTransport struct {
    mu       sync.Mutex
    calls    []string
    startErr error
    stopErr  error
    balance  int
    maxBal   int
    minBal   int
    badStops int
    next     int
    live     map[*fakeHandle]bool
}

func newFakeTransport() *fakeTransport {
    return &fakeTransport{live: map[*fakeHandle]bool{}}
}

func (t *fakeTransport) Start() (ServiceHandle, error) {
    t.mu.Lock()
    defer t.mu.Unlock()
    t.calls = append(t.calls, "start")
    if t.startErr != nil {
        return nil, t.startErr
    }
    t.next++
    h := &fakeHandle{id: t.next}
    t.live[h] = true
    t.balance++
    if t.balance > t.maxBal {
        t.maxBal = t.balance
    }
    return h, nil
}

func (t *fakeTransport) Stop(h ServiceHandle) error {
    t.mu.Lock()
    defer t.mu.Unlock()
    t.calls = append(t.calls, "stop")
    fh, ok := h.(*fakeHandle)
    if !ok || !t.live[fh] {
        t.badStops++
        return ErrNoHandle
    }
    delete(t.live, fh)
    t.balance--
    if t.balance < t.minBal {
        t.minBal = t.balance
    }
    return t.stopErr
}

func (t *fakeTransport) Calls() []string {
    t.mu.Lock()
    defer t.mu.Unlock()
    return append([]string(nil), t.calls...)
}

func (t *fakeTransport) setStartErr(err error) {
    t.mu.Lock()
    defer t.mu.Unlock()
    t.startErr = err
}

// fakeConn counts connect requests.
type fakeConn struct {
    mu         sync.Mutex
    connects   int
    reconnects int
    err        error
}

func (c *fakeConn) Connect() error {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.connects++
    return c.err
}

func (c *fakeConn) Reconnect() error {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.reconnects++
    return c.err
}

func (c *fakeConn) counts() (int, int) {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.connects, c.reconnects
}
