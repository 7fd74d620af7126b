package main

import (
    "context"
    "errors"
    "fmt"
    "net"
    "os/exec"
    "strings"
    "sync"
    "time"

    "github.com/cenkalti/backoff/v4"
    "go.uber.org/zap"
)

// maxConnectRetries bounds how often a failing connect command is retried
// before the error is reported.  The monitor keeps polling either way, and
// the next link loss requests another reconnect.
const maxConnectRetries = 4

// WifiMonitor watches a wireless interface and reports link changes as
// ConnEvents.  The link counts as established once the interface is up and
// has an IPv4 address.  Association itself is left to the system's
// supplicant; Connect and Reconnect only run the configured commands.
//
// Callbacks are invoked from the Run goroutine, one at a time.
type WifiMonitor struct {
    iface        string
    interval     time.Duration
    connectCmd   []string
    reconnectCmd []string
    logger       *zap.SugaredLogger

    // lookup returns the interface's IPv4 address, or "" while there is none.
    lookup func(iface string) (string, error)
    // run executes one command.
    run func(ctx context.Context, args []string) error
    // newBackOff returns the retry policy for one connect request.
    newBackOff func() backoff.BackOff
    // newReportBackOff returns the spacing of repeated link reports
    // requested through Retry.
    newReportBackOff func() backoff.BackOff
    now              func() time.Time

    mu       sync.Mutex
    state    ConnState
    addr     string
    callback func(ConnEvent)
    runCtx   context.Context

    // reportBackOff is non-nil while repeated reports of the same link are
    // being spaced out; reportAt is when the next one is due.
    reportBackOff backoff.BackOff
    reportAt      time.Time
    reportPending bool
}

// NewWifiMonitor returns a monitor polling iface every interval.
func NewWifiMonitor(iface string, interval time.Duration, connectCmd, reconnectCmd []string, logger *zap.SugaredLogger) *WifiMonitor {
    return &WifiMonitor{
        iface:        iface,
        interval:     interval,
        connectCmd:   connectCmd,
        reconnectCmd: reconnectCmd,
        logger:       logger,
        lookup:       interfaceIPv4,
        run:          runCommand,
        newBackOff: func() backoff.BackOff {
            b := backoff.NewExponentialBackOff()
            b.InitialInterval = 500 * time.Millisecond
            b.MaxInterval = 10 * time.Second
            return backoff.WithMaxRetries(b, maxConnectRetries)
        },
        newReportBackOff: func() backoff.BackOff {
            b := backoff.NewExponentialBackOff()
            b.InitialInterval = time.Second
            b.MaxInterval = time.Minute
            b.MaxElapsedTime = 0
            b.Reset()
            return b
        },
        now: time.Now,
        state:  ConnDisconnected,
        runCtx: context.Background(),
    }
}

// OnStateChange registers the callback receiving every event.  Only one
// callback is kept; it must be set before Run.
func (m *WifiMonitor) OnStateChange(cb func(ConnEvent)) {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.callback = cb
}

// State returns the last observed connectivity state.
func (m *WifiMonitor) State() ConnState {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.state
}

// Connect requests association with the configured network.
func (m *WifiMonitor) Connect() error {
    return m.request("connect", m.connectCmd)
}

// Reconnect requests re-association after the link was lost.
func (m *WifiMonitor) Reconnect() error {
    return m.request("reconnect", m.reconnectCmd)
}

// request runs args with retries.  An empty command is a no-op for systems
// where the supplicant reconnects on its own.
func (m *WifiMonitor) request(what string, args []string) error {
    m.mu.Lock()
    ctx := m.runCtx
    if m.state != ConnConnected {
        m.state = ConnConnecting
    }
    m.mu.Unlock()
    if len(args) == 0 {
        return nil
    }
    op := func() error {
        err := m.run(ctx, args)
        if errors.Is(err, exec.ErrNotFound) {
            return backoff.Permanent(err)
        }
        return err
    }
    notify := func(err error, wait time.Duration) {
        m.logger.Warnw(what+" command failed, retrying", "command", strings.Join(args, " "), "wait", wait, "error", err)
    }
    if err := backoff.RetryNotify(op, backoff.WithContext(m.newBackOff(), ctx), notify); err != nil {
        return fmt.Errorf("%s: %w", what, err)
    }
    return nil
}

// Retry asks for the current link to be reported again once the report
// backoff allows.  It is used when the consumer could not act on the last
// event.  Consecutive retries of the same link are spaced further apart; a
// real change of the link starts the spacing over.
func (m *WifiMonitor) Retry() {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.reportBackOff == nil {
        m.reportBackOff = m.newReportBackOff()
    }
    wait := m.reportBackOff.NextBackOff()
    if wait == backoff.Stop {
        m.reportPending = false
        m.logger.Warnw("giving up re-reporting link", "interface", m.iface, "addr", m.addr)
        return
    }
    m.reportPending = true
    m.reportAt = m.now().Add(wait)
    m.logger.Debugw("link report scheduled", "interface", m.iface, "wait", wait)
}

// Run emits EventStarted and then polls the interface until ctx is done.
func (m *WifiMonitor) Run(ctx context.Context) error {
    m.mu.Lock()
    m.runCtx = ctx
    m.mu.Unlock()

    m.emit(ConnEvent{Kind: EventStarted})
    m.poll()

    t := time.NewTicker(m.interval)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-t.C:
            m.poll()
        }
    }
}

// poll samples the interface once and emits an event on every change.
func (m *WifiMonitor) poll() {
    addr, err := m.lookup(m.iface)
    if err != nil {
        m.logger.Debugw("interface lookup failed", "interface", m.iface, "error", err)
        addr = ""
    }

    m.mu.Lock()
    prevState, prevAddr := m.state, m.addr
    var ev *ConnEvent
    switch {
    case addr != "" && (prevState != ConnConnected || addr != prevAddr):
        m.state, m.addr = ConnConnected, addr
        m.clearReportLocked()
        e := Established(addr)
        ev = &e
    case addr == "" && prevState == ConnConnected:
        m.state, m.addr = ConnDisconnected, ""
        m.clearReportLocked()
        e := Lost()
        ev = &e
    case addr != "" && m.reportPending && !m.now().Before(m.reportAt):
        m.reportPending = false
        e := Established(addr)
        ev = &e
    }
    m.mu.Unlock()

    if ev != nil {
        m.logger.Infow("connectivity changed", "interface", m.iface, "from", prevState, "event", ev.Kind, "addr", ev.Address)
        m.emit(*ev)
    }
}

// clearReportLocked drops any scheduled re-report and resets its spacing.
func (m *WifiMonitor) clearReportLocked() {
    m.reportBackOff = nil
    m.reportPending = false
}

func (m *WifiMonitor) emit(ev ConnEvent) {
    m.mu.Lock()
    cb := m.callback
    m.mu.Unlock()
    if cb != nil {
        cb(ev)
    }
}

// interfaceIPv4 returns the first IPv4 address of iface, or "" if the
// interface is down or has none.
func interfaceIPv4(name string) (string, error) {
    iface, err := net.InterfaceByName(name)
    if err != nil {
        return "", err
    }
    if iface.Flags&net.FlagUp == 0 {
        return "", nil
    }
    addrs, err := iface.Addrs()
    if err != nil {
        return "", err
    }
    for _, a := range addrs {
        ipnet, ok := a.(*net.IPNet)
        if !ok {
            continue
        }
        if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
            return ip4.String(), nil
        }
    }
    return "", nil
}

// runCommand executes args and folds its output into the error.
func runCommand(ctx context.Context, args []string) error {
    out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
    if err != nil {
        return fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
    }
    return nil
}
