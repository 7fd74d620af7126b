package main

import (
    "context"
    "errors"
    "sync"

    "github.com/looplab/fsm"
    "go.uber.org/zap"
)

const (
    stateNoService      = "no_service"
    stateServiceRunning = "service_running"

    fsmEventEstablished = "link_established"
    fsmEventLost        = "link_lost"
    fsmEventShutdown    = "shutdown"
)

// ErrNoHandle is returned by Transport.Stop implementations when asked to
// stop a handle they did not issue.
var ErrNoHandle = errors.New("no such service handle")

// ServiceHandle identifies a running instance of the network service.
type ServiceHandle interface {
    Addr() string
}

// Transport starts and stops the network-facing service.  Both calls are
// synchronous.
type Transport interface {
    Start() (ServiceHandle, error)
    Stop(h ServiceHandle) error
}

// Connectivity is the wireless link the service availability tracks.  Both
// calls only request an (re)association; the outcome arrives later as a
// ConnEvent.  Retrying is up to the implementation.
type Connectivity interface {
    Connect() error
    Reconnect() error
}

// LifecycleManager keeps the network service running exactly while the link
// is up.  It owns the single ServiceHandle: a handle is never started while
// one is held and never stopped twice.  A failed start leaves the manager
// without a service until the next LinkEstablished; a failed stop still
// releases the handle.
type LifecycleManager struct {
    // mu serializes HandleEvent and Shutdown.  Events normally arrive from
    // the connectivity monitor only, but the test API can inject them too.
    mu        sync.Mutex
    fsm       *fsm.FSM
    transport Transport
    conn      Connectivity
    handle    ServiceHandle
    startErr  error
    logger    *zap.SugaredLogger
    metrics   *Metrics
}

// NewLifecycleManager returns a manager in the no_service state.  metrics
// may be nil.
func NewLifecycleManager(transport Transport, conn Connectivity, logger *zap.SugaredLogger, metrics *Metrics) *LifecycleManager {
    lm := &LifecycleManager{
        transport: transport,
        conn:      conn,
        logger:    logger,
        metrics:   metrics,
    }
    lm.fsm = fsm.NewFSM(
        stateNoService,
        fsm.Events{
            {Name: fsmEventEstablished, Src: []string{stateNoService}, Dst: stateServiceRunning},
            {Name: fsmEventLost, Src: []string{stateServiceRunning}, Dst: stateNoService},
            {Name: fsmEventShutdown, Src: []string{stateServiceRunning}, Dst: stateNoService},
        },
        fsm.Callbacks{
            "before_" + fsmEventEstablished: lm.startService,
            "leave_" + stateServiceRunning:  lm.stopService,
            "enter_state": func(_ context.Context, e *fsm.Event) {
                lm.logger.Debugw("lifecycle transition", "event", e.Event, "from", e.Src, "to", e.Dst)
            },
        },
    )
    return lm
}

// startService runs before entering service_running.  Cancelling the event
// keeps the machine in no_service.
func (lm *LifecycleManager) startService(_ context.Context, e *fsm.Event) {
    h, err := lm.transport.Start()
    lm.metrics.RecordStart(err == nil)
    if err != nil {
        lm.startErr = err
        e.Cancel(err)
        return
    }
    lm.handle = h
    lm.logger.Infow("web service started", "addr", h.Addr())
}

// stopService runs when leaving service_running for any reason.  The handle
// is dropped whether or not Stop succeeds.
func (lm *LifecycleManager) stopService(_ context.Context, e *fsm.Event) {
    h := lm.handle
    lm.handle = nil
    if h == nil {
        return
    }
    err := lm.transport.Stop(h)
    lm.metrics.RecordStop(err == nil)
    if err != nil {
        lm.logger.Errorw("web service stop failed, handle released", "addr", h.Addr(), "event", e.Event, "error", err)
        return
    }
    lm.logger.Infow("web service stopped", "addr", h.Addr(), "event", e.Event)
}

// HandleEvent applies one connectivity event.  It returns the start error
// when a LinkEstablished could not bring the service up; every other failure
// is only logged because the caller has nothing to do about it.  Redundant
// events are ignored.
func (lm *LifecycleManager) HandleEvent(ctx context.Context, ev ConnEvent) error {
    lm.mu.Lock()
    defer lm.mu.Unlock()

    switch ev.Kind {
    case EventStarted:
        lm.logger.Info("radio started, connecting")
        if err := lm.conn.Connect(); err != nil {
            lm.logger.Errorw("connect failed", "error", err)
        }
    case EventLinkEstablished:
        lm.logger.Infow("link established", "addr", ev.Address)
        if !lm.fsm.Can(fsmEventEstablished) {
            lm.logger.Debug("web service already running")
            return nil
        }
        lm.startErr = nil
        if err := lm.fsm.Event(ctx, fsmEventEstablished, ev.Address); err != nil {
            startErr := lm.startErr
            if startErr == nil {
                startErr = err
            }
            lm.logger.Errorw("web service start failed", "error", startErr)
            return startErr
        }
    case EventLinkLost:
        lm.logger.Info("link lost")
        if lm.fsm.Can(fsmEventLost) {
            if err := lm.fsm.Event(ctx, fsmEventLost); err != nil {
                lm.logger.Errorw("lifecycle transition failed", "event", fsmEventLost, "error", err)
            }
        }
        if err := lm.conn.Reconnect(); err != nil {
            lm.logger.Errorw("reconnect failed", "error", err)
        }
    case EventOther:
        lm.logger.Debugw("ignoring connectivity event", "kind", ev.Kind)
    default:
        lm.logger.Debugw("unknown connectivity event", "kind", ev.Kind)
    }
    return nil
}

// Shutdown stops the service if it is running.  It is used when the process
// is asked to exit.
func (lm *LifecycleManager) Shutdown(ctx context.Context) {
    lm.mu.Lock()
    defer lm.mu.Unlock()
    if !lm.fsm.Can(fsmEventShutdown) {
        return
    }
    if err := lm.fsm.Event(ctx, fsmEventShutdown); err != nil {
        lm.logger.Errorw("lifecycle transition failed", "event", fsmEventShutdown, "error", err)
    }
}

// State returns the current lifecycle state name.
func (lm *LifecycleManager) State() string {
    return lm.fsm.Current()
}

// Running reports whether the service is up.  It does not take mu, so the
// service's own handlers may call it while a stop is in progress.
func (lm *LifecycleManager) Running() bool {
    return lm.fsm.Is(stateServiceRunning)
}
