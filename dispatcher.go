package main

import (
    "context"
    "fmt"
    "sync/atomic"
    "time"

    "go.uber.org/zap"
    "periph.io/x/conn/v3/gpio"
)

// edgePollTimeout bounds each WaitForEdge call so the watcher notices
// shutdown.  It is not a debounce: edges are reported as soon as they arrive.
const edgePollTimeout = 500 * time.Millisecond

// edgePin is the subset of gpio.PinIn the edge watcher needs.
type edgePin interface {
    In(pull gpio.Pull, edge gpio.Edge) error
    WaitForEdge(timeout time.Duration) bool
}

// Dispatcher turns button edges into runs of the indicator worker.  Edges
// only arm a single-slot Signal; the worker goroutine consumes the signal,
// pulses the indicator and goes back to waiting.  Edges arriving faster than
// the worker can pulse are coalesced; an edge arriving while the worker is
// busy is kept for the next iteration.
//
// The first wake after construction is consumed without touching the
// indicator.
type Dispatcher struct {
    signal    *Signal
    indicator Indicator
    hold      time.Duration
    logger    *zap.SugaredLogger
    metrics   *Metrics

    // suppressFirst is owned by the worker goroutine.
    suppressFirst bool

    wakes   atomic.Uint64
    presses atomic.Uint64
}

// NewDispatcher returns a dispatcher pulsing ind for hold on every press.
// metrics may be nil.
func NewDispatcher(ind Indicator, hold time.Duration, logger *zap.SugaredLogger, metrics *Metrics) *Dispatcher {
    return &Dispatcher{
        signal:        NewSignal(),
        indicator:     ind,
        hold:          hold,
        logger:        logger,
        metrics:       metrics,
        suppressFirst: true,
    }
}

// Notify requests a worker run.  It is the only thing the edge watcher does
// per edge: it never blocks, allocates or logs.
func (d *Dispatcher) Notify() {
    if !d.signal.Notify() {
        d.metrics.RecordCoalesced()
    }
}

// Run is the worker loop.  It only returns when ctx is cancelled; indicator
// failures are logged and the loop carries on.
func (d *Dispatcher) Run(ctx context.Context) error {
    for {
        if err := d.signal.Wait(ctx); err != nil {
            return err
        }
        d.wakes.Add(1)
        d.metrics.RecordWake()
        if d.suppressFirst {
            d.suppressFirst = false
            d.logger.Debug("first wake consumed without indicator pulse")
            continue
        }
        d.pulse(ctx)
    }
}

// pulse switches the indicator on, holds, and switches it off again.
func (d *Dispatcher) pulse(ctx context.Context) {
    if err := d.indicator.Set(true); err != nil {
        d.metrics.RecordIndicatorError()
        d.logger.Errorw("indicator on failed", "indicator", d.indicator.Name(), "error", err)
    }
    if d.hold > 0 {
        t := time.NewTimer(d.hold)
        select {
        case <-t.C:
        case <-ctx.Done():
            t.Stop()
        }
    }
    if err := d.indicator.Set(false); err != nil {
        d.metrics.RecordIndicatorError()
        d.logger.Errorw("indicator off failed", "indicator", d.indicator.Name(), "error", err)
    }
    n := d.presses.Add(1)
    d.metrics.RecordPress()
    d.logger.Infow("button press handled", "count", n)
}

// WatchEdges configures pin as a pulled-up input reporting falling edges and
// notifies the worker on every edge until ctx is cancelled.  A configuration
// failure is returned to the caller; there is nothing to fall back to.
func (d *Dispatcher) WatchEdges(ctx context.Context, pin edgePin) error {
    if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
        return fmt.Errorf("configure button pin: %w", err)
    }
    for ctx.Err() == nil {
        if pin.WaitForEdge(edgePollTimeout) {
            d.Notify()
        }
    }
    return ctx.Err()
}

// Presses returns the number of indicator pulses performed.
func (d *Dispatcher) Presses() uint64 {
    return d.presses.Load()
}

// Wakes returns the number of times the worker was woken, including the
// suppressed first wake.
func (d *Dispatcher) Wakes() uint64 {
    return d.wakes.Load()
}
