package main

import (
    "context"
    "errors"
    "math/rand"
    "testing"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestLifecycleEstablishLostEstablish(t *testing.T) {
    tr := newFakeTransport()
    conn := &fakeConn{}
    lm := NewLifecycleManager(tr, conn, nopLogger(), nil)
    ctx := context.Background()

    require.Equal(t, stateNoService, lm.State())
    require.NoError(t, lm.HandleEvent(ctx, Established("192.168.1.20")))
    require.NoError(t, lm.HandleEvent(ctx, Lost()))
    require.NoError(t, lm.HandleEvent(ctx, Established("192.168.1.20")))

    assert.Equal(t, []string{"start", "stop", "start"}, tr.Calls())
    assert.Equal(t, stateServiceRunning, lm.State())
    assert.True(t, lm.Running())
    _, reconnects := conn.counts()
    assert.Equal(t, 1, reconnects)
}

func TestLifecycleNoRedundantStart(t *testing.T) {
    tr := newFakeTransport()
    lm := NewLifecycleManager(tr, &fakeConn{}, nopLogger(), nil)
    ctx := context.Background()

    require.NoError(t, lm.HandleEvent(ctx, Established("10.0.0.2")))
    require.NoError(t, lm.HandleEvent(ctx, Established("10.0.0.2")))

    assert.Equal(t, []string{"start"}, tr.Calls())
}

func TestLifecycleLostWithoutServiceOnlyReconnects(t *testing.T) {
    tr := newFakeTransport()
    conn := &fakeConn{}
    lm := NewLifecycleManager(tr, conn, nopLogger(), nil)

    require.NoError(t, lm.HandleEvent(context.Background(), Lost()))
    require.NoError(t, lm.HandleEvent(context.Background(), Lost()))

    assert.Empty(t, tr.Calls())
    _, reconnects := conn.counts()
    assert.Equal(t, 2, reconnects)
    assert.Equal(t, stateNoService, lm.State())
}

func TestLifecycleStopErrorStillReleasesHandle(t *testing.T) {
    tr := newFakeTransport()
    tr.stopErr = errors.New("httpd_stop failed")
    logger, logs := observedLogger()
    lm := NewLifecycleManager(tr, &fakeConn{}, logger, nil)
    ctx := context.Background()

    require.NoError(t, lm.HandleEvent(ctx, Established("10.0.0.2")))
    require.NoError(t, lm.HandleEvent(ctx, Lost()))
    assert.False(t, lm.Running())
    assert.Equal(t, 1, logs.FilterMessage("web service stop failed, handle released").Len())

    require.NoError(t, lm.HandleEvent(ctx, Established("10.0.0.2")))
    assert.Equal(t, []string{"start", "stop", "start"}, tr.Calls())
    assert.True(t, lm.Running())
}

func TestLifecycleStartFailureStaysStopped(t *testing.T) {
    tr := newFakeTransport()
    startErr := errors.New("address in use")
    tr.setStartErr(startErr)
    reg := prometheus.NewRegistry()
    metrics := NewMetrics(reg)
    lm := NewLifecycleManager(tr, &fakeConn{}, nopLogger(), metrics)
    ctx := context.Background()

    err := lm.HandleEvent(ctx, Established("10.0.0.2"))
    require.ErrorIs(t, err, startErr)
    assert.Equal(t, stateNoService, lm.State())
    assert.False(t, lm.Running())

    // A lost link now has nothing to stop.
    require.NoError(t, lm.HandleEvent(ctx, Lost()))
    assert.Equal(t, []string{"start"}, tr.Calls())

    tr.setStartErr(nil)
    require.NoError(t, lm.HandleEvent(ctx, Established("10.0.0.2")))
    assert.Equal(t, stateServiceRunning, lm.State())
    assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ServiceStarts.WithLabelValues("failure")))
    assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ServiceStarts.WithLabelValues("success")))
    assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ServiceRunning))
}

func TestLifecycleStartedConnects(t *testing.T) {
    conn := &fakeConn{}
    lm := NewLifecycleManager(newFakeTransport(), conn, nopLogger(), nil)

    require.NoError(t, lm.HandleEvent(context.Background(), ConnEvent{Kind: EventStarted}))
    require.NoError(t, lm.HandleEvent(context.Background(), ConnEvent{Kind: EventOther}))

    connects, reconnects := conn.counts()
    assert.Equal(t, 1, connects)
    assert.Equal(t, 0, reconnects)
}

func TestLifecycleReconnectErrorIsNotFatal(t *testing.T) {
    tr := newFakeTransport()
    conn := &fakeConn{err: errors.New("wpa_cli: no such interface")}
    lm := NewLifecycleManager(tr, conn, nopLogger(), nil)
    ctx := context.Background()

    require.NoError(t, lm.HandleEvent(ctx, Established("10.0.0.2")))
    require.NoError(t, lm.HandleEvent(ctx, Lost()))
    assert.Equal(t, []string{"start", "stop"}, tr.Calls())
}

func TestLifecycleShutdown(t *testing.T) {
    tr := newFakeTransport()
    conn := &fakeConn{}
    lm := NewLifecycleManager(tr, conn, nopLogger(), nil)
    ctx := context.Background()

    lm.Shutdown(ctx)
    assert.Empty(t, tr.Calls())

    require.NoError(t, lm.HandleEvent(ctx, Established("10.0.0.2")))
    lm.Shutdown(ctx)
    lm.Shutdown(ctx)

    assert.Equal(t, []string{"start", "stop"}, tr.Calls())
    assert.Equal(t, stateNoService, lm.State())
    _, reconnects := conn.counts()
    assert.Equal(t, 0, reconnects)
}

func TestLifecycleBalanceStaysWithinBounds(t *testing.T) {
    rng := rand.New(rand.NewSource(42))
    tr := newFakeTransport()
    lm := NewLifecycleManager(tr, &fakeConn{}, nopLogger(), nil)
    ctx := context.Background()

    for i := 0; i < 500; i++ {
        switch rng.Intn(4) {
        case 0, 1:
            _ = lm.HandleEvent(ctx, Established("10.0.0.2"))
        case 2:
            _ = lm.HandleEvent(ctx, Lost())
        case 3:
            // Flap the transport so some starts fail.
            if rng.Intn(2) == 0 {
                tr.setStartErr(errors.New("flaky"))
            } else {
                tr.setStartErr(nil)
            }
        }
        require.Equal(t, lm.Running(), tr.balance == 1, "iteration %d", i)
    }
    assert.LessOrEqual(t, tr.maxBal, 1)
    assert.GreaterOrEqual(t, tr.minBal, 0)
    assert.Zero(t, tr.badStops, "stop issued for a handle that was not live")
}

func TestLifecycleIgnoredEventsAreLogged(t *testing.T) {
    tr := newFakeTransport()
    logger, logs := observedLogger()
    lm := NewLifecycleManager(tr, &fakeConn{}, logger, nil)
    ctx := context.Background()

    require.NoError(t, lm.HandleEvent(ctx, ConnEvent{Kind: EventOther}))
    require.NoError(t, lm.HandleEvent(ctx, ConnEvent{Kind: ConnEventKind(42)}))

    assert.Empty(t, tr.Calls())
    assert.Equal(t, 1, logs.FilterMessage("ignoring connectivity event").Len())
    assert.Equal(t, 1, logs.FilterMessage("unknown connectivity event").Len())
}
