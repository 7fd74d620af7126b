package main

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestSignalCoalesces(t *testing.T) {
    s := NewSignal()
    assert.False(t, s.Pending())

    assert.True(t, s.Notify())
    assert.False(t, s.Notify())
    assert.False(t, s.Notify())
    assert.True(t, s.Pending())

    require.NoError(t, s.Wait(context.Background()))
    assert.False(t, s.Pending())

    // A notify after the wake was consumed is kept for the next wait.
    assert.True(t, s.Notify())
    require.NoError(t, s.Wait(context.Background()))
}

func TestSignalWaitHonoursContext(t *testing.T) {
    s := NewSignal()
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
    defer cancel()
    require.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}

func TestSignalWaitBlocksUntilNotify(t *testing.T) {
    s := NewSignal()
    woke := make(chan error, 1)
    go func() { woke <- s.Wait(context.Background()) }()

    select {
    case <-woke:
        t.Fatal("wait returned without a notify")
    case <-time.After(20 * time.Millisecond):
    }
    s.Notify()
    select {
    case err := <-woke:
        require.NoError(t, err)
    case <-time.After(time.Second):
        t.Fatal("wait did not return after notify")
    }
}

func TestSignalConcurrentNotify(t *testing.T) {
    s := NewSignal()
    var (
        wg    sync.WaitGroup
        mu    sync.Mutex
        fresh int
    )
    for i := 0; i < 64; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            if s.Notify() {
                mu.Lock()
                fresh++
                mu.Unlock()
            }
        }()
    }
    wg.Wait()
    assert.Equal(t, 1, fresh)
    assert.True(t, s.Pending())
}
