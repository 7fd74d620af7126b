//go:build !linux || !(arm || arm64) || disablegpio

package main

// This file defines the hardware abstraction layer (HAL) used when the binary
// is not built for a Raspberry Pi.  Pins are periph test pins kept in memory,
// so the web server, the lifecycle manager and the dispatcher can run on a
// desktop machine.  Edges can be injected through the test trigger API.

import (
    "fmt"
    "sync"

    "periph.io/x/conn/v3/gpio"
    "periph.io/x/conn/v3/gpio/gpiotest"
)

var (
    stubMu   sync.Mutex
    stubPins = map[int]*gpiotest.Pin{}
)

// initGPIO performs any global initialisation required to access GPIO pins.
// In the stub implementation it does nothing.
func initGPIO() error {
    return nil
}

// openPin returns the in-memory pin for the given BCM number, creating it on
// first use.  Repeated calls return the same pin.
func openPin(num int) (gpio.PinIO, error) {
    if num < 0 {
        return nil, fmt.Errorf("invalid pin number %d", num)
    }
    stubMu.Lock()
    defer stubMu.Unlock()
    if p, ok := stubPins[num]; ok {
        return p, nil
    }
    p := &gpiotest.Pin{
        N:         fmt.Sprintf("GPIO%d", num),
        Num:       num,
        EdgesChan: make(chan gpio.Level, 1),
    }
    stubPins[num] = p
    return p, nil
}
