//go:build linux && (arm || arm64) && !disablegpio

// This file provides a Raspberry Pi implementation of the HAL functions using
// the periph.io library.  When cross‑compiling on other platforms or when
// the build tag "disablegpio" is specified, hal.go will be used instead.

package main

import (
    "fmt"
    // Use the new periph module layout.  See https://periph.io/news/2020/a_new_start/
    "periph.io/x/conn/v3/gpio"
    "periph.io/x/conn/v3/gpio/gpioreg"
    "periph.io/x/host/v3"
)

// initGPIO initialises periph host state.  Returning an error here will
// prevent the node from starting.  This function is called once during boot.
func initGPIO() error {
    _, err := host.Init()
    return err
}

// openPin looks up the specified GPIO pin by its BCM number.  host.Init can
// safely be called multiple times; subsequent calls will be no‑ops.
func openPin(num int) (gpio.PinIO, error) {
    if _, err := host.Init(); err != nil {
        return nil, fmt.Errorf("gpio init: %w", err)
    }
    p := gpioreg.ByName(fmt.Sprintf("GPIO%d", num))
    if p == nil {
        return nil, fmt.Errorf("gpio: no pin GPIO%d", num)
    }
    return p, nil
}
