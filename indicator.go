package main

// This file defines the indicator outputs toggled by the button worker.

import (
    "go.uber.org/zap"
    "periph.io/x/conn/v3/gpio"
)

// Indicator is an output the worker switches on and off for each button
// press.  Implementations may drive an LED, a relay or nothing at all.  If
// Set returns an error the worker logs it and carries on.
type Indicator interface {
    Name() string
    Set(on bool) error
}

// levelOut is the subset of gpio.PinOut an indicator pin needs.
type levelOut interface {
    Out(l gpio.Level) error
}

// PinIndicator drives a GPIO output high while the indicator is on.
type PinIndicator struct {
    pin levelOut
}

// NewPinIndicator configures pin as an output, initially low.
func NewPinIndicator(pin levelOut) (*PinIndicator, error) {
    if err := pin.Out(gpio.Low); err != nil {
        return nil, err
    }
    return &PinIndicator{pin: pin}, nil
}

// Name returns the type name of the indicator.
func (*PinIndicator) Name() string { return "pin" }

// Set writes the pin level.
func (p *PinIndicator) Set(on bool) error {
    return p.pin.Out(gpio.Level(on))
}

// LogIndicator records indicator changes in the log.  It is used when no LED
// is wired, and alongside the pin so toggles show up in the event log.
type LogIndicator struct {
    logger *zap.SugaredLogger
}

// Name returns the type name of the indicator.
func (LogIndicator) Name() string { return "log" }

// Set writes the new state to the log.
func (l LogIndicator) Set(on bool) error {
    l.logger.Debugw("indicator", "on", on)
    return nil
}

// multiIndicator fans a state change out to several indicators.  Every
// indicator is set even if an earlier one fails; the first error is returned.
type multiIndicator []Indicator

func (m multiIndicator) Name() string { return "multi" }

func (m multiIndicator) Set(on bool) error {
    var first error
    for _, ind := range m {
        if err := ind.Set(on); err != nil && first == nil {
            first = err
        }
    }
    return first
}
