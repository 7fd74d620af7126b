package main

import (
    "errors"
    "fmt"
    "sync"
    "time"

    "periph.io/x/conn/v3/gpio"
)

// Sensor produces temperature/humidity readings.  Implementations must be
// safe for concurrent use: the HTTP handlers and the reporter share one.
type Sensor interface {
    Read() (Reading, error)
}

// SensorErrorKind classifies why a reading failed.
type SensorErrorKind string

const (
    SensorTimeout  SensorErrorKind = "timeout"
    SensorChecksum SensorErrorKind = "checksum"
    SensorBus      SensorErrorKind = "bus"
)

// SensorError is returned by Sensor.Read when no valid reading could be taken.
type SensorError struct {
    Kind SensorErrorKind
    Err  error
}

func (e *SensorError) Error() string {
    if e.Err == nil {
        return "sensor " + string(e.Kind)
    }
    return fmt.Sprintf("sensor %s: %v", e.Kind, e.Err)
}

func (e *SensorError) Unwrap() error { return e.Err }

// sensorErrorKind extracts the kind from err, or "" when err is not a
// SensorError.
func sensorErrorKind(err error) SensorErrorKind {
    var se *SensorError
    if errors.As(err, &se) {
        return se.Kind
    }
    return ""
}

// dhtPin is the subset of gpio.PinIO the DHT22 driver needs.
type dhtPin interface {
    Out(l gpio.Level) error
    In(pull gpio.Pull, edge gpio.Edge) error
    Read() gpio.Level
    WaitForEdge(timeout time.Duration) bool
}

const (
    // dhtMinInterval is the shortest period between two conversions the
    // DHT22 supports.  Reads inside the window return the cached sample.
    dhtMinInterval = 2 * time.Second
    // dhtStartLow is how long the host holds the line low to request a
    // conversion (datasheet: at least 1ms).
    dhtStartLow = 1200 * time.Microsecond
    // dhtEdgeTimeout bounds the wait for any single edge of the response.
    dhtEdgeTimeout = 5 * time.Millisecond
    // dhtOneThreshold separates a 0 bit (~27us high) from a 1 bit (~70us high).
    dhtOneThreshold = 50 * time.Microsecond
    dhtBits         = 40
)

// DHT22 reads an AM2302/DHT22 single-wire sensor by bit-banging a GPIO pin.
type DHT22 struct {
    mu     sync.Mutex
    pin    dhtPin
    now    func() time.Time
    last   time.Time
    cached Reading
    valid  bool
}

// NewDHT22 returns a driver for the sensor attached to pin.
func NewDHT22(pin dhtPin) *DHT22 {
    return &DHT22{pin: pin, now: time.Now}
}

// Read triggers a conversion and decodes the 40 bit frame.  Readings are
// cached for dhtMinInterval since the sensor cannot convert faster.
func (d *DHT22) Read() (Reading, error) {
    d.mu.Lock()
    defer d.mu.Unlock()
    if d.valid && d.now().Sub(d.last) < dhtMinInterval {
        return d.cached, nil
    }
    highs, err := d.capture()
    // Leave the line released so the pull-up keeps it idle high.
    _ = d.pin.In(gpio.PullUp, gpio.NoEdge)
    if err != nil {
        return Reading{}, err
    }
    frame, err := pulsesToFrame(highs)
    if err != nil {
        return Reading{}, err
    }
    r, err := decodeDHT22(frame)
    if err != nil {
        return Reading{}, err
    }
    d.cached, d.valid, d.last = r, true, d.now()
    return r, nil
}

// capture performs the start handshake and returns the duration of every
// high period the sensor sent, including the 80us response pulse.
func (d *DHT22) capture() ([]time.Duration, error) {
    if err := d.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
        return nil, &SensorError{Kind: SensorBus, Err: err}
    }
    if d.pin.Read() == gpio.Low {
        return nil, &SensorError{Kind: SensorBus, Err: errors.New("line held low")}
    }
    if err := d.pin.Out(gpio.Low); err != nil {
        return nil, &SensorError{Kind: SensorBus, Err: err}
    }
    time.Sleep(dhtStartLow)
    if err := d.pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
        return nil, &SensorError{Kind: SensorBus, Err: err}
    }

    // The response is 80us low, 80us high, then 40 x (50us low + data high),
    // then a final low: one rising and one falling edge per high period.
    highs := make([]time.Duration, 0, dhtBits+1)
    var rose time.Time
    for len(highs) < dhtBits+1 {
        if !d.pin.WaitForEdge(dhtEdgeTimeout) {
            return nil, &SensorError{Kind: SensorTimeout, Err: fmt.Errorf("after %d pulses", len(highs))}
        }
        t := time.Now()
        if d.pin.Read() == gpio.High {
            rose = t
            continue
        }
        if !rose.IsZero() {
            highs = append(highs, t.Sub(rose))
            rose = time.Time{}
        }
    }
    return highs, nil
}

// pulsesToFrame turns the measured high periods into the 5 byte frame.  The
// first period is the sensor's response pulse and carries no data.
func pulsesToFrame(highs []time.Duration) ([5]byte, error) {
    var frame [5]byte
    if len(highs) != dhtBits+1 {
        return frame, &SensorError{Kind: SensorTimeout, Err: fmt.Errorf("got %d pulses, want %d", len(highs), dhtBits+1)}
    }
    for i, h := range highs[1:] {
        frame[i/8] <<= 1
        if h > dhtOneThreshold {
            frame[i/8] |= 1
        }
    }
    return frame, nil
}

// decodeDHT22 validates the checksum and converts the raw frame.  Humidity
// and temperature are big endian tenths; the temperature sign is bit 15.
func decodeDHT22(frame [5]byte) (Reading, error) {
    sum := frame[0] + frame[1] + frame[2] + frame[3]
    if sum != frame[4] {
        return Reading{}, &SensorError{Kind: SensorChecksum, Err: fmt.Errorf("got %#02x, want %#02x", frame[4], sum)}
    }
    hum := int(frame[0])<<8 | int(frame[1])
    temp := int(frame[2]&0x7f)<<8 | int(frame[3])
    if frame[2]&0x80 != 0 {
        temp = -temp
    }
    return Reading{Temperature: float64(temp) / 10, Humidity: float64(hum) / 10}, nil
}
