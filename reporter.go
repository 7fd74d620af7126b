package main

import (
    "context"
    "time"

    "go.uber.org/zap"
)

// Reporter periodically reads the sensor and logs the result.  It shares
// nothing with the dispatcher or the lifecycle manager; the sensor driver
// serializes access itself.
type Reporter struct {
    sensor   Sensor
    interval time.Duration
    logger   *zap.SugaredLogger
    metrics  *Metrics
}

// NewReporter returns a reporter reading every interval.
func NewReporter(sensor Sensor, interval time.Duration, logger *zap.SugaredLogger, metrics *Metrics) *Reporter {
    return &Reporter{sensor: sensor, interval: interval, logger: logger, metrics: metrics}
}

// Run reports until ctx is done.  A zero interval disables reporting.
func (r *Reporter) Run(ctx context.Context) error {
    if r.interval <= 0 {
        <-ctx.Done()
        return ctx.Err()
    }
    t := time.NewTicker(r.interval)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-t.C:
            r.report()
        }
    }
}

func (r *Reporter) report() {
    reading, err := r.sensor.Read()
    r.metrics.RecordReading(reading, err)
    if err != nil {
        r.logger.Warnw("sensor read failed", "error", err)
        return
    }
    r.logger.Infof("Humidity: %.1f%%, Tmp: %.1f^C", reading.Humidity, reading.Temperature)
}
