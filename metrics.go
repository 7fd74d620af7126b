package main

import (
    "github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors exported on /metrics.  Methods
// handle a nil receiver, so a nil *Metrics disables collection.
type Metrics struct {
    ButtonWakes     prometheus.Counter
    ButtonPresses   prometheus.Counter
    ButtonCoalesced prometheus.Counter
    IndicatorErrors prometheus.Counter
    ServiceStarts   *prometheus.CounterVec // result=[success, failure]
    ServiceStops    *prometheus.CounterVec // result=[success, failure]
    ServiceRunning  prometheus.Gauge
    SensorReads     *prometheus.CounterVec // result=[ok, timeout, checksum, bus]
    Temperature     prometheus.Gauge
    Humidity        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.  If reg is
// nil, prometheus.DefaultRegisterer is used.
func NewMetrics(reg prometheus.Registerer) *Metrics {
    if reg == nil {
        reg = prometheus.DefaultRegisterer
    }
    m := &Metrics{
        ButtonWakes: prometheus.NewCounter(prometheus.CounterOpts{
            Name: "weathernode_button_wakes_total",
            Help: "Worker wake-ups, including the suppressed first wake",
        }),
        ButtonPresses: prometheus.NewCounter(prometheus.CounterOpts{
            Name: "weathernode_button_presses_total",
            Help: "Button presses handled by the indicator worker",
        }),
        ButtonCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
            Name: "weathernode_button_edges_coalesced_total",
            Help: "Edges merged into an already pending wake",
        }),
        IndicatorErrors: prometheus.NewCounter(prometheus.CounterOpts{
            Name: "weathernode_indicator_errors_total",
            Help: "Failed indicator writes",
        }),
        ServiceStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
            Name: "weathernode_service_starts_total",
            Help: "Web service start attempts by result",
        }, []string{"result"}),
        ServiceStops: prometheus.NewCounterVec(prometheus.CounterOpts{
            Name: "weathernode_service_stops_total",
            Help: "Web service stops by result",
        }, []string{"result"}),
        ServiceRunning: prometheus.NewGauge(prometheus.GaugeOpts{
            Name: "weathernode_service_running",
            Help: "1 while the web service is running",
        }),
        SensorReads: prometheus.NewCounterVec(prometheus.CounterOpts{
            Name: "weathernode_sensor_reads_total",
            Help: "Sensor reads by result",
        }, []string{"result"}),
        Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
            Name: "weathernode_temperature_celsius",
            Help: "Last temperature reading",
        }),
        Humidity: prometheus.NewGauge(prometheus.GaugeOpts{
            Name: "weathernode_humidity_percent",
            Help: "Last relative humidity reading",
        }),
    }
    reg.MustRegister(
        m.ButtonWakes,
        m.ButtonPresses,
        m.ButtonCoalesced,
        m.IndicatorErrors,
        m.ServiceStarts,
        m.ServiceStops,
        m.ServiceRunning,
        m.SensorReads,
        m.Temperature,
        m.Humidity,
    )
    return m
}

func result(ok bool) string {
    if ok {
        return "success"
    }
    return "failure"
}

// RecordWake counts a worker wake-up.
func (m *Metrics) RecordWake() {
    if m == nil {
        return
    }
    m.ButtonWakes.Inc()
}

// RecordPress counts a handled button press.
func (m *Metrics) RecordPress() {
    if m == nil {
        return
    }
    m.ButtonPresses.Inc()
}

// RecordCoalesced counts an edge merged into a pending wake.
func (m *Metrics) RecordCoalesced() {
    if m == nil {
        return
    }
    m.ButtonCoalesced.Inc()
}

// RecordIndicatorError counts a failed indicator write.
func (m *Metrics) RecordIndicatorError() {
    if m == nil {
        return
    }
    m.IndicatorErrors.Inc()
}

// RecordStart counts a service start attempt and updates the running gauge.
func (m *Metrics) RecordStart(ok bool) {
    if m == nil {
        return
    }
    m.ServiceStarts.WithLabelValues(result(ok)).Inc()
    if ok {
        m.ServiceRunning.Set(1)
    }
}

// RecordStop counts a service stop.  The service is considered down either
// way because the handle is always released.
func (m *Metrics) RecordStop(ok bool) {
    if m == nil {
        return
    }
    m.ServiceStops.WithLabelValues(result(ok)).Inc()
    m.ServiceRunning.Set(0)
}

// RecordReading counts a sensor read and, on success, publishes the values.
func (m *Metrics) RecordReading(r Reading, err error) {
    if m == nil {
        return
    }
    if err != nil {
        kind := string(sensorErrorKind(err))
        if kind == "" {
            kind = "unknown"
        }
        m.SensorReads.WithLabelValues(kind).Inc()
        return
    }
    m.SensorReads.WithLabelValues("ok").Inc()
    m.Temperature.Set(r.Temperature)
    m.Humidity.Set(r.Humidity)
}
