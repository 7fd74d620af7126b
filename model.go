package main

import "fmt"

// ConnState enumerates the states reported by the wireless connectivity
// monitor.  The core never drives these transitions itself; it only reacts
// to the events emitted when they change.
type ConnState int

const (
    ConnDisconnected ConnState = iota
    ConnConnecting
    ConnConnected
)

// String returns a lower case name suitable for logs and the status API.
func (s ConnState) String() string {
    switch s {
    case ConnDisconnected:
        return "disconnected"
    case ConnConnecting:
        return "connecting"
    case ConnConnected:
        return "connected"
    default:
        return fmt.Sprintf("ConnState(%d)", int(s))
    }
}

// ConnEventKind discriminates the connectivity events delivered to the
// lifecycle manager.
type ConnEventKind int

const (
    // EventStarted is fired once the radio is up and ready to associate.
    EventStarted ConnEventKind = iota
    // EventLinkEstablished is fired when the link is up and an address has
    // been assigned.  Address carries the assigned address.
    EventLinkEstablished
    // EventLinkLost is fired when the link drops.
    EventLinkLost
    // EventOther covers notifications the lifecycle manager ignores.
    EventOther
)

// String returns the event name used in logs.
func (k ConnEventKind) String() string {
    switch k {
    case EventStarted:
        return "started"
    case EventLinkEstablished:
        return "link_established"
    case EventLinkLost:
        return "link_lost"
    case EventOther:
        return "other"
    default:
        return fmt.Sprintf("ConnEventKind(%d)", int(k))
    }
}

// ConnEvent is a single notification from the connectivity monitor.
type ConnEvent struct {
    Kind    ConnEventKind
    Address string // only set for EventLinkEstablished
}

// Established builds a LinkEstablished event for addr.
func Established(addr string) ConnEvent {
    return ConnEvent{Kind: EventLinkEstablished, Address: addr}
}

// Lost builds a LinkLost event.
func Lost() ConnEvent {
    return ConnEvent{Kind: EventLinkLost}
}

// Reading is one temperature/humidity sample from the sensor.
type Reading struct {
    Temperature float64 `json:"temperature"` // degrees Celsius
    Humidity    float64 `json:"humidity"`    // relative humidity in percent
}

// User represents an account allowed to use the diagnostic API.
// Passwords are stored as bcrypt hashes.
type User struct {
    Username     string `json:"username" validate:"required"`
    PasswordHash string `json:"password_hash" validate:"required"`
    Admin        bool   `json:"admin"`
}

// Config is the top‑level structure serialized to config.json.
type Config struct {
    HTTPPort         int      `json:"http_port" validate:"min=1,max=65535"`
    Title            string   `json:"title" validate:"required"`
    LogFile          string   `json:"log_file"`
    LogLevel         string   `json:"log_level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
    Interface        string   `json:"interface" validate:"required"`
    PollIntervalMS   int      `json:"poll_interval_ms" validate:"min=50"`
    ConnectCommand   []string `json:"connect_command"`
    ReconnectCommand []string `json:"reconnect_command"`
    SensorPin        int      `json:"sensor_pin" validate:"min=0"`
    ButtonPin        int      `json:"button_pin" validate:"min=0,nefield=LEDPin"`
    LEDPin           int      `json:"led_pin" validate:"min=0"`
    HoldMS           int      `json:"hold_ms" validate:"min=0"`
    ReportIntervalS  int      `json:"report_interval_s" validate:"min=0"`
    Users            []User   `json:"users" validate:"dive"`
}
