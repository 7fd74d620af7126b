package main

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "html"
    "net"
    "net/http"
    "sync"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "go.uber.org/zap"
)

// weatherPage is the page served on the weather routes.  The meta refresh
// makes a browser poll the node every two seconds.
const weatherPage = "<html>" +
    "<head><title>%s</title>" +
    "<meta http-equiv=\"refresh\" content=\"2\" >" +
    "</head>" +
    "<body>" +
    "<p>Temperature: %.1f </p>" +
    "<p>Humidity: %.1f %%</p>" +
    "</body>" +
    "</html>"

// sensorErrorPage is served instead of weatherPage when the sensor could not
// be read.  It keeps the refresh so the page recovers on its own.
const sensorErrorPage = "<html>" +
    "<head><title>%s</title>" +
    "<meta http-equiv=\"refresh\" content=\"2\" >" +
    "</head>" +
    "<body>" +
    "<p>sensor error: %s</p>" +
    "</body>" +
    "</html>"

// defaultShutdownTimeout bounds how long Stop waits for in-flight requests.
const defaultShutdownTimeout = 5 * time.Second

// WebServer is the network transport managed by the lifecycle manager.  Each
// Start listens afresh and serves every route registered so far; Stop shuts
// that instance down.  At most one instance runs at a time.
type WebServer struct {
    addr            string
    logger          *zap.SugaredLogger
    shutdownTimeout time.Duration

    mu     sync.Mutex
    routes []route
    active *webHandle
}

type route struct {
    path    string
    handler http.Handler
}

// webHandle is the ServiceHandle returned by WebServer.Start.
type webHandle struct {
    srv  *http.Server
    ln   net.Listener
    done chan struct{}
}

// Addr returns the address the instance is listening on.
func (h *webHandle) Addr() string { return h.ln.Addr().String() }

// NewWebServer returns a transport listening on addr (host:port) when started.
func NewWebServer(addr string, logger *zap.SugaredLogger) *WebServer {
    return &WebServer{addr: addr, logger: logger, shutdownTimeout: defaultShutdownTimeout}
}

// RegisterRoute adds a handler for path.  Routes take effect on the next
// Start.
func (ws *WebServer) RegisterRoute(path string, handler http.Handler) {
    ws.mu.Lock()
    defer ws.mu.Unlock()
    ws.routes = append(ws.routes, route{path: path, handler: handler})
}

// router builds the chi router for one instance.
func (ws *WebServer) router() http.Handler {
    r := chi.NewRouter()
    r.Use(middleware.RequestID)
    r.Use(ws.requestLogger)
    r.Use(middleware.Recoverer)
    for _, rt := range ws.routes {
        r.Handle(rt.path, rt.handler)
    }
    return r
}

// requestLogger logs each request at debug level once it completes.
func (ws *WebServer) requestLogger(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
        next.ServeHTTP(ww, r)
        ws.logger.Debugw("request",
            "request_id", middleware.GetReqID(r.Context()),
            "method", r.Method,
            "path", r.URL.Path,
            "status", ww.Status(),
            "duration", time.Since(start),
        )
    })
}

// Start listens and serves in the background.
func (ws *WebServer) Start() (ServiceHandle, error) {
    ws.mu.Lock()
    defer ws.mu.Unlock()
    if ws.active != nil {
        return nil, errors.New("web server already running")
    }
    ln, err := net.Listen("tcp", ws.addr)
    if err != nil {
        return nil, fmt.Errorf("listen %s: %w", ws.addr, err)
    }
    h := &webHandle{
        srv: &http.Server{
            Handler:           ws.router(),
            ReadHeaderTimeout: 5 * time.Second,
        },
        ln:   ln,
        done: make(chan struct{}),
    }
    go func() {
        defer close(h.done)
        if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
            ws.logger.Errorw("web server exited", "addr", h.Addr(), "error", err)
        }
    }()
    ws.active = h
    ws.logger.Infow("listening", "url", "http://"+h.Addr())
    return h, nil
}

// Addr returns the address of the running instance, or "" when stopped.
func (ws *WebServer) Addr() string {
    ws.mu.Lock()
    defer ws.mu.Unlock()
    if ws.active == nil {
        return ""
    }
    return ws.active.Addr()
}

// Stop gracefully shuts the instance down.  The instance is forgotten even if
// the shutdown times out, in which case remaining connections are closed.
func (ws *WebServer) Stop(handle ServiceHandle) error {
    h, ok := handle.(*webHandle)
    ws.mu.Lock()
    if !ok || h != ws.active {
        ws.mu.Unlock()
        return ErrNoHandle
    }
    ws.active = nil
    ws.mu.Unlock()

    ctx, cancel := context.WithTimeout(context.Background(), ws.shutdownTimeout)
    defer cancel()
    err := h.srv.Shutdown(ctx)
    if err != nil {
        _ = h.srv.Close()
    }
    <-h.done
    return err
}

// weatherHandler serves the current reading as an HTML page.  A sensor
// failure still produces a page, with status 503 and the error kind.
func weatherHandler(title string, sensor Sensor, metrics *Metrics, logger *zap.SugaredLogger) http.HandlerFunc {
    title = html.EscapeString(title)
    return func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodGet && r.Method != http.MethodHead {
            http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
            return
        }
        reading, err := sensor.Read()
        metrics.RecordReading(reading, err)
        w.Header().Set("Content-Type", "text/html; charset=utf-8")
        if err != nil {
            kind := sensorErrorKind(err)
            if kind == "" {
                kind = "unknown"
            }
            logger.Warnw("sensor read failed", "path", r.URL.Path, "error", err)
            w.WriteHeader(http.StatusServiceUnavailable)
            fmt.Fprintf(w, sensorErrorPage, title, kind)
            return
        }
        logger.Debugw("sensor read", "temperature", reading.Temperature, "humidity", reading.Humidity)
        fmt.Fprintf(w, weatherPage, title, reading.Temperature, reading.Humidity)
    }
}

// nodeStatus is the body of GET /api/status.
type nodeStatus struct {
    Lifecycle      string   `json:"lifecycle"`
    ServiceRunning bool     `json:"service_running"`
    ServiceAddr    string   `json:"service_addr,omitempty"`
    ButtonPresses  uint64   `json:"button_presses"`
    WorkerWakes    uint64   `json:"worker_wakes"`
    Reading        *Reading `json:"reading,omitempty"`
    SensorError    string   `json:"sensor_error,omitempty"`
}

// handleStatus returns the lifecycle state, the dispatcher counters and the
// current reading.  Admins only.
func (c *Controller) handleStatus(w http.ResponseWriter, r *http.Request, user User) {
    if r.Method != http.MethodGet {
        http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
        return
    }
    st := nodeStatus{
        Lifecycle:      c.lifecycle.State(),
        ServiceRunning: c.lifecycle.Running(),
        ServiceAddr:    c.web.Addr(),
        ButtonPresses:  c.dispatcher.Presses(),
        WorkerWakes:    c.dispatcher.Wakes(),
    }
    if reading, err := c.sensor.Read(); err != nil {
        st.SensorError = err.Error()
    } else {
        st.Reading = &reading
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(st)
}

// handleTestTrigger simulates a button edge.  The request goes through the
// same Notify path as the edge watcher, so coalescing and first-wake
// suppression apply.  Admins only.
func (c *Controller) handleTestTrigger(w http.ResponseWriter, r *http.Request, user User) {
    if r.Method != http.MethodPost {
        http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
        return
    }
    c.dispatcher.Notify()
    c.logger.Log("test trigger by %s", user.Username)
    w.WriteHeader(http.StatusAccepted)
}

// metricsHandler exposes the collectors registered with g.
func metricsHandler(g prometheus.Gatherer) http.Handler {
    return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
