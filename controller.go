package main

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "golang.org/x/sync/errgroup"
)

// Controller owns every component of the node.  It is built once at boot and
// is the only place that knows how they are wired: the edge watcher reaches
// the worker through the dispatcher it holds, and the connectivity monitor
// reaches the lifecycle manager through the callback registered here.
type Controller struct {
    cfgMgr     *ConfigManager
    logger     *EventLogger
    registry   *prometheus.Registry
    metrics    *Metrics
    sensor     Sensor
    button     edgePin
    dispatcher *Dispatcher
    web        *WebServer
    wifi       *WifiMonitor
    lifecycle  *LifecycleManager
    reporter   *Reporter
}

// NewController initialises GPIO and builds the components from the loaded
// configuration.  Nothing runs until Run is called.
func NewController(cfgMgr *ConfigManager, logger *EventLogger) (*Controller, error) {
    if err := initGPIO(); err != nil {
        return nil, fmt.Errorf("gpio init: %w", err)
    }
    cfg := cfgMgr.Get()

    sensorPin, err := openPin(cfg.SensorPin)
    if err != nil {
        return nil, fmt.Errorf("sensor pin: %w", err)
    }
    ledPin, err := openPin(cfg.LEDPin)
    if err != nil {
        return nil, fmt.Errorf("led pin: %w", err)
    }
    buttonPin, err := openPin(cfg.ButtonPin)
    if err != nil {
        return nil, fmt.Errorf("button pin: %w", err)
    }
    led, err := NewPinIndicator(ledPin)
    if err != nil {
        return nil, fmt.Errorf("led pin: %w", err)
    }

    registry := prometheus.NewRegistry()
    registry.MustRegister(collectors.NewGoCollector())
    metrics := NewMetrics(registry)

    c := &Controller{
        cfgMgr:   cfgMgr,
        logger:   logger,
        registry: registry,
        metrics:  metrics,
        sensor:   NewDHT22(sensorPin),
        button:   buttonPin,
    }
    indicator := multiIndicator{led, LogIndicator{logger: logger.Named("indicator")}}
    c.dispatcher = NewDispatcher(indicator, time.Duration(cfg.HoldMS)*time.Millisecond, logger.Named("dispatcher"), metrics)
    c.web = NewWebServer(fmt.Sprintf(":%d", cfg.HTTPPort), logger.Named("http"))
    c.wifi = NewWifiMonitor(cfg.Interface, time.Duration(cfg.PollIntervalMS)*time.Millisecond,
        cfg.ConnectCommand, cfg.ReconnectCommand, logger.Named("wifi"))
    c.lifecycle = NewLifecycleManager(c.web, c.wifi, logger.Named("lifecycle"), metrics)
    c.reporter = NewReporter(c.sensor, time.Duration(cfg.ReportIntervalS)*time.Second, logger.Named("reporter"), metrics)

    c.registerRoutes(cfg)
    c.wifi.OnStateChange(func(ev ConnEvent) {
        // The lifecycle manager logs the failure; asking the monitor to
        // report the link again retries the start on its next poll.
        if err := c.lifecycle.HandleEvent(context.Background(), ev); err != nil {
            c.wifi.Retry()
        }
    })
    return c, nil
}

// registerRoutes installs the handlers served while the link is up.
func (c *Controller) registerRoutes(cfg Config) {
    page := weatherHandler(cfg.Title, c.sensor, c.metrics, c.logger.Named("http"))
    c.web.RegisterRoute("/", http.RedirectHandler("/weather", http.StatusTemporaryRedirect))
    c.web.RegisterRoute("/weather", page)
    c.web.RegisterRoute("/temp", page)
    c.web.RegisterRoute("/metrics", metricsHandler(c.registry))
    c.web.RegisterRoute("/api/status", requireAdmin(c.cfgMgr, c.handleStatus))
    c.web.RegisterRoute("/api/test_trigger", requireAdmin(c.cfgMgr, c.handleTestTrigger))
}

// Run starts the worker, the edge watcher, the reporter and the connectivity
// monitor, and blocks until ctx is cancelled or one of them fails.  The web
// service is stopped before Run returns.
func (c *Controller) Run(ctx context.Context) error {
    g, ctx := errgroup.WithContext(ctx)
    g.Go(func() error { return c.dispatcher.Run(ctx) })
    // The worker's first wake is the boot wake; it is consumed without a
    // pulse so that the first real press lights the indicator.
    c.dispatcher.Notify()
    g.Go(func() error { return c.dispatcher.WatchEdges(ctx, c.button) })
    g.Go(func() error { return c.reporter.Run(ctx) })
    g.Go(func() error { return c.wifi.Run(ctx) })

    err := g.Wait()
    c.lifecycle.Shutdown(context.Background())
    if errors.Is(err, context.Canceled) {
        return nil
    }
    return err
}
