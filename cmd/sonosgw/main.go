package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/stepherg/sonosgw/internal/action"
	"github.com/stepherg/sonosgw/internal/api"
	"github.com/stepherg/sonosgw/internal/config"
	"github.com/stepherg/sonosgw/internal/discovery"
	"github.com/stepherg/sonosgw/internal/discovery/mqttbridge"
	"github.com/stepherg/sonosgw/internal/events"
	"github.com/stepherg/sonosgw/internal/logging"
	"github.com/stepherg/sonosgw/internal/metrics"
	"github.com/stepherg/sonosgw/internal/tracing"
	"github.com/stepherg/sonosgw/internal/webhook"
	"github.com/stepherg/sonosgw/internal/ws"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "settings.json", "settings file (json or yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("sonosgw stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	tp, err := tracing.Setup(cfg.Tracing)
	if err != nil {
		return err
	}

	disc, closeDisc, err := newDiscovery(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDisc()

	registry := action.NewRegistry()
	action.RegisterBuiltins(registry, disc)
	logger.Info("actions registered", zap.Strings("actions", registry.Names()))

	var sockets *ws.Server
	opts := events.Options{
		Webhook: webhook.Config{
			URL:            cfg.Webhook,
			HeaderName:     cfg.WebhookHeaderName,
			HeaderContents: cfg.WebhookHeaderContents,
			Format:         cfg.WebhookFormat,
			Timeout:        cfg.WebhookTimeout,
		},
		TypeField: cfg.WebhookType,
		DataField: cfg.WebhookData,
	}
	if cfg.Socket {
		sockets = ws.NewServer(logger.Named("ws"))
		opts.Sockets = sockets
	}
	bus := events.New(disc, opts, logger.Named("events"))

	var socketHandler http.Handler
	if sockets != nil {
		socketHandler = sockets
	}
	handler := api.NewHandler(api.New(disc, registry, logger.Named("api")), socketHandler)

	servers := []*http.Server{{Addr: cfg.Addr(), Handler: handler}}
	if cfg.TLSEnabled() {
		servers = append(servers, &http.Server{Addr: cfg.SecureAddr(), Handler: handler})
	}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: mux})
	}

	errc := make(chan error, len(servers))
	for i, srv := range servers {
		srv := srv
		secure := i == 1 && cfg.TLSEnabled()
		go func() {
			logger.Info("listening", zap.String("addr", srv.Addr), zap.Bool("tls", secure))
			var err error
			if secure {
				err = srv.ListenAndServeTLS(cfg.HTTPS.Cert, cfg.HTTPS.Key)
			} else {
				err = srv.ListenAndServe()
			}
			if !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("%s: %w", srv.Addr, err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	bus.Wait()
	if err := tracing.Shutdown(shutdownCtx, tp); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	return runErr
}

// newDiscovery builds the configured backend and its release func.
func newDiscovery(cfg config.Config, logger *zap.Logger) (discovery.Service, func(), error) {
	switch cfg.Discovery.Mode {
	case config.DiscoveryMQTT:
		cli, err := mqttbridge.Dial(cfg.Discovery.MQTT.Broker, cfg.Discovery.MQTT.ClientID, logger.Named("mqtt"))
		if err != nil {
			return nil, nil, err
		}
		b := mqttbridge.New(cli, cfg.Discovery.MQTT.Prefix, logger.Named("discovery"))
		if err := b.Start(); err != nil {
			cli.Close()
			return nil, nil, err
		}
		return b, cli.Close, nil
	default:
		var specs []discovery.ZoneSpec
		if cfg.Discovery.ZonesFile != "" {
			var err error
			if specs, err = discovery.LoadZonesFile(cfg.Discovery.ZonesFile); err != nil {
				return nil, nil, err
			}
		}
		m, err := discovery.NewMemory(specs)
		if err != nil {
			return nil, nil, err
		}
		if n := len(m.Zones()); n == 0 {
			logger.Warn("memory discovery has no zones, every request will fail until discovery.zonesFile declares some",
				zap.String("zonesFile", cfg.Discovery.ZonesFile))
		} else {
			logger.Info("memory discovery", zap.Int("zones", n))
		}
		return m, func() {}, nil
	}
}
