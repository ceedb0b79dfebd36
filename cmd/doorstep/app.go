package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goliatone/go-logger/glog"

	doorstep "github.com/goliatone/go-doorstep"
	"github.com/goliatone/go-doorstep/config"
	"github.com/goliatone/go-doorstep/metrics"
	"github.com/goliatone/go-doorstep/render"
	"github.com/goliatone/go-doorstep/store"
	"github.com/goliatone/go-doorstep/trip"
)

// app is everything a command needs, built once per invocation.
type app struct {
	cfg     *config.Config
	out     io.Writer
	logger  doorstep.Logger
	metrics metrics.Recorder
	prom    *metrics.PrometheusRecorder

	store   *store.Store
	orch    *trip.Orchestrator
	session *render.Session

	closers []func() error
}

func newApp(cfg *config.Config, out io.Writer, logOut io.Writer) (*app, error) {
	a := &app{cfg: cfg, out: out}
	a.logger = newLogger(cfg.Logging, logOut)
	a.metrics = metrics.Nop{}
	if cfg.Metrics.Enabled {
		prom, err := metrics.NewPrometheusRecorder(cfg.Metrics.Namespace)
		if err != nil {
			return nil, err
		}
		a.prom = prom
		a.metrics = prom
	}

	table := doorstep.DefaultTable()
	if cfg.ScenariosFile != "" {
		loaded, err := doorstep.LoadTable(cfg.ScenariosFile)
		if err != nil {
			return nil, err
		}
		table = loaded
	}

	storage, closer, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.store, err = store.New(storage,
		store.WithTable(table),
		store.WithKey(cfg.DriverID),
		store.WithLogger(a.logger),
		store.WithMetrics(a.metrics),
	)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}

	a.orch, err = trip.New(a.store, newFeedFetcher(cfg.TripsFile, a.store),
		trip.WithLogger(a.logger),
		trip.WithMetrics(a.metrics),
		trip.WithFinalizer(trip.LogFinalizer{Logger: a.logger}),
		trip.WithAlertSink(alertPrinter{out: out, logger: a.logger}),
		trip.WithFinalizeRetries(cfg.Orchestrator.FinalizeRetries),
		trip.WithRetryBackoff(cfg.Orchestrator.RetryBase, cfg.Orchestrator.RetryMax),
	)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}

	registry := render.DefaultRegistry(out, render.LogNotifier{Logger: a.logger})
	a.session, err = render.NewSession(a.store, registry, table, render.WithSessionLogger(a.logger))
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

// Close drains background finalization and releases storage.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.orch != nil {
		if err := a.orch.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newLogger(cfg config.LoggingConfig, out io.Writer) doorstep.Logger {
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "json" {
		return doorstep.NewGlogLogger(glog.NewLogger(
			glog.WithWriter(out),
			glog.WithLoggerTypeJSON(),
			glog.WithLevel(cfg.Level),
		))
	}
	return doorstep.NewGlogLogger(glog.NewLogger(
		glog.WithWriter(out),
		glog.WithLevel(cfg.Level),
	))
}

func openStorage(cfg config.StorageConfig) (store.Storage, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemoryStorage(), nil, nil
	case config.DriverFile:
		return store.NewFileStorage(cfg.Path), nil, nil
	case config.DriverSQLite:
		db, err := store.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store.NewSQLiteStorage(db, cfg.Table), db.Close, nil
	case config.DriverRedis:
		client := store.NewGoRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		return store.NewRedisStorage(client, cfg.TTL), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

type alertPrinter struct {
	out    io.Writer
	logger doorstep.Logger
}

func (p alertPrinter) Alert(ctx context.Context, alert trip.Alert) {
	trip.LogAlertSink{Logger: p.logger}.Alert(ctx, alert)
	fmt.Fprintf(p.out, "ALERT %s: %s (%v)\n", alert.ID, alert.Message, alert.Err)
}
