package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nvr-ai/go-classify/classifier"
	"github.com/nvr-ai/go-classify/config"
	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/inference/providers"
	"github.com/nvr-ai/go-classify/logging"
	"github.com/nvr-ai/go-classify/metrics"
	"github.com/nvr-ai/go-classify/models"
	"github.com/nvr-ai/go-classify/profiler"
)

// app carries the objects shared by every subcommand.
type app struct {
	configPath string
	debug      bool
	// reportInterval enables periodic profiler reports when positive.
	reportInterval time.Duration

	settings *config.Settings
	log      *slog.Logger

	gatherer  *prometheus.Registry
	collector *metrics.Collector
	registry  *models.Registry
	service   *classifier.Service
	profiler  *profiler.Profiler
}

// setup loads settings, installs the log handler and registers the metrics.
func (a *app) setup(overrides ...config.Override) error {
	settings, err := config.Load(a.configPath, overrides...)
	if err != nil {
		return err
	}
	if a.debug {
		settings.Log.Level = "debug"
	}
	if err := logging.Setup(settings.Log, nil); err != nil {
		return err
	}
	a.settings = settings
	a.log = logging.Module("classify")

	a.gatherer = prometheus.NewRegistry()
	a.gatherer.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if a.collector, err = metrics.NewCollector(a.gatherer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	return nil
}

// load initializes every configured model and the classification service.
//
// Arguments:
//   - ctx: Cancels loading between models.
//
// Returns:
//   - error: The first model initialization failure; no model stays loaded.
func (a *app) load(ctx context.Context) error {
	resampler, err := images.LookupResampler(a.settings.Runtime.Resampler)
	if err != nil {
		return fmt.Errorf("runtime.resampler: %w", err)
	}

	registry := models.NewRegistry(providers.Default,
		models.WithThreads(a.settings.Runtime.Threads),
		models.WithRuntimeLibrary(a.settings.Runtime.ONNXLibrary),
		models.WithObserver(a.collector),
	)
	if err := registry.InitializeAll(ctx, a.settings.Models); err != nil {
		return err
	}

	opts := []classifier.Option{
		classifier.WithResampler(resampler),
		classifier.WithObserver(a.collector),
	}
	if a.reportInterval > 0 {
		a.profiler = profiler.New(profiler.Options{ReportInterval: a.reportInterval})
		opts = append(opts, classifier.WithObserver(a.profiler))
	}
	c := classifier.New(opts...)
	a.registry = registry
	a.service = classifier.NewService(registry, c)
	return nil
}

// close stops the profiler and releases the registry if it was initialized.
func (a *app) close() error {
	if a.profiler != nil {
		a.profiler.Stop()
	}
	if a.registry == nil {
		return nil
	}
	err := a.registry.Close()
	a.registry = nil
	return err
}
