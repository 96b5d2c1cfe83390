package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ciricc/court-transcriber/internal/casedetails"
	"github.com/ciricc/court-transcriber/internal/config"
	"github.com/ciricc/court-transcriber/internal/diarization"
	"github.com/ciricc/court-transcriber/internal/events"
	"github.com/ciricc/court-transcriber/internal/fusion"
	"github.com/ciricc/court-transcriber/internal/health"
	"github.com/ciricc/court-transcriber/internal/live"
	"github.com/ciricc/court-transcriber/internal/monitor"
	"github.com/ciricc/court-transcriber/internal/noise"
	"github.com/ciricc/court-transcriber/internal/observability/metrics"
	"github.com/ciricc/court-transcriber/internal/pipeline"
	"github.com/ciricc/court-transcriber/internal/server"
	"github.com/ciricc/court-transcriber/internal/storage"
	"github.com/ciricc/court-transcriber/internal/transcriber"
	"github.com/ciricc/court-transcriber/internal/whisper"
)

type Application struct {
	Config        config.Config
	Logger        *slog.Logger
	Pipeline      *pipeline.PipelineImpl
	HTTP          *server.Server
	HealthChecker *health.Checker
	Registry      *prometheus.Registry

	transcriber *transcriber.TranscriberImpl
	repository  *storage.SQLiteRepository
	publisher   *events.Publisher
	diarizer    *diarization.Engine
}

// New loads every model and collaborator once. A failure to load any speech
// model is reported as transcriber.ErrNoModel.
func New(ctx context.Context, configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	tr, err := transcriber.New(
		cfg.Models.Paths,
		whisper.Loader(log, whisperOpts(cfg)...),
		cfg.Models.Device,
		log,
	)
	if err != nil {
		return nil, err
	}

	repo, err := storage.OpenSQLite(ctx, cfg.Storage.Path, log)
	if err != nil {
		_ = tr.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	publisher := events.New(&events.Config{
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		Principal: cfg.Kafka.Principal,
		Enabled:   cfg.Kafka.Enabled,
	}, m, log)

	hub := live.NewHub(log)

	loadMonitor := monitor.NewSemaphoreLoadMonitor(
		cfg.Pipeline.MaxConcurrency,
		cfg.Pipeline.HealthThreshold,
	)

	helper := diarization.NewHelperRunner(cfg.Diarization.Python, cfg.Diarization.Model)
	helper.Token = cfg.Diarization.HFToken
	diarizer := diarization.New(log,
		diarization.WithEnabled(cfg.Diarization.Enabled),
		diarization.WithToken(cfg.Diarization.HFToken),
		diarization.WithRunner(helper),
	)

	p := pipeline.NewPipeline(pipeline.Components{
		Noise: noise.NewFilter(log,
			noise.WithEnabled(cfg.Noise.Enabled),
			noise.WithTargetBand(cfg.Noise.BandLowHz, cfg.Noise.BandHighHz, cfg.Noise.BandCoefficient),
		),
		Diarizer:    diarizer,
		Transcriber: tr,
		Fuser:       fusion.New(),
		Store:       repo,
		Editor:      repo,
		Cases:       casedetails.NewStub(),
		Events:      events.Fanout{publisher, hub},
	}, log, loadMonitor, m, pipeline.WithWaitForSlot(cfg.Pipeline.WaitForSlot))

	checker := health.NewChecker(loadMonitor)
	checker.SetServingStatus(health.PipelineService, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Application{
		Config:        cfg,
		Logger:        log,
		Pipeline:      p,
		HTTP:          server.NewServer(p, repo, hub, checker, reg, cfg.Server.MaxUploadBytes, log),
		HealthChecker: checker,
		Registry:      reg,
		transcriber:   tr,
		diarizer:      diarizer,
		repository:    repo,
		publisher:     publisher,
	}, nil
}

func whisperOpts(cfg config.Config) []whisper.Opt {
	opts := []whisper.Opt{
		whisper.WithLanguage(cfg.Models.Language),
		whisper.WithSplitOnWord(cfg.Models.SplitOnWord),
	}
	if cfg.Models.Threads > 0 {
		opts = append(opts, whisper.WithThreads(cfg.Models.Threads))
	}
	if cfg.Models.BeamSize > 0 {
		opts = append(opts, whisper.WithBeamSize(cfg.Models.BeamSize))
	}
	if cfg.Models.WindowSize > 0 {
		opts = append(opts, whisper.WithWindowSize(cfg.Models.WindowSize))
	}
	return opts
}

func (a *Application) Close() error {
	return errors.Join(
		a.publisher.Close(),
		a.repository.Close(),
		a.transcriber.Close(),
		a.diarizer.Close(),
	)
}
