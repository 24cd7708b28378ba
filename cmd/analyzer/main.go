// Command analyzer turns one recorded simulator log into the state vector and
// reward of its episode and prints them as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/handover-analytics/core"
	"github.com/signalsfoundry/handover-analytics/env"
	"github.com/signalsfoundry/handover-analytics/internal/config"
	"github.com/signalsfoundry/handover-analytics/internal/logging"
	"github.com/signalsfoundry/handover-analytics/internal/observability"
	"github.com/signalsfoundry/handover-analytics/model"
	"github.com/signalsfoundry/handover-analytics/parser"
)

type options struct {
	ConfigPath  string
	LogPath     string
	Mode        string
	DurationS   int
	UECount     int
	Speed       float64
	Action      model.Action
	AuditFile   string
	NoAudit     bool
	MetricsAddr string
	Serve       bool
}

// result is the JSON document written to stdout.
type result struct {
	EpisodeID     string                 `json:"episode_id"`
	Mode          model.Mode             `json:"mode"`
	DurationS     int                    `json:"duration_s"`
	UECount       int                    `json:"ue_count"`
	SimulatorArgs []string               `json:"simulator_args"`
	State         []float64              `json:"state"`
	Reward        core.Reward            `json:"reward"`
	Lines         int                    `json:"lines"`
	Matches       map[parser.Pattern]int `json:"matches"`
	Cells         []cellSummary          `json:"cells"`
}

type cellSummary struct {
	Cell           int `json:"cell"`
	Handovers      int `json:"handovers"`
	ConnectedUsers int `json:"connected_users"`
}

func main() {
	var opts options
	flag.StringVar(&opts.ConfigPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&opts.LogPath, "log", "", "Simulator event log to analyse (defaults to events_file from the config)")
	flag.StringVar(&opts.Mode, "mode", string(model.ModeTraining), "Run mode: training, eval1 or eval2")
	flag.IntVar(&opts.DurationS, "duration", 0, "Episode duration in seconds (defaults to the mode's scenario)")
	flag.IntVar(&opts.UECount, "ue-count", 0, "Number of UEs in the episode (defaults to the mode's scenario)")
	flag.Float64Var(&opts.Speed, "speed", 0, "UE speed in m/s (defaults to the mode's scenario)")
	flag.Float64Var(&opts.Action.NeighbourCellOffset, "neighbour-cell-offset", model.DefaultNeighbourCellOffset, "Handover neighbour cell offset the log was produced with")
	flag.Float64Var(&opts.Action.ServingCellThreshold, "serving-cell-threshold", model.DefaultServingCellThreshold, "Handover serving cell threshold the log was produced with")
	flag.StringVar(&opts.AuditFile, "audit-file", "", "Append audit lines to this file (overrides audit_file)")
	flag.BoolVar(&opts.NoAudit, "no-audit", false, "Disable the audit file")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics (overrides metrics_addr)")
	flag.BoolVar(&opts.Serve, "serve", false, "Keep serving /metrics after the episode until interrupted")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	if err := run(ctx, opts, os.Stdout, log); err != nil {
		log.Error(ctx, "analysis failed", logging.Err(err))
		stop()
		observability.ShutdownWithTimeout(context.Background(), shutdown, log)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdout io.Writer, log logging.Logger) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.AuditFile != "" {
		cfg.AuditFile = opts.AuditFile
	}
	if opts.NoAudit {
		cfg.AuditFile = ""
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	logPath := opts.LogPath
	if logPath == "" {
		logPath = cfg.EventsFile
	}

	mode, err := model.ParseMode(opts.Mode)
	if err != nil {
		return err
	}
	episode := episodeConfig(mode, opts)
	if err := opts.Action.Validate(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collector, err := observability.NewPipelineCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = serveMetrics(cfg.MetricsAddr, collector, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	var audit core.AuditSink
	if cfg.AuditFile != "" {
		sink, closer, err := core.OpenAuditFile(cfg.AuditFile)
		if err != nil {
			return err
		}
		defer closer.Close()
		audit = sink
	}

	proc, err := core.NewEpisodeProcessor(cfg, audit, collector, log)
	if err != nil {
		return err
	}
	accs := core.NewAccumulators()

	sim := env.NewReplaySimulator(logPath)
	args := env.SimulatorArgs(episode, opts.Action, cfg.ENBCount)
	rc, err := sim.Run(ctx, args)
	if err != nil {
		return err
	}
	defer rc.Close()

	res, err := proc.Process(ctx, rc, episode, accs.For(mode))
	if err != nil {
		return err
	}

	out := result{
		EpisodeID:     res.EpisodeID,
		Mode:          mode,
		DurationS:     episode.DurationS,
		UECount:       episode.UECount,
		SimulatorArgs: args,
		State:         res.State,
		Reward:        res.Reward,
		Lines:         res.ParseStats.Lines,
		Matches:       res.ParseStats.Matches,
	}
	for _, cell := range res.Cells.Cells() {
		agg := res.Cells[cell]
		out.Cells = append(out.Cells, cellSummary{Cell: cell, Handovers: agg.Handovers, ConnectedUsers: agg.ConnectedUsers})
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	if opts.Serve && metricsSrv != nil {
		log.Info(ctx, "episode done; serving metrics until interrupted")
		<-ctx.Done()
	}
	return nil
}

// episodeConfig starts from the mode's scenario and applies flag overrides.
func episodeConfig(mode model.Mode, opts options) model.EpisodeConfig {
	cfg := env.NewScenarios(mode, "analyzer").Current()
	if opts.DurationS > 0 {
		cfg.DurationS = opts.DurationS
	}
	if opts.UECount > 0 {
		cfg.UECount = opts.UECount
	}
	if opts.Speed > 0 {
		cfg.MaxSpeed, cfg.MinSpeed = opts.Speed, opts.Speed
	}
	return cfg
}

func serveMetrics(addr string, collector *observability.PipelineCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
