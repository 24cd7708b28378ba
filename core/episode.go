package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/handover-analytics/internal/config"
	"github.com/signalsfoundry/handover-analytics/internal/logging"
	"github.com/signalsfoundry/handover-analytics/kb"
	"github.com/signalsfoundry/handover-analytics/model"
	"github.com/signalsfoundry/handover-analytics/parser"
	"github.com/signalsfoundry/handover-analytics/timectrl"
)

const tracerName = "github.com/signalsfoundry/handover-analytics/core"

// Pipeline stage names, used as span names and metric labels.
const (
	StageParse        = "parse"
	StageConnectivity = "connectivity"
	StageAggregate    = "aggregate"
	StageState        = "state"
	StageReward       = "reward"
)

// Episode outcomes reported to EpisodeMetrics.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// EpisodeMetrics receives pipeline telemetry. Implementations must tolerate
// concurrent calls.
type EpisodeMetrics interface {
	ObserveStage(stage string, d time.Duration)
	ObserveEpisode(mode model.Mode, outcome string, r Reward)
	ObserveObservation(entity model.EntityType, signal model.Signal)
}

// EpisodeResult is everything derived from one episode log.
type EpisodeResult struct {
	EpisodeID    string
	State        []float64
	Reward       Reward
	Cells        CellAggregates
	Connectivity *Connectivity
	ParseStats   parser.Stats
}

// EpisodeProcessor runs the analytics stages over one episode log in
// sequence: parse, connectivity, aggregate, state, reward.
type EpisodeProcessor struct {
	Parser     *parser.Parser
	Aggregator *Aggregator
	State      StateBuilder
	Reward     RewardCalculator

	Metrics EpisodeMetrics
	Log     logging.Logger
	Clock   timectrl.Clock
}

// NewEpisodeProcessor wires the stages from cfg. audit and metrics may be
// nil.
func NewEpisodeProcessor(cfg config.Config, audit AuditSink, metrics EpisodeMetrics, log logging.Logger) (*EpisodeProcessor, error) {
	if log == nil {
		log = logging.Noop()
	}
	policy, err := ParseDistanceGapPolicy(cfg.DistanceGapPolicy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	agg := NewAggregator(cfg.ENBCount, audit, log)
	agg.GapPolicy = policy

	var obs parser.Observer
	if o, ok := metrics.(parser.Observer); ok {
		obs = o
	}
	return &EpisodeProcessor{
		Parser:     parser.New(log, obs),
		Aggregator: agg,
		State:      NewStateBuilder(cfg),
		Reward:     NewRewardCalculator(cfg.RewardScale),
		Metrics:    metrics,
		Log:        log,
		Clock:      timectrl.SystemClock{},
	}, nil
}

// Process parses r into a fresh store and derives the state vector and
// reward for cfg. acc receives the mode's telemetry and may be nil.
func (p *EpisodeProcessor) Process(ctx context.Context, r io.Reader, cfg model.EpisodeConfig, acc *Accumulator) (*EpisodeResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("episode config: %w", err)
	}
	ctx, log := logging.WithEpisodeLogger(ctx, p.Log)
	log = log.With(logging.String("mode", string(cfg.Mode)))
	episodeID := logging.EpisodeIDFromContext(ctx)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "episode/process",
		trace.WithAttributes(
			attribute.String("episode_id", episodeID),
			attribute.String("mode", string(cfg.Mode)),
			attribute.Int("duration_s", cfg.DurationS),
			attribute.Int("ue_count", cfg.UECount),
		),
	)
	defer span.End()

	res, err := p.run(ctx, r, cfg, acc, log)
	if err != nil {
		span.RecordError(err)
		p.observeEpisode(cfg.Mode, OutcomeError, Reward{})
		log.Warn(ctx, "episode processing failed", logging.Err(err))
		return nil, err
	}
	res.EpisodeID = episodeID
	p.observeEpisode(cfg.Mode, OutcomeOK, res.Reward)

	log.Info(ctx, "episode processed",
		logging.Int("lines", res.ParseStats.Lines),
		logging.Int("intervals", res.Connectivity.Len()),
		logging.Int("handovers", res.Reward.Handovers),
		logging.Float("throughput", res.Reward.Throughput),
		logging.Float("reward", res.Reward.Value),
	)
	return res, nil
}

func (p *EpisodeProcessor) run(ctx context.Context, r io.Reader, cfg model.EpisodeConfig, acc *Accumulator, log logging.Logger) (*EpisodeResult, error) {
	store := kb.NewKnowledgeBase()
	if p.Metrics != nil {
		unsubscribe := store.Subscribe(func(ev kb.Event) {
			p.Metrics.ObserveObservation(ev.Entity, ev.Signal)
		})
		defer unsubscribe()
	}

	res := &EpisodeResult{}
	var err error

	err = p.stage(ctx, StageParse, func(ctx context.Context) error {
		res.ParseStats, err = p.parser(log).Parse(ctx, r, store)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("parse episode log: %w", err)
	}

	_ = p.stage(ctx, StageConnectivity, func(context.Context) error {
		res.Connectivity = BuildConnectivity(store, timectrl.FromSeconds(cfg.DurationS))
		return nil
	})

	err = p.stage(ctx, StageAggregate, func(ctx context.Context) error {
		res.Cells, err = p.Aggregator.Aggregate(ctx, store, res.Connectivity)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate cells: %w", err)
	}

	info := EpisodeInfo{
		UECount:   cfg.UECount,
		DurationS: cfg.DurationS,
		MaxSpeed:  cfg.MaxSpeed,
		MinSpeed:  cfg.MinSpeed,
	}
	err = p.stage(ctx, StageState, func(context.Context) error {
		res.State, err = p.State.Build(res.Cells, info, acc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("build state vector: %w", err)
	}

	_ = p.stage(ctx, StageReward, func(context.Context) error {
		res.Reward = p.Reward.Compute(store, res.Connectivity, cfg.DurationS, cfg.UECount, acc)
		return nil
	})
	return res, nil
}

// stage runs fn inside a child span and reports its wall time.
func (p *EpisodeProcessor) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "episode/"+name)
	defer span.End()

	clock := p.Clock
	if clock == nil {
		clock = timectrl.SystemClock{}
	}
	start := clock.Now()
	err := fn(ctx)
	if p.Metrics != nil {
		p.Metrics.ObserveStage(name, clock.Now().Sub(start))
	}
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (p *EpisodeProcessor) parser(log logging.Logger) *parser.Parser {
	if p.Parser != nil {
		return p.Parser
	}
	return parser.New(log, nil)
}

func (p *EpisodeProcessor) observeEpisode(mode model.Mode, outcome string, r Reward) {
	if p.Metrics != nil {
		p.Metrics.ObserveEpisode(mode, outcome, r)
	}
}
