package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/handover-analytics/core"
	"github.com/signalsfoundry/handover-analytics/model"
	"github.com/signalsfoundry/handover-analytics/parser"
)

// PipelineCollector bundles Prometheus metrics for the analytics pipeline. It
// implements core.EpisodeMetrics and parser.Observer.
type PipelineCollector struct {
	gatherer prometheus.Gatherer

	Episodes       *prometheus.CounterVec
	LogLines       *prometheus.CounterVec
	ParseErrors    prometheus.Counter
	Observations   *prometheus.CounterVec
	StageDurations *prometheus.HistogramVec

	EpisodeReward     *prometheus.GaugeVec
	EpisodeHandovers  *prometheus.GaugeVec
	EpisodeThroughput *prometheus.GaugeVec
}

var (
	_ core.EpisodeMetrics = (*PipelineCollector)(nil)
	_ parser.Observer     = (*PipelineCollector)(nil)
)

// NewPipelineCollector registers pipeline metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Registering twice against one registry returns the existing collectors.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	episodes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_episodes_total",
		Help: "Processed episodes, labeled by run mode and outcome.",
	}, []string{"mode", "outcome"}), "analytics_episodes_total")
	if err != nil {
		return nil, err
	}

	lines, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_log_lines_total",
		Help: "Log pattern matches deposited into the time-series store, labeled by pattern.",
	}, []string{"pattern"}), "analytics_log_lines_total")
	if err != nil {
		return nil, err
	}

	parseErrors, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analytics_parse_errors_total",
		Help: "Log lines rejected with a parse error.",
	}), "analytics_parse_errors_total")
	if err != nil {
		return nil, err
	}

	observations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_observations_total",
		Help: "Observations appended to the time-series store, labeled by entity type and signal.",
	}, []string{"entity", "signal"}), "analytics_observations_total")
	if err != nil {
		return nil, err
	}

	stages, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analytics_stage_duration_seconds",
		Help:    "Wall time of each pipeline stage in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"stage"}), "analytics_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	reward, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "analytics_episode_reward",
		Help: "Reward of the most recent successful episode per mode.",
	}, []string{"mode"}), "analytics_episode_reward")
	if err != nil {
		return nil, err
	}
	handovers, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "analytics_episode_handovers",
		Help: "Handovers of the most recent successful episode per mode.",
	}, []string{"mode"}), "analytics_episode_handovers")
	if err != nil {
		return nil, err
	}
	throughput, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "analytics_episode_throughput",
		Help: "Normalised total throughput of the most recent successful episode per mode.",
	}, []string{"mode"}), "analytics_episode_throughput")
	if err != nil {
		return nil, err
	}

	return &PipelineCollector{
		gatherer:          gatherer,
		Episodes:          episodes,
		LogLines:          lines,
		ParseErrors:       parseErrors,
		Observations:      observations,
		StageDurations:    stages,
		EpisodeReward:     reward,
		EpisodeHandovers:  handovers,
		EpisodeThroughput: throughput,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *PipelineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PipelineCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveLine counts one pattern match.
func (c *PipelineCollector) ObserveLine(p parser.Pattern) {
	if c == nil || c.LogLines == nil {
		return
	}
	c.LogLines.WithLabelValues(string(p)).Inc()
}

// ObserveParseError counts one rejected line.
func (c *PipelineCollector) ObserveParseError() {
	if c == nil || c.ParseErrors == nil {
		return
	}
	c.ParseErrors.Inc()
}

// ObserveObservation counts one appended observation.
func (c *PipelineCollector) ObserveObservation(entity model.EntityType, signal model.Signal) {
	if c == nil || c.Observations == nil {
		return
	}
	c.Observations.WithLabelValues(string(entity), string(signal)).Inc()
}

// ObserveStage records the wall time of one pipeline stage.
func (c *PipelineCollector) ObserveStage(stage string, d time.Duration) {
	if c == nil || c.StageDurations == nil {
		return
	}
	c.StageDurations.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveEpisode counts the episode and, on success, publishes its reward
// figures.
func (c *PipelineCollector) ObserveEpisode(mode model.Mode, outcome string, r core.Reward) {
	if c == nil {
		return
	}
	if c.Episodes != nil {
		c.Episodes.WithLabelValues(string(mode), outcome).Inc()
	}
	if outcome != core.OutcomeOK {
		return
	}
	if c.EpisodeReward != nil {
		c.EpisodeReward.WithLabelValues(string(mode)).Set(r.Value)
	}
	if c.EpisodeHandovers != nil {
		c.EpisodeHandovers.WithLabelValues(string(mode)).Set(float64(r.Handovers))
	}
	if c.EpisodeThroughput != nil {
		c.EpisodeThroughput.WithLabelValues(string(mode)).Set(r.Throughput)
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
