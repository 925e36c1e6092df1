// Package pipeline runs named stages in sequence. Each stage receives the
// artifact produced by the previous one; the first failure stops the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "pipeline_stage_duration_seconds",
	Help:    "Stage duration in seconds by stage and status",
	Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
}, []string{"stage", "status"})

// ErrEmptyArtifact is returned when a stage succeeds without declaring where
// its output went.
var ErrEmptyArtifact = errors.New("stage produced no artifact")

// Artifact is the declared output location of a stage.
type Artifact struct {
	// Kind describes the artifact, e.g. "csv" or "sqlite"
	Kind string

	// Path is where the artifact was written
	Path string
}

// IsZero reports whether the artifact declares no location.
func (a Artifact) IsZero() bool { return a.Path == "" }

// Stage is one step of a pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, in Artifact) (Artifact, error)
}

// StageFunc adapts a function to Stage.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, in Artifact) (Artifact, error)
}

// Name returns the stage name.
func (s StageFunc) Name() string { return s.StageName }

// Run calls the wrapped function.
func (s StageFunc) Run(ctx context.Context, in Artifact) (Artifact, error) {
	return s.Fn(ctx, in)
}

// StageError reports which stage failed.
type StageError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StageError) Unwrap() error {
	return e.Err
}

// StageResult records one completed stage.
type StageResult struct {
	Stage    string
	Output   Artifact
	Duration time.Duration
}

// Pipeline is an ordered list of stages.
type Pipeline struct {
	stages []Stage
	logger zerolog.Logger
}

// New creates a pipeline running stages in the given order.
func New(logger zerolog.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, logger: logger}
}

// Stages returns the stage names in run order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes every stage in order, feeding each stage's output to the next.
// It returns the results of the stages that succeeded; on failure the error
// is a *StageError and later stages are not run.
func (p *Pipeline) Run(ctx context.Context, in Artifact) ([]StageResult, error) {
	results := make([]StageResult, 0, len(p.stages))
	start := time.Now()

	for i, stage := range p.stages {
		name := stage.Name()
		logger := p.logger.With().
			Str("stage", name).
			Int("step", i+1).
			Int("steps", len(p.stages)).
			Logger()

		if err := ctx.Err(); err != nil {
			logger.Error().Err(err).Msg("FAILED")
			return results, &StageError{Stage: name, Err: err}
		}

		logger.Info().Str("input", in.Path).Msg("STARTING")
		stageStart := time.Now()

		out, err := stage.Run(ctx, in)
		if err == nil && out.IsZero() {
			err = ErrEmptyArtifact
		}
		elapsed := time.Since(stageStart)

		if err != nil {
			stageDuration.WithLabelValues(name, "failed").Observe(elapsed.Seconds())
			logger.Error().
				Err(err).
				Dur("duration", elapsed).
				Msg("FAILED")
			return results, &StageError{Stage: name, Err: err}
		}

		stageDuration.WithLabelValues(name, "success").Observe(elapsed.Seconds())
		logger.Info().
			Str("output", out.Path).
			Str("kind", out.Kind).
			Dur("duration", elapsed).
			Msg("SUCCESS")

		results = append(results, StageResult{Stage: name, Output: out, Duration: elapsed})
		in = out
	}

	p.logger.Info().
		Int("stages", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Pipeline complete")

	return results, nil
}
