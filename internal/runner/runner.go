package runner

import (
	"context"
	"fmt"

	"github.com/aleix-cd/recap-ae-challenge/internal/config"
	"github.com/aleix-cd/recap-ae-challenge/pkg/logging"
	"github.com/aleix-cd/recap-ae-challenge/pkg/pipeline"
	"github.com/aleix-cd/recap-ae-challenge/pkg/warehouse"
)

// Options select what a run does.
type Options struct {
	// Stages to run, in pipeline order. Empty means fetch, load and, when
	// Config.SQLDir is set, transform.
	Stages []string

	// KeepDB skips removing the database file before a full run.
	KeepDB bool
}

// Run executes the selected stages with cfg.
func Run(ctx context.Context, cfg config.Config, opts Options) ([]pipeline.StageResult, error) {
	logger := logging.NewLogger("runner")

	names := opts.Stages
	full := len(names) == 0
	if full {
		names = []string{StageFetch, StageLoad}
		if cfg.SQLDir != "" {
			names = append(names, StageTransform)
		} else {
			logger.Info().Msg("SQL_DIR not set - transform stage skipped")
		}
	}

	var stages []pipeline.Stage
	var closers []func() error
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn().Err(err).Msg("Close failed")
			}
		}
	}()

	for _, name := range names {
		switch name {
		case StageFetch:
			apiClient, closeFn, err := NewClient(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			closers = append(closers, closeFn)
			stages = append(stages, &FetchStage{
				Getter: apiClient,
				Config: cfg,
				Logger: logging.NewLogger(StageFetch),
			})
		case StageLoad:
			stages = append(stages, &LoadStage{Config: cfg, Logger: logging.NewLogger(StageLoad)})
		case StageTransform:
			stages = append(stages, &TransformStage{Config: cfg, Logger: logging.NewLogger(StageTransform)})
		default:
			return nil, fmt.Errorf("unknown stage %q", name)
		}
	}

	if full && !opts.KeepDB {
		if err := warehouse.Remove(cfg.DBFile); err != nil {
			return nil, fmt.Errorf("fresh build: %w", err)
		}
		logger.Info().Str("db_file", cfg.DBFile).Msg("Removed previous database for a fresh build")
	}

	logger.Info().
		Strs("stages", names).
		Str("api", cfg.APIBase+cfg.APIPath).
		Msg("Starting ingestion run")

	return pipeline.New(logging.NewLogger("pipeline"), stages...).Run(ctx, pipeline.Artifact{})
}
