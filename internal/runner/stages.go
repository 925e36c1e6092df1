// Package runner assembles the fetch, load and transform stages of an
// ingestion run.
package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/aleix-cd/recap-ae-challenge/internal/config"
	"github.com/aleix-cd/recap-ae-challenge/pkg/aggregate"
	"github.com/aleix-cd/recap-ae-challenge/pkg/flatfile"
	"github.com/aleix-cd/recap-ae-challenge/pkg/normalize"
	"github.com/aleix-cd/recap-ae-challenge/pkg/pagination"
	"github.com/aleix-cd/recap-ae-challenge/pkg/pipeline"
	"github.com/aleix-cd/recap-ae-challenge/pkg/warehouse"
	"github.com/rs/zerolog"
)

// Stage names.
const (
	StageFetch     = "fetch"
	StageLoad      = "load"
	StageTransform = "transform"
)

// previewRows is how many rows are logged after each table load.
const previewRows = 5

// FetchStage pulls every page and writes the flattened CSV.
type FetchStage struct {
	Getter     pagination.Getter
	Config     config.Config
	Normalizer *normalize.Normalizer
	Logger     zerolog.Logger
}

// Name implements pipeline.Stage.
func (s *FetchStage) Name() string { return StageFetch }

// Run fetches, aggregates and writes the CSV. The input artifact is unused.
func (s *FetchStage) Run(ctx context.Context, _ pipeline.Artifact) (pipeline.Artifact, error) {
	n := s.Normalizer
	if n == nil {
		n = normalize.New()
	}

	fetcher := pagination.NewFetcher(s.Getter, pagination.Config{
		PageParam:       s.Config.PageParam,
		TotalPagesField: s.Config.TotalPagesField,
		MaxPages:        s.Config.MaxPages,
		Normalizer:      n,
	})

	observer := aggregate.MultiObserver{
		aggregate.NewLogObserver(s.Logger),
		aggregate.MetricsObserver{},
	}

	pages := fetcher.Pages(ctx, s.Config.APIPath, s.Config.StartPage)
	result, err := aggregate.Aggregate(pages, n, observer)
	if err != nil {
		return pipeline.Artifact{}, err
	}

	if err := flatfile.NewWriter(s.Logger).Write(result.Records, s.Config.OutCSV); err != nil {
		return pipeline.Artifact{}, err
	}

	s.Logger.Info().
		Int("pages", result.PagesSeen).
		Int("records", result.RecordsSeen).
		Int("columns", len(flatfile.FieldUnion(result.Records))).
		Str("path", s.Config.OutCSV).
		Msg("Wrote records")

	return pipeline.Artifact{Kind: "csv", Path: s.Config.OutCSV}, nil
}

// LoadStage loads the fetched CSV, plus any extra tables, into SQLite.
type LoadStage struct {
	Config config.Config
	Logger zerolog.Logger
}

// Name implements pipeline.Stage.
func (s *LoadStage) Name() string { return StageLoad }

// Run loads in.Path into the source table. With an empty input artifact the
// configured CSV path is used, so the stage can run on its own.
func (s *LoadStage) Run(ctx context.Context, in pipeline.Artifact) (pipeline.Artifact, error) {
	csvPath := in.Path
	if csvPath == "" {
		csvPath = s.Config.OutCSV
	}

	db, err := warehouse.Open(s.Config.DBFile)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	defer db.Close()

	tables := append([]config.Table{{Name: s.Config.SourceTable, Path: csvPath}}, s.Config.ExtraTables...)
	for _, t := range tables {
		result, err := db.LoadCSV(ctx, t.Name, t.Path)
		if err != nil {
			return pipeline.Artifact{}, fmt.Errorf("load %s: %w", t.Name, err)
		}
		if result.Empty {
			continue
		}
		s.preview(ctx, db, t.Name)
	}

	return pipeline.Artifact{Kind: "sqlite", Path: s.Config.DBFile}, nil
}

// preview logs the row count and the first rows of a loaded table.
func (s *LoadStage) preview(ctx context.Context, db *warehouse.DB, table string) {
	count, err := db.RowCount(ctx, table)
	if err != nil {
		s.Logger.Warn().Err(err).Str("table", table).Msg("Row count failed")
		return
	}
	s.Logger.Info().Str("table", table).Int64("rows", count).Msg("Table ready")

	if s.Logger.GetLevel() > zerolog.DebugLevel || zerolog.GlobalLevel() > zerolog.DebugLevel {
		return
	}
	columns, rows, err := db.Preview(ctx, table, previewRows)
	if err != nil {
		s.Logger.Warn().Err(err).Str("table", table).Msg("Preview failed")
		return
	}
	for i, row := range rows {
		s.Logger.Debug().
			Str("table", table).
			Int("row", i+1).
			Str("columns", strings.Join(columns, ",")).
			Strs("values", row).
			Msg("Preview")
	}
}

// TransformStage runs the SQL scripts of a directory against the database.
type TransformStage struct {
	Config config.Config
	Logger zerolog.Logger
}

// Name implements pipeline.Stage.
func (s *TransformStage) Name() string { return StageTransform }

// Run executes Config.SQLDir against in.Path (or the configured database).
func (s *TransformStage) Run(ctx context.Context, in pipeline.Artifact) (pipeline.Artifact, error) {
	dbPath := in.Path
	if dbPath == "" {
		dbPath = s.Config.DBFile
	}
	if s.Config.SQLDir == "" {
		return pipeline.Artifact{}, fmt.Errorf("no SQL directory configured")
	}

	db, err := warehouse.Open(dbPath)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	defer db.Close()

	scripts, err := db.RunSQLDir(ctx, s.Config.SQLDir)
	if err != nil {
		return pipeline.Artifact{}, err
	}

	tables, err := db.Tables(ctx)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	s.Logger.Info().
		Int("scripts", len(scripts)).
		Strs("tables", tables).
		Msg("Transformations complete")

	return pipeline.Artifact{Kind: "sqlite", Path: dbPath}, nil
}
