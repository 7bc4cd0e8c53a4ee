package bulksync

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	DefaultChunkSize         = 500
	DefaultUpdateParallelism = 20
)

// Config sizes the engine.
type Config struct {
	ChunkSize         int
	UpdateParallelism int
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.UpdateParallelism <= 0 {
		c.UpdateParallelism = DefaultUpdateParallelism
	}
	return c
}

// Engine reconciles workbooks against the catalog store.
type Engine struct {
	store   Store
	meta    *MetadataSync
	retrier *Retrier
	cfg     Config
	logger  *slog.Logger
}

// NewEngine wires an engine. A nil retrier gets the default policy.
func NewEngine(store Store, retrier *Retrier, cfg Config, logger *slog.Logger) *Engine {
	if retrier == nil {
		retrier = NewRetrier(logger)
	}
	return &Engine{
		store:   store,
		meta:    NewMetadataSync(store, retrier),
		retrier: retrier,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Run processes the workbook at path in mode.
func (e *Engine) Run(ctx context.Context, path string, mode Mode) (Result, error) {
	wb, err := OpenWorkbook(path)
	if err != nil {
		return Result{}, err
	}
	defer wb.Close()
	return e.RunWorkbook(ctx, wb, mode)
}

// sheetPlan records where a worksheet's header sits and what it maps to.
type sheetPlan struct {
	name      string
	headerRow int
	cols      Columns
}

// RunWorkbook processes an open workbook. Every header is validated before the first
// write, so a missing column leaves the catalog untouched.
func (e *Engine) RunWorkbook(ctx context.Context, wb *Workbook, mode Mode) (Result, error) {
	sheets, err := e.preflight(wb, mode)
	if err != nil {
		return Result{}, err
	}
	if mode == ModeReplace {
		n, err := retry(ctx, e.retrier, "deactivate all products", e.store.DeactivateAll)
		if err != nil {
			return Result{}, err
		}
		e.log().Info("replace pre-pass deactivated catalog", slog.Int64("products", n))
		mode = ModeUpsert
	}

	res := Result{Errors: []RowError{}}
	sc := NewSyncContext()
	for _, sp := range sheets {
		if err := e.processSheet(ctx, wb, sp, mode, sc, &res); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func (e *Engine) preflight(wb *Workbook, mode Mode) ([]sheetPlan, error) {
	var plans []sheetPlan
	for _, name := range wb.Sheets() {
		rows, err := wb.Rows(name)
		if err != nil {
			return nil, err
		}
		sp := sheetPlan{name: name}
		for rows.Next() {
			if toRow(rows.Cells()).blank() {
				continue
			}
			sp.headerRow = rows.Num()
			sp.cols = ResolveColumns(rows.Cells())
			break
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("bulksync: read worksheet %q: %w", name, err)
		}
		if sp.headerRow == 0 {
			// empty worksheet
			continue
		}
		if err := sp.cols.Check(name, mode); err != nil {
			return nil, err
		}
		plans = append(plans, sp)
	}
	return plans, nil
}

func (e *Engine) processSheet(ctx context.Context, wb *Workbook, sp sheetPlan, mode Mode, sc *SyncContext, res *Result) error {
	rows, err := wb.Rows(sp.name)
	if err != nil {
		return err
	}
	defer rows.Close()

	required := RequiredColumns(mode)
	batch := make([]Candidate, 0, e.cfg.ChunkSize)
	for rows.Next() {
		if rows.Num() <= sp.headerRow {
			continue
		}
		row := rows.Row(sp.cols, required...)
		if row.blank() {
			continue
		}
		res.TotalRows++
		// rows are numbered from the first line under the header
		c, rowErr := MapRow(sp.name, rows.Num()-sp.headerRow, row, sp.cols, mode)
		if rowErr != nil {
			res.Skipped++
			res.addError(*rowErr)
			continue
		}
		batch = append(batch, c)
		if len(batch) >= e.cfg.ChunkSize {
			if err := e.flush(ctx, sc, batch, mode, res); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("bulksync: read worksheet %q: %w", sp.name, err)
	}
	if err := e.flush(ctx, sc, batch, mode, res); err != nil {
		return err
	}
	e.log().Info("worksheet processed",
		slog.String("sheet", sp.name),
		slog.Int("total_rows", res.TotalRows),
		slog.Int("inserted", res.Inserted),
		slog.Int("skipped", res.Skipped))
	return nil
}

func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.logger
}

func toRow(cells []string) Row {
	row := make(Row, len(cells))
	for i, v := range cells {
		row[i] = v
	}
	return row
}
