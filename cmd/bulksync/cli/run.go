package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/partsline/catalog/internal/bulksync"
)

// JobStore creates and loads job records.
type JobStore interface {
	Create(ctx context.Context, req bulksync.CreateRequest) (bulksync.Job, error)
	Get(ctx context.Context, id int64) (bulksync.Job, error)
}

// Processor runs a job to a terminal state.
type Processor interface {
	Process(ctx context.Context, jobID int64, path string) error
}

// RunCLI processes workbooks in the foreground, bypassing the queue but still
// recording a job.
type RunCLI struct {
	store     JobStore
	processor Processor
}

// NewRunCLI constructs the helper.
func NewRunCLI(store JobStore, processor Processor) *RunCLI {
	return &RunCLI{store: store, processor: processor}
}

// RunOptions defines available flags for the run command.
type RunOptions struct {
	Path       string
	Mode       string
	UserID     int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// Exit codes of the run command.
const (
	ExitOK        = 0
	ExitFailed    = 1
	ExitRowErrors = 2
)

// RunCommand executes one workbook and prints the final job record.
func (c *RunCLI) RunCommand(ctx context.Context, opts RunOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "run: --file is required")
		return ExitFailed
	}
	if _, err := os.Stat(path); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "run: %v\n", err)
		return ExitFailed
	}
	mode, err := bulksync.ParseMode(opts.Mode)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "run: %v\n", err)
		return ExitFailed
	}
	req := bulksync.CreateRequest{Mode: mode, Filename: filepath.Base(path), FilePath: path}
	if opts.UserID > 0 {
		uid := opts.UserID
		req.UserID = &uid
	}
	job, err := c.store.Create(ctx, req)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "run: create job: %v\n", err)
		return ExitFailed
	}
	if err := c.processor.Process(ctx, job.ID, path); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "run: job %d: %v\n", job.ID, err)
	}
	final, err := c.store.Get(ctx, job.ID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "run: load job %d: %v\n", job.ID, err)
		return ExitFailed
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(final); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "run: encode json: %v\n", err)
			return ExitFailed
		}
	} else {
		renderJob(opts.Stdout, final)
	}
	switch {
	case final.Status != bulksync.StatusCompleted:
		return ExitFailed
	case final.ErrorsCount > 0:
		return ExitRowErrors
	default:
		return ExitOK
	}
}

func renderJob(w io.Writer, job bulksync.Job) {
	_, _ = fmt.Fprintf(w, "job %d %s (%s, %s)\n", job.ID, job.Status, job.Mode, job.Filename)
	if job.Status == bulksync.StatusFailed {
		_, _ = fmt.Fprintf(w, "error: %s\n", job.ErrorMessage)
		return
	}
	_, _ = fmt.Fprintf(w, "rows %d  inserted %d  skipped %d  errors %d\n",
		job.TotalRows, job.Inserted, job.Skipped, job.ErrorsCount)
	for _, e := range job.Errors {
		_, _ = fmt.Fprintf(w, "  %s!%d %s %s\n", e.Sheet, e.Row, e.Code, e.Message)
	}
	if hidden := job.ErrorsCount - len(job.Errors); hidden > 0 {
		_, _ = fmt.Fprintf(w, "  ... %d more\n", hidden)
	}
}

// TemplateCommand writes the blank upload workbook to path.
func TemplateCommand(path string, stderr io.Writer) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	if strings.TrimSpace(path) == "" {
		_, _ = fmt.Fprintln(stderr, "template: --out is required")
		return ExitFailed
	}
	f, err := os.Create(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "template: %v\n", err)
		return ExitFailed
	}
	werr := bulksync.WriteTemplate(f)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_, _ = fmt.Fprintf(stderr, "template: %v\n", werr)
		return ExitFailed
	}
	return ExitOK
}
