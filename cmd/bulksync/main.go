package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/partsline/catalog/cmd/bulksync/cli"
	"github.com/partsline/catalog/internal/app"
	"github.com/partsline/catalog/internal/bulksync"
	"github.com/partsline/catalog/internal/catalog"
	"github.com/partsline/catalog/internal/platform/db"
)

const usage = `usage: bulksync <command> [flags]

commands:
  run       process a workbook now and record a job (--file, --mode, --user, --json)
  enqueue   submit an existing job to the worker queue (--job, --file)
  stats     show queue statistics (--archived N, --json)
  template  write a blank upload workbook (--out)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping cli")
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(dispatch(ctx, os.Args[1], os.Args[2:]))
}

func dispatch(ctx context.Context, command string, args []string) int {
	switch command {
	case "template":
		fs := flag.NewFlagSet("template", flag.ExitOnError)
		out := fs.String("out", "plantilla-catalogo.xlsx", "output path")
		_ = fs.Parse(args)
		return cli.TemplateCommand(*out, os.Stderr)
	case "run":
		fs := flag.NewFlagSet("run", flag.ExitOnError)
		file := fs.String("file", "", "workbook path")
		mode := fs.String("mode", string(bulksync.ModeUpsert), "upsert|create|update|replace|delete")
		user := fs.Int64("user", 0, "owning user id")
		asJSON := fs.Bool("json", false, "print the job as JSON")
		_ = fs.Parse(args)
		return runCommand(ctx, cli.RunOptions{Path: *file, Mode: *mode, UserID: *user, JSONOutput: *asJSON})
	case "enqueue":
		fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
		jobID := fs.Int64("job", 0, "job id")
		file := fs.String("file", "", "workbook path visible to the worker")
		_ = fs.Parse(args)
		return enqueueCommand(ctx, *jobID, *file)
	case "stats":
		fs := flag.NewFlagSet("stats", flag.ExitOnError)
		archived := fs.Int("archived", 0, "list up to N archived tasks")
		asJSON := fs.Bool("json", false, "print stats as JSON")
		_ = fs.Parse(args)
		return statsCommand(ctx, *archived, *asJSON)
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
}

func runCommand(ctx context.Context, opts cli.RunOptions) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return cli.ExitFailed
	}
	logger := app.NewLogger(cfg).With(slog.String("component", "cli"))
	pool, err := db.New(ctx, cfg.PGDSN, int32(cfg.BulkUpdateParallelism+4))
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return cli.ExitFailed
	}
	defer pool.Close()

	service := bulksync.NewService(bulksync.NewRepository(pool), nil, logger)
	engine := bulksync.NewEngine(
		catalog.NewRepository(pool),
		bulksync.NewRetrier(logger),
		bulksync.Config{ChunkSize: cfg.BulkChunkSize, UpdateParallelism: cfg.BulkUpdateParallelism},
		logger,
	)
	handler := bulksync.NewJobHandler(bulksync.JobConfig{
		Service: service,
		Engine:  engine,
		Logger:  logger,
		// the operator's file stays where it is
		Remove: func(string) error { return nil },
	})
	return cli.NewRunCLI(service, handler).RunCommand(ctx, opts)
}

func enqueueCommand(ctx context.Context, jobID int64, file string) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "enqueue: %v\n", err)
		return cli.ExitFailed
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr, cfg.BulkJobTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "enqueue: %v\n", err)
		return cli.ExitFailed
	}
	defer jobsCLI.Close()
	info, err := jobsCLI.Enqueue(ctx, jobID, file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "enqueue: %v\n", err)
		return cli.ExitFailed
	}
	fmt.Printf("enqueued task %s for job %d\n", info.ID, jobID)
	return cli.ExitOK
}

func statsCommand(ctx context.Context, archived int, asJSON bool) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats: %v\n", err)
		return cli.ExitFailed
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr, cfg.BulkJobTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats: %v\n", err)
		return cli.ExitFailed
	}
	defer jobsCLI.Close()
	stats, err := jobsCLI.InspectQueue(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats: %v\n", err)
		return cli.ExitFailed
	}
	if asJSON {
		_ = json.NewEncoder(os.Stdout).Encode(stats)
		return cli.ExitOK
	}
	var tasks []*asynq.TaskInfo
	if archived > 0 {
		tasks, err = jobsCLI.ListArchived(ctx, archived)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stats: %v\n", err)
			return cli.ExitFailed
		}
	}
	cli.RenderStats(os.Stdout, stats, tasks)
	return cli.ExitOK
}
