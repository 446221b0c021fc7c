package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/bleu-ims/stockledger/cmd/stockctl/cli"
	"github.com/bleu-ims/stockledger/internal/app"
	"github.com/bleu-ims/stockledger/internal/platform/db"
	"github.com/bleu-ims/stockledger/internal/shared"
	"github.com/bleu-ims/stockledger/internal/stock"
	"github.com/bleu-ims/stockledger/migrations"
)

const usage = `usage: stockctl <command> [args]

commands:
  migrate                     apply embedded schema migrations
  seed                        load the demo inventory
  drift [--json] [category]   list items whose aggregate differs from their batches
  low-stock [--json] [category]
  trigger <reconcile|cleanup> [category...]
  queues                      show job queue depth`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping stockctl")
		return
	}
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "trigger", "queues":
		os.Exit(runJobs(ctx, cfg, cmd, args))
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2, MaxConnLifetime: cfg.PGMaxConnLifetime})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	repo := stock.NewRepository(pool)
	report := cli.NewReportCLI(repo)
	jsonOut, rest := splitJSONFlag(args)
	opts := cli.ReportOptions{Categories: rest, JSONOutput: jsonOut, Stdout: os.Stdout, Stderr: os.Stderr}

	code := 0
	switch cmd {
	case "migrate":
		applied, err := migrations.Apply(ctx, pool)
		if err != nil {
			logger.Error("migrate", slog.Any("error", err))
			code = 1
			break
		}
		logger.Info("migrations applied", slog.Any("files", applied))
	case "seed":
		service := stock.NewService(repo, shared.NewAuditLogger(pool), nil,
			stock.ServiceConfig{AllowNegativeStock: cfg.LedgerAllowNegativeStock, HookTimeout: cfg.LedgerHookTimeout},
			stock.Hooks{Logger: logger})
		if err := cli.Seed(ctx, service, cli.DemoItems, "stockctl", os.Stdout); err != nil {
			logger.Error("seed", slog.Any("error", err))
			code = 1
		}
	case "drift":
		code = report.DriftCommand(ctx, opts)
	case "low-stock":
		code = report.LowStockCommand(ctx, opts)
	default:
		fmt.Fprintln(os.Stderr, usage)
		code = 2
	}
	pool.Close()
	os.Exit(code)
}

func runJobs(ctx context.Context, cfg *app.Config, cmd string, args []string) int {
	jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() { _ = jobsCLI.Close() }()

	switch cmd {
	case "trigger":
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, usage)
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[0], args[1:], cfg.IdempotencyRetention)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "queues":
		stats, err := jobsCLI.InspectQueues()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		_ = json.NewEncoder(os.Stdout).Encode(stats)
	}
	return 0
}

func splitJSONFlag(args []string) (bool, []string) {
	jsonOut := false
	rest := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--json" {
			jsonOut = true
			continue
		}
		rest = append(rest, a)
	}
	return jsonOut, rest
}
