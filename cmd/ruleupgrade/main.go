// Package main provides the rule-upgrade control loop's CLI entrypoint.
// Unlike the grading pipeline, a rule-upgrade run isn't triggered by
// incoming HTTP traffic — it's kicked off by a schedule (a nightly/weekly
// cron invocation of "run") and, when it suspends for a human decision,
// resumed later by a separate "approve" invocation.
//
// Usage:
//
//	ruleupgrade run -window 168h [-require-approval=true]
//	ruleupgrade approve -id <upgrade_id> [-deny] [-reason "..."]
//	ruleupgrade rollback -id <upgrade_id> [-reason "..."]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"brokle/internal/config"
	"brokle/internal/core/domain/ruleupgrade"
	"brokle/internal/infrastructure/database"
	"brokle/internal/infrastructure/mining"
	redisrepo "brokle/internal/infrastructure/repository/redis"
	ruleupgradeinfra "brokle/internal/infrastructure/ruleupgrade"
	"brokle/internal/infrastructure/storage"
	"brokle/pkg/logging"
	"brokle/pkg/ulid"

	workflow "brokle/internal/workflow/ruleupgrade"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ruleupgrade <run|approve|rollback> [flags]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := logging.NewLoggerWithFormat(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	ctx := context.Background()

	switch os.Args[1] {
	case "run":
		runCmd(ctx, cfg, logger, os.Args[2:])
	case "approve":
		approveCmd(ctx, cfg, logger, os.Args[2:])
	case "rollback":
		rollbackCmd(ctx, cfg, logger, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}

func buildOrchestrator(cfg *config.Config, logger *slog.Logger) (*workflow.Orchestrator, *redisrepo.RuleUpgradeCheckpointer, func(), error) {
	redisDB, err := database.NewRedisDB(cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	clickhouseDB, err := database.NewClickHouseDB(cfg, logger)
	if err != nil {
		redisDB.Close()
		return nil, nil, nil, fmt.Errorf("connect clickhouse: %w", err)
	}
	fileStorage, err := storage.NewS3Client(&cfg.BlobStorage, logger)
	if err != nil {
		redisDB.Close()
		clickhouseDB.Close()
		return nil, nil, nil, fmt.Errorf("connect blob storage: %w", err)
	}

	checkpointer := redisrepo.NewRuleUpgradeCheckpointer(redisDB)
	lock := redisrepo.NewLockManager(redisDB)

	orchestrator := &workflow.Orchestrator{
		Miner:        mining.NewClickHouseRuleMiner(clickhouseDB),
		PatchGen:     mining.NewAnthropicPatchGenerator(cfg.Scoring, logger),
		Regression:   ruleupgrade.NoopRegressionRunner{},
		Deployer:     ruleupgradeinfra.NewS3Deployer(fileStorage, logger),
		Monitor:      ruleupgradeinfra.NewNoopMonitor(),
		Checkpointer: checkpointer,
		Lock:         lock,
		Logger:       logger,
	}

	cleanup := func() {
		redisDB.Close()
		clickhouseDB.Close()
	}
	return orchestrator, checkpointer, cleanup, nil
}

func runCmd(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	window := fs.Duration("window", cfg.RuleUpgrade.MiningWindow, "mining lookback window")
	requireApproval := fs.Bool("require-approval", cfg.RuleUpgrade.RequireApproval, "suspend for a human decision before deploying")
	fs.Parse(args)

	orchestrator, _, cleanup, err := buildOrchestrator(cfg, logger)
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	now := time.Now()
	state := ruleupgrade.NewRuleUpgradeState(ulid.New().String(), now.Add(-*window), now, *requireApproval)

	out, err := orchestrator.Run(ctx, state)
	if err != nil {
		logger.Error("rule-upgrade run failed", "upgrade_id", state.UpgradeID, "error", err)
		os.Exit(1)
	}
	logger.Info("rule-upgrade run finished", "upgrade_id", out.UpgradeID, "stage", out.CurrentStage, "termination_reason", out.TerminationReason)
}

func approveCmd(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	id := fs.String("id", "", "upgrade id awaiting approval")
	deny := fs.Bool("deny", false, "deny instead of approve")
	reason := fs.String("reason", "", "reason recorded alongside the decision")
	fs.Parse(args)
	if *id == "" {
		fmt.Fprintln(os.Stderr, "approve requires -id")
		os.Exit(1)
	}

	orchestrator, checkpointer, cleanup, err := buildOrchestrator(cfg, logger)
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	state, err := checkpointer.Load(ctx, *id)
	if err != nil {
		logger.Error("failed to load checkpoint", "upgrade_id", *id, "error", err)
		os.Exit(1)
	}

	out, err := orchestrator.ResumeApproval(ctx, state, ruleupgrade.ApprovalResponse{Approved: !*deny, Reason: *reason})
	if err != nil {
		logger.Error("rule-upgrade resume failed", "upgrade_id", *id, "error", err)
		os.Exit(1)
	}
	logger.Info("rule-upgrade resumed", "upgrade_id", out.UpgradeID, "stage", out.CurrentStage)
}

func rollbackCmd(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	id := fs.String("id", "", "upgrade id to roll back")
	reason := fs.String("reason", "", "reason for the rollback signal")
	fs.Parse(args)
	if *id == "" {
		fmt.Fprintln(os.Stderr, "rollback requires -id")
		os.Exit(1)
	}

	orchestrator, checkpointer, cleanup, err := buildOrchestrator(cfg, logger)
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	state, err := checkpointer.Load(ctx, *id)
	if err != nil {
		logger.Error("failed to load checkpoint", "upgrade_id", *id, "error", err)
		os.Exit(1)
	}

	out, err := orchestrator.Rollback(ctx, state, ruleupgrade.RollbackSignal{UpgradeID: *id, Reason: *reason})
	if err != nil {
		logger.Error("rollback failed", "upgrade_id", *id, "error", err)
		os.Exit(1)
	}
	logger.Info("rollback complete", "upgrade_id", out.UpgradeID, "deployed_version", out.DeployedVersion)
}
