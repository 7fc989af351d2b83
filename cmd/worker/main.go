// Package main provides the worker process that actually drives the
// grading orchestrator: pull a batch job off the shared Redis stream,
// construct or reload its state, and run the stage graph to its next
// checkpoint or completion. The HTTP process (cmd/server) never runs the
// orchestrator itself — it only mints batches and enqueues work here.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	grading "brokle/internal/core/domain/grading"

	"brokle/internal/config"
	"brokle/internal/infrastructure/database"
	"brokle/internal/infrastructure/dispatch"
	"brokle/internal/infrastructure/notify"
	gradingrepo "brokle/internal/infrastructure/repository/grading"
	redisrepo "brokle/internal/infrastructure/repository/redis"
	"brokle/internal/infrastructure/scoring"
	"brokle/internal/infrastructure/storage"
	"brokle/pkg/logging"

	workflow "brokle/internal/workflow/grading"
)

// consumeBatchSize caps how many jobs a single poll claims; blockFor bounds
// how long a poll waits for new work before looping back to check ctx.
const (
	consumeBatchSize = 10
	blockFor         = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.NewLoggerWithFormat(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	pg, err := database.NewPostgresDB(cfg, logger)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pg.Close()

	redisDB, err := database.NewRedisDB(cfg, logger)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisDB.Close()

	fileStorage, err := storage.NewS3Client(&cfg.BlobStorage, logger)
	if err != nil {
		log.Fatalf("failed to initialize blob storage: %v", err)
	}

	var classNotifier grading.ClassSystemNotifier = notify.NoopClassSystemNotifier{}
	if cfg.ClassSystem.WebhookURL != "" {
		classNotifier = notify.NewWebhookNotifier(cfg.ClassSystem, logger)
	}

	streamDispatcher := redisrepo.NewStreamDispatcher(redisDB, cfg.Redis.StreamName, cfg.Redis.ConsumerGroup, logger)
	jobQueue := dispatch.NewQueue(streamDispatcher)
	checkpointer := redisrepo.NewCheckpointer(redisDB)

	groupCtx, groupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := jobQueue.EnsureGroup(groupCtx); err != nil {
		log.Fatalf("failed to ensure consumer group: %v", err)
	}
	groupCancel()

	orchestrator := &workflow.Orchestrator{
		Scoring:       scoring.NewAnthropicClient(cfg.Scoring, fileStorage, logger),
		Preprocessor:  grading.PassthroughPreprocessor{},
		Sink:          grading.NoopProgressSink{},
		Checkpointer:  checkpointer,
		FileStorage:   fileStorage,
		GradingRepo:   gradingrepo.NewHistoryRepository(pg.DB),
		ResultRepo:    gradingrepo.NewStudentResultRepository(pg.DB),
		PageImageRepo: gradingrepo.NewPageImageRepository(pg.DB),
		Export:        fileStorage,
		Notifier:      classNotifier,
		Logger:        logger,
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	id := consumerID()
	done := make(chan struct{})
	go func() {
		defer close(done)
		runLoop(runCtx, logger, jobQueue, checkpointer, orchestrator, id)
	}()

	logger.Info("worker started", "consumer_id", id)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker")
	runCancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("worker run loop did not stop within timeout")
	}

	slog.Info("worker stopped")
}

// consumerID identifies this process within the stream's consumer group;
// the hostname is enough to tell replicas apart in logs and XPENDING output.
func consumerID() string {
	host, err := os.Hostname()
	if err != nil {
		return "worker-unknown"
	}
	return "worker-" + host
}

// runLoop polls the shared job queue until ctx is canceled, running each
// decoded batch job against the orchestrator. A job that fails leaves its
// error on the checkpointed state rather than crashing the loop: stage
// failure is terminal for the batch, not for the worker process.
func runLoop(ctx context.Context, logger *slog.Logger, jobs *dispatch.Queue, checkpointer grading.Checkpointer, orchestrator *workflow.Orchestrator, consumerID string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch, err := jobs.Consume(ctx, consumerID, consumeBatchSize, blockFor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to consume batch jobs", "error", err)
			continue
		}

		for _, job := range batch {
			handleJob(ctx, logger, checkpointer, orchestrator, job)
		}
	}
}

func handleJob(ctx context.Context, logger *slog.Logger, checkpointer grading.Checkpointer, orchestrator *workflow.Orchestrator, job dispatch.BatchJob) {
	switch job.Kind {
	case dispatch.BatchJobStart:
		if job.Inputs == nil || job.Config == nil {
			logger.Error("start job missing inputs or config", "batch_id", job.BatchID)
			return
		}
		state := grading.NewBatchGradingState(*job.Inputs, *job.Config)
		state.BatchID = job.BatchID
		if _, err := orchestrator.Run(ctx, state); err != nil {
			logger.Error("batch run failed", "batch_id", job.BatchID, "error", err)
		}

	case dispatch.BatchJobResumeRubricReview:
		state, err := checkpointer.Load(ctx, job.BatchID)
		if err != nil || job.Response == nil {
			logger.Error("cannot resume rubric review", "batch_id", job.BatchID, "error", err)
			return
		}
		if _, err := orchestrator.ResumeRubricReview(ctx, state, *job.Response); err != nil {
			logger.Error("rubric review resume failed", "batch_id", job.BatchID, "error", err)
		}

	case dispatch.BatchJobResumeResultsReview:
		state, err := checkpointer.Load(ctx, job.BatchID)
		if err != nil || job.Response == nil {
			logger.Error("cannot resume results review", "batch_id", job.BatchID, "error", err)
			return
		}
		if _, err := orchestrator.ResumeResultsReview(ctx, state, *job.Response); err != nil {
			logger.Error("results review resume failed", "batch_id", job.BatchID, "error", err)
		}

	default:
		logger.Warn("unknown batch job kind", "batch_id", job.BatchID, "kind", job.Kind)
	}
}
