package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dvoloshyn/statement-insights/internal/classifier"
	"github.com/dvoloshyn/statement-insights/internal/config"
	"github.com/dvoloshyn/statement-insights/internal/docstore"
	"github.com/dvoloshyn/statement-insights/internal/extract"
	"github.com/dvoloshyn/statement-insights/internal/jobs"
	"github.com/dvoloshyn/statement-insights/internal/jobs/inmemory"
	"github.com/dvoloshyn/statement-insights/internal/logger"
	"github.com/dvoloshyn/statement-insights/internal/pipeline"
	"github.com/dvoloshyn/statement-insights/internal/recurring"
	"github.com/dvoloshyn/statement-insights/internal/storage"
)

// Standalone statement worker. It consumes processing jobs from the
// queue without serving HTTP. With the in-memory queue this only sees
// jobs published in the same process; swapping in a broker-backed
// Publisher/Consumer makes it a real multi-instance worker without
// touching the pipeline.
func main() {
	bootLog := logger.New("info")

	cfg, err := config.Load(bootLog)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.NewDB(cfg.DatabaseURL, cfg.Env)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	repo := storage.NewRepository(db, log)

	docs, err := docstore.New(filepath.Join(cfg.UploadDir, "scoped"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create document store")
	}

	model, err := classifier.NewGeminiModel(ctx, cfg.Model, cfg.ClassifierTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create classifier model")
	}
	clf := classifier.New(model, log)
	extractor := extract.New(clf, log)
	detector := recurring.New(clf, log)

	pipe := pipeline.New(repo, pipeline.WrapStore(docs), extractor, clf, detector, cfg.MaxFileSize, log)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.QueueBuffer, cfg.Workers, jobStore)

	handler := func(ctx context.Context, job jobs.Job) error {
		stJob, ok := job.(*jobs.ProcessStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", stJob.JobID).
			Str("owner_id", stJob.OwnerID).
			Str("filename", stJob.Filename).
			Msg("Processing statement job")

		f, err := os.Open(stJob.SpoolPath)
		if err != nil {
			return fmt.Errorf("opening spooled upload: %w", err)
		}
		defer func() {
			f.Close()
			os.Remove(stJob.SpoolPath)
		}()

		outcome, err := pipe.Run(ctx, pipeline.Submission{
			OwnerID:   stJob.OwnerID,
			OwnerName: stJob.OwnerName,
			Filename:  stJob.Filename,
			ByteSize:  stJob.ByteSize,
			Source:    f,
		})
		if outcome != nil {
			stJob.StatementID = outcome.StatementID.String()
		}
		if err != nil {
			log.Error().Err(err).Str("job_id", stJob.JobID).Msg("Pipeline execution failed")
			return err
		}

		log.Info().
			Str("job_id", stJob.JobID).
			Str("statement_id", stJob.StatementID).
			Msg("Pipeline execution completed")
		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Int("workers", cfg.Workers).Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
