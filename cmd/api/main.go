package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvoloshyn/statement-insights/internal/api/handlers"
	"github.com/dvoloshyn/statement-insights/internal/api/middleware"
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

func main() {
	bootLog := logger.New("info")

	cfg, err := config.Load(bootLog)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.New(cfg.LogLevel)

	ctx := context.Background()

	// Durable store.
	db, err := storage.NewDB(cfg.DatabaseURL, cfg.Env)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	repo := storage.NewRepository(db, log)

	// Scoped document store.
	docs, err := docstore.New(filepath.Join(cfg.UploadDir, "scoped"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create document store")
	}

	// Classification service.
	model, err := classifier.NewGeminiModel(ctx, cfg.Model, cfg.ClassifierTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create classifier model")
	}
	clf := classifier.New(model, log)
	extractor := extract.New(clf, log)
	detector := recurring.New(clf, log)

	pipe := pipeline.New(repo, pipeline.WrapStore(docs), extractor, clf, detector, cfg.MaxFileSize, log)

	// Job infrastructure.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.QueueBuffer, cfg.Workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := newStatementJobHandler(pipe, log)

	go func() {
		log.Info().Int("workers", cfg.Workers).Msg("Starting statement workers")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Handlers.
	spoolDir := filepath.Join(cfg.UploadDir, "spool")
	statementsHandler := handlers.NewStatementsHandler(repo, pipe, jobQueue, spoolDir, cfg.MaxFileSize)
	jobsHandler := handlers.NewJobsHandler(jobStore)

	// Router.
	mux := http.NewServeMux()

	mux.HandleFunc("/api/statements", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			statementsHandler.Submit(w, r)
		case http.MethodGet:
			statementsHandler.List(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/statements/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/statements/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		statementID, action := parts[0], parts[1]

		switch {
		case action == "transactions" && r.Method == http.MethodGet:
			statementsHandler.Transactions(w, r, statementID)
		case action == "recurring" && r.Method == http.MethodPost:
			statementsHandler.Recurring(w, r, statementID)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware.
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(log)(
				middleware.CORS(
					middleware.Owner(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

// newStatementJobHandler builds the queue handler that runs one
// pipeline pass per job. The spooled upload is removed once the run
// finishes, whatever the outcome.
func newStatementJobHandler(pipe *pipeline.Pipeline, log zerolog.Logger) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
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
			log.Error().
				Err(err).
				Str("job_id", stJob.JobID).
				Msg("Pipeline execution failed")
			return err
		}

		log.Info().
			Str("job_id", stJob.JobID).
			Str("statement_id", stJob.StatementID).
			Int("saved", outcome.SavedTransactions).
			Int("skipped", outcome.SkippedTransactions).
			Msg("Pipeline execution completed")

		return nil
	}
}
