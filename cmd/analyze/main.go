package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvoloshyn/statement-insights/internal/classifier"
	"github.com/dvoloshyn/statement-insights/internal/config"
	"github.com/dvoloshyn/statement-insights/internal/docstore"
	"github.com/dvoloshyn/statement-insights/internal/domain"
	"github.com/dvoloshyn/statement-insights/internal/extract"
	"github.com/dvoloshyn/statement-insights/internal/format"
	"github.com/dvoloshyn/statement-insights/internal/logger"
	"github.com/dvoloshyn/statement-insights/internal/pipeline"
	"github.com/dvoloshyn/statement-insights/internal/recurring"
	"github.com/dvoloshyn/statement-insights/internal/storage"
)

// One-shot analysis: run the full pipeline on a local statement file
// and print the formatted transaction list and recurring summary.
func main() {
	var (
		file  = flag.String("file", "", "Path to the statement PDF to analyze")
		owner = flag.String("owner", "local", "Owner id to record the statement under")
	)
	flag.Parse()

	bootLog := logger.New("info")

	if *file == "" {
		bootLog.Fatal().Msg("Usage: analyze -file statement.pdf [-owner id]")
	}

	cfg, err := config.Load(bootLog)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.New(cfg.LogLevel)

	ctx := context.Background()

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

	src, err := os.Open(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open statement file")
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to stat statement file")
	}

	outcome, err := pipe.Run(ctx, pipeline.Submission{
		OwnerID:  *owner,
		Filename: filepath.Base(*file),
		ByteSize: info.Size(),
		Source:   src,
	})
	if err != nil {
		if outcome != nil {
			log.Error().
				Stringer("statement_id", outcome.StatementID).
				Str("failure_kind", outcome.FailureKind).
				Msg(outcome.Message)
		}
		log.Fatal().Err(err).Msg("Pipeline run failed")
	}

	log.Info().
		Stringer("statement_id", outcome.StatementID).
		Int("saved", outcome.SavedTransactions).
		Int("skipped", outcome.SkippedTransactions).
		Msg("Statement processed")

	txs, err := repo.ListTransactions(ctx, outcome.StatementID, *owner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read back transactions")
	}
	fmt.Println(format.Transactions(txs, format.DefaultTransactionLimit))

	analysis, err := pipe.AnalyzeRecurring(ctx, outcome.StatementID, *owner)
	if err != nil {
		if domain.IsParseError(err) {
			log.Warn().Err(err).Msg("Recurring analysis degraded")
			analysis = &domain.RecurringAnalysis{RecurringPayments: []domain.RecurringPayment{}}
		} else {
			log.Fatal().Err(err).Msg("Recurring analysis failed")
		}
	}
	fmt.Println(format.Summary(analysis))
}
