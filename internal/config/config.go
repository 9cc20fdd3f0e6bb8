package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// Config is the single configuration object handed to the orchestrator
// and service binaries at construction. There is no module-level state:
// everything the pipeline needs to know arrives through here.
type Config struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Model is the Gemini model used for all classification calls.
	Model string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`

	// UploadDir is where the transport spools incoming documents and
	// where the document store allocates scoped temp files.
	UploadDir string `envconfig:"UPLOAD_DIR" default:"uploads"`

	// MaxFileSize is the upload size ceiling in bytes.
	MaxFileSize int64 `envconfig:"MAX_FILE_SIZE" default:"52428800"`

	// QueueBuffer bounds how many pipeline jobs may wait before
	// submission blocks.
	QueueBuffer int `envconfig:"QUEUE_BUFFER" default:"100"`

	// Workers is the number of concurrent pipeline runs.
	Workers int `envconfig:"WORKERS" default:"5"`

	// ClassifierTimeout bounds every single classifier call.
	ClassifierTimeout time.Duration `envconfig:"CLASSIFIER_TIMEOUT" default:"120s"`
}

// Load reads configuration from the environment, optionally seeded from
// a .env file. A missing .env file is not an error.
func Load(log zerolog.Logger, envFilePath ...string) (*Config, error) {
	var err error
	if len(envFilePath) > 0 && envFilePath[0] != "" {
		err = godotenv.Load(envFilePath[0])
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		log.Debug().Msg("no .env file found, using process environment")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("config: MAX_FILE_SIZE must be positive, got %d", cfg.MaxFileSize)
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("config: WORKERS must be positive, got %d", cfg.Workers)
	}

	log.Info().
		Str("env", cfg.Env).
		Int("port", cfg.Port).
		Str("model", cfg.Model).
		Int64("max_file_size", cfg.MaxFileSize).
		Int("workers", cfg.Workers).
		Msg("configuration loaded")

	return &cfg, nil
}
