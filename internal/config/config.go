package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds settings shared by the CLI and the HTTP service.
type Config struct {
	LogLevel string

	ProjectID string
	Dataset   string
	Table     string

	ReportURI string

	APIPort       string
	JobStorePath  string
	QueueBuffer   int
	QueueWorkers  int
	JobMaxRetries int
}

const (
	defaultLogLevel      = "info"
	defaultAPIPort       = "8080"
	defaultQueueBuffer   = 100
	defaultQueueWorkers  = 4
	defaultJobMaxRetries = 3
)

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over .env entries.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is ignored.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: reading %s: %w", path, err)
	}

	cfg := &Config{
		LogLevel:  getEnv("LOG_LEVEL", defaultLogLevel),
		ProjectID: os.Getenv("GCP_PROJECT_ID"),
		Dataset:   os.Getenv("BQ_DATASET"),
		Table:     os.Getenv("BQ_TABLE"),
		ReportURI: os.Getenv("REPORT_GCS_URI"),
		APIPort:   getEnv("API_PORT", defaultAPIPort),

		JobStorePath: os.Getenv("JOB_STORE_PATH"),
	}

	var err error
	if cfg.QueueBuffer, err = getEnvInt("QUEUE_BUFFER", defaultQueueBuffer, 0); err != nil {
		return nil, err
	}
	if cfg.QueueWorkers, err = getEnvInt("QUEUE_WORKERS", defaultQueueWorkers, 1); err != nil {
		return nil, err
	}
	if cfg.JobMaxRetries, err = getEnvInt("JOB_MAX_RETRIES", defaultJobMaxRetries, 0); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ExportEnabled reports whether a BigQuery destination is configured.
func (c *Config) ExportEnabled() bool {
	return c.Dataset != "" && c.Table != ""
}

// Validate checks combinations that only matter once the settings are used.
func (c *Config) Validate() error {
	if c.ExportEnabled() && c.ProjectID == "" {
		return errors.New("GCP_PROJECT_ID is required when BQ_DATASET and BQ_TABLE are set")
	}
	if c.ReportURI != "" && !strings.HasPrefix(c.ReportURI, "gs://") {
		return fmt.Errorf("REPORT_GCS_URI must start with gs://, got %q", c.ReportURI)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback, min int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config.Load: %s: %w", key, err)
	}
	if n < min {
		return 0, fmt.Errorf("config.Load: %s must be at least %d, got %d", key, min, n)
	}
	return n, nil
}
