package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// TrainingConfig is the fixed hyperparameter set used by the training driver.
type TrainingConfig struct {
	BaseModel         string
	DatasetDescriptor string
	Epochs            int
	ImageSize         int
	BatchSize         int
	RunName           string
	Project           string // training-output root, run directories are created below it
	ExportFormat      string
}

type Config struct {
	Port                int
	Password            string
	SearchRoots         []string // ordered, the first root with a usable run wins
	RunPattern          string
	WeightsFile         string
	DatasetDescriptor   string
	ConfidenceThreshold float64
	IoUThreshold        float64
	InputSize           int
	MaxUploadSize       int64 // MB
	HistoryDatabase     string
	ImageDirectory      string
	LogDirectory        string
	Training            TrainingConfig
}

// DefaultTraining returns the training job configuration. It is never read from
// the environment.
func DefaultTraining() TrainingConfig {
	return TrainingConfig{
		BaseModel:         "yolov8s.pt",
		DatasetDescriptor: "dataset.yaml",
		Epochs:            50,
		ImageSize:         640,
		BatchSize:         16,
		RunName:           "yolov8s_carsdd_fine_tuned",
		Project:           filepath.Join("runs", "detect"),
		ExportFormat:      "onnx",
	}
}

// Default returns the serving configuration without consulting the environment.
func Default() *Config {
	training := DefaultTraining()

	return &Config{
		Port:                8501,
		SearchRoots:         defaultSearchRoots(training.Project),
		RunPattern:          training.RunName + "*",
		WeightsFile:         "best.onnx",
		DatasetDescriptor:   training.DatasetDescriptor,
		ConfidenceThreshold: 0.25,
		IoUThreshold:        0.7,
		InputSize:           training.ImageSize,
		MaxUploadSize:       20,
		ImageDirectory:      filepath.Join(".", "images"),
		LogDirectory:        filepath.Join(".", "logs"),
		Training:            training,
	}
}

// Load builds the serving configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	def := Default()
	return &Config{
		Port:                getEnvAsInt("PORT", def.Port),
		Password:            getEnv("PASSWORD", def.Password),
		SearchRoots:         getEnvAsList("SEARCH_ROOTS", def.SearchRoots),
		RunPattern:          getEnv("RUN_PATTERN", def.RunPattern),
		WeightsFile:         getEnv("WEIGHTS_FILE", def.WeightsFile),
		DatasetDescriptor:   getEnv("DATASET_DESCRIPTOR", def.DatasetDescriptor),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", def.ConfidenceThreshold),
		IoUThreshold:        getEnvAsFloat("IOU_THRESHOLD", def.IoUThreshold),
		InputSize:           getEnvAsInt("INPUT_SIZE", def.InputSize),
		MaxUploadSize:       getEnvAsInt64("MAX_UPLOAD_MB", def.MaxUploadSize),
		HistoryDatabase:     getEnv("HISTORY_DB", def.HistoryDatabase),
		ImageDirectory:      getEnv("IMAGE_DIR", def.ImageDirectory),
		LogDirectory:        getEnv("LOG_DIR", def.LogDirectory),
		Training:            def.Training,
	}, nil
}

// HistoryEnabled reports whether inference history should be persisted.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDatabase != ""
}

// defaultSearchRoots is the project-relative output root followed by the same
// layout under the user's home directory.
func defaultSearchRoots(project string) []string {
	roots := []string{project}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		roots = append(roots, filepath.Join(home, project))
	}
	return roots
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
