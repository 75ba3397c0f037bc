// Package config defines service configuration structures and loading hooks.
package config

import "time"

// Task names used across configuration, the scheduler, and persisted state.
const (
	TaskIngest        = "ingest"
	TaskAdmission     = "admission_sweep"
	TaskEngagement    = "engagement_recompute"
	TaskModelTraining = "model_training"
	TaskMaintenance   = "maintenance"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the operational HTTP listen address (health, metrics).
	Addr string `koanf:"addr"`

	// Store selects the persistence backend: memory or mongo.
	Store string `koanf:"store"`

	Mongo MongoConfig `koanf:"mongo"`

	// QueueSize bounds the in-memory raw-item queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingestion workers.
	WorkerCount int `koanf:"worker_count"`

	// Tasks holds per-task scheduling settings keyed by task name.
	Tasks map[string]TaskConfig `koanf:"tasks"`

	Admission   AdmissionConfig   `koanf:"admission"`
	Dedupe      DedupeConfig      `koanf:"dedupe"`
	ML          MLConfig          `koanf:"ml"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Sources     []SourceConfig    `koanf:"sources"`
	Maintenance MaintenanceConfig `koanf:"maintenance"`
}

// MongoConfig locates the MongoDB backend.
type MongoConfig struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

// TaskConfig holds one task's scheduling settings.
type TaskConfig struct {
	Enabled         bool `koanf:"enabled"`
	IntervalMinutes int  `koanf:"interval_minutes"`
}

// Interval returns the configured interval as a duration.
func (t TaskConfig) Interval() time.Duration {
	return time.Duration(t.IntervalMinutes) * time.Minute
}

// AdmissionConfig bounds publication.
type AdmissionConfig struct {
	MinQualityScore int `koanf:"min_quality_score"`
	MaxPerDay       int `koanf:"max_per_day"`
	MaxPerHour      int `koanf:"max_per_hour"`
}

// DedupeConfig tunes the duplicate-detection engine.
type DedupeConfig struct {
	TitleSimilarityThreshold    float64 `koanf:"title_similarity_threshold"`
	SemanticSimilarityThreshold float64 `koanf:"semantic_similarity_threshold"`
	LookbackDays                int     `koanf:"lookback_days"`
	MinSemanticBodyChars        int     `koanf:"min_semantic_body_chars"`
}

// MLConfig tunes quality-model training.
type MLConfig struct {
	MinTrainingSamples int `koanf:"min_training_samples"`
	Estimators         int `koanf:"estimators"`
}

// EmbeddingConfig locates the external embedding service. An empty endpoint
// disables the semantic dedupe tier.
type EmbeddingConfig struct {
	Endpoint string `koanf:"endpoint"`
	APIKey   string `koanf:"api_key"`
}

// SourceConfig describes one listing source to scrape.
type SourceConfig struct {
	Name          string `koanf:"name"`
	URL           string `koanf:"url"`
	ItemSelector  string `koanf:"item_selector"`
	TitleSelector string `koanf:"title_selector"`
	BodySelector  string `koanf:"body_selector"`
	LinkAttr      string `koanf:"link_attr"`
}

// MaintenanceConfig tunes the cleanup task.
type MaintenanceConfig struct {
	CandidateRetentionDays int `koanf:"candidate_retention_days"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:    "info",
		Addr:        ":9090",
		Store:       StoreMemory,
		QueueSize:   10_000,
		WorkerCount: 4,
		Tasks: map[string]TaskConfig{
			TaskIngest:        {Enabled: true, IntervalMinutes: 30},
			TaskAdmission:     {Enabled: true, IntervalMinutes: 60},
			TaskEngagement:    {Enabled: true, IntervalMinutes: 360},
			TaskModelTraining: {Enabled: true, IntervalMinutes: 1440},
			TaskMaintenance:   {Enabled: true, IntervalMinutes: 720},
		},
		Admission: AdmissionConfig{
			MinQualityScore: 6,
			MaxPerDay:       10,
			MaxPerHour:      2,
		},
		Dedupe: DedupeConfig{
			TitleSimilarityThreshold:    0.80,
			SemanticSimilarityThreshold: 0.65,
			LookbackDays:                30,
			MinSemanticBodyChars:        100,
		},
		ML: MLConfig{
			MinTrainingSamples: 50,
			Estimators:         8,
		},
		Maintenance: MaintenanceConfig{
			CandidateRetentionDays: 30,
		},
	}
}

// Task returns the settings for a task name, falling back to a disabled
// zero-interval entry when the name is unknown.
func (c *Config) Task(name string) TaskConfig {
	if t, ok := c.Tasks[name]; ok {
		return t
	}
	return TaskConfig{}
}
