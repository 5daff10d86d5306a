// Package config provides configuration management for the memory engine.
// It loads settings from environment variables with the MEMENTO_ prefix and
// provides sensible defaults for all configuration groups named in §6.4.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every configuration group for the engine.
type Config struct {
	Storage    StorageConfig
	Embedding  EmbeddingConfig
	Activation ActivationConfig
	Bridge     BridgeConfig
	Decay      DecayConfig
	Activity   ActivityConfig
	Ingestion  IngestionConfig
	Backup     BackupConfig
}

// StorageConfig selects and locates the metadata/vector backend.
type StorageConfig struct {
	StorageEngine string // sqlite or postgres (default: sqlite)
	DataPath      string // root directory for per-project metadata.db files (default: ./data)
	PostgresDSN   string // used only when StorageEngine == postgres
}

// EmbeddingConfig configures the pluggable semantic embedding provider.
type EmbeddingConfig struct {
	Provider       string // name of the registered EmbeddingProvider (default: local)
	ModelName      string
	Dimension      int           // must match the provider's actual output width (default: 384)
	RequestTimeout time.Duration // per-call deadline (default: 10s)
	BatchSize      int           // max texts per batch submission (default: 32)
	RateLimitRPS   float64       // token-bucket rate for provider calls, single or batch (default: 5)
}

// ActivationConfig bounds ActivationEngine's spreading BFS (§4.8).
type ActivationConfig struct {
	MaxHops        int     // default: 3
	MaxActivations int     // default: 50
	StrengthFloor  float64 // default: 0.6
	SeedCount      int     // top-k seeds from the initial vector search (default: 5)
	Timeout        time.Duration

	// ActivationThreshold is the L0 seed-phase cutoff: a cosine match below
	// this score is not seeded at all (default: 0.7). The cascade falls
	// back to L1 at ActivationThreshold-0.1 and L2 at ActivationThreshold-0.2
	// when L0 yields no seeds.
	ActivationThreshold float64
	// PeripheralThreshold is the floor below which a spread-phase activation
	// is dropped entirely rather than classified peripheral (default: 0.6,
	// matching StrengthFloor since the spec names no separate default).
	PeripheralThreshold float64
	// CoreThreshold is the activation at or above which a memory is
	// classified core rather than peripheral (default: 0.7).
	CoreThreshold float64
	// HopDecay multiplies each hop's contribution in addition to the
	// traversed edge's strength (default: 0.8).
	HopDecay float64
}

// BridgeConfig tunes BridgeDiscovery (§4.9).
type BridgeConfig struct {
	NoveltyWeight             float64       // default: 0.6
	ConnectionPotentialWeight float64       // default: 0.4
	MinBridgeScore            float64       // default: 0.5
	CacheSize                 int           // LRU entry cap (default: 1000)
	CacheTTL                  time.Duration // default: 5m
}

// DecayConfig tunes DualMemoryStore's decay formula (§4.7).
type DecayConfig struct {
	EpisodicBaseRate      float64 // per day, default 0.1
	SemanticBaseRate      float64 // per day, default 0.01
	ImportanceFloor       float64 // default 0.05
	ConsolidationThreshold float64 // min effective strength for episodic->semantic promotion (the access-count floor of 3 is fixed in DualMemoryStore), default 0.3
}

// ActivityConfig tunes ActivityTracker's rate scoring (§4.13).
type ActivityConfig struct {
	Window           time.Duration // default: 24h
	HighMultiplier   float64       // default: 2.0
	NormalMultiplier float64       // default: 1.0
	LowMultiplier    float64       // default: 0.1
	CacheTTL         time.Duration // default: 5m
}

// IngestionConfig governs document and git ingestion (§4.11, §4.12).
type IngestionConfig struct {
	Atomicity        string // per_chunk or per_file (default: per_chunk); DocumentPipeline does not read it and always stores chunk by chunk
	ChunkTokenBudget int    // default: 400
	MaxFileSizeBytes int64  // default: 2MB
}

// BackupConfig mirrors the teacher's backup scheduling surface.
type BackupConfig struct {
	Enabled          bool
	Interval         string // duration string, default: 24h
	Path             string // default: ./backups
	Verify           bool
	RetentionHourly  int
	RetentionDaily   int
	RetentionWeekly  int
	RetentionMonthly int
}

// LoadConfig loads configuration from environment variables with defaults.
func LoadConfig() (*Config, error) {
	return &Config{
		Storage: StorageConfig{
			StorageEngine: getEnv("MEMENTO_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("MEMENTO_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("MEMENTO_POSTGRES_DSN", ""),
		},
		Embedding: EmbeddingConfig{
			Provider:       getEnv("MEMENTO_EMBEDDING_PROVIDER", "local"),
			ModelName:      getEnv("MEMENTO_EMBEDDING_MODEL", "local-minilm"),
			Dimension:      getEnvInt("MEMENTO_EMBEDDING_DIMENSION", 384),
			RequestTimeout: getEnvDuration("MEMENTO_EMBEDDING_TIMEOUT", 10*time.Second),
			BatchSize:      getEnvInt("MEMENTO_EMBEDDING_BATCH_SIZE", 32),
			RateLimitRPS:   getEnvFloat("MEMENTO_EMBEDDING_RATE_LIMIT", 5),
		},
		Activation: ActivationConfig{
			MaxHops:             getEnvInt("MEMENTO_ACTIVATION_MAX_HOPS", 3),
			MaxActivations:      getEnvInt("MEMENTO_ACTIVATION_MAX_ACTIVATIONS", 50),
			StrengthFloor:       getEnvFloat("MEMENTO_ACTIVATION_STRENGTH_FLOOR", 0.6),
			SeedCount:           getEnvInt("MEMENTO_ACTIVATION_SEED_COUNT", 5),
			Timeout:             getEnvDuration("MEMENTO_ACTIVATION_TIMEOUT", 30*time.Second),
			ActivationThreshold: getEnvFloat("MEMENTO_ACTIVATION_THRESHOLD", 0.7),
			PeripheralThreshold: getEnvFloat("MEMENTO_ACTIVATION_PERIPHERAL_THRESHOLD", 0.6),
			CoreThreshold:       getEnvFloat("MEMENTO_ACTIVATION_CORE_THRESHOLD", 0.7),
			HopDecay:            getEnvFloat("MEMENTO_ACTIVATION_HOP_DECAY", 0.8),
		},
		Bridge: BridgeConfig{
			NoveltyWeight:             getEnvFloat("MEMENTO_BRIDGE_NOVELTY_WEIGHT", 0.6),
			ConnectionPotentialWeight: getEnvFloat("MEMENTO_BRIDGE_CONNECTION_WEIGHT", 0.4),
			MinBridgeScore:            getEnvFloat("MEMENTO_BRIDGE_MIN_SCORE", 0.5),
			CacheSize:                 getEnvInt("MEMENTO_BRIDGE_CACHE_SIZE", 1000),
			CacheTTL:                  getEnvDuration("MEMENTO_BRIDGE_CACHE_TTL", 5*time.Minute),
		},
		Decay: DecayConfig{
			EpisodicBaseRate:       getEnvFloat("MEMENTO_DECAY_EPISODIC_RATE", 0.1),
			SemanticBaseRate:       getEnvFloat("MEMENTO_DECAY_SEMANTIC_RATE", 0.01),
			ImportanceFloor:        getEnvFloat("MEMENTO_DECAY_IMPORTANCE_FLOOR", 0.05),
			ConsolidationThreshold: getEnvFloat("MEMENTO_DECAY_CONSOLIDATION_THRESHOLD", 0.3),
		},
		Activity: ActivityConfig{
			Window:           getEnvDuration("MEMENTO_ACTIVITY_WINDOW", 24*time.Hour),
			HighMultiplier:   getEnvFloat("MEMENTO_ACTIVITY_HIGH_MULTIPLIER", 2.0),
			NormalMultiplier: getEnvFloat("MEMENTO_ACTIVITY_NORMAL_MULTIPLIER", 1.0),
			LowMultiplier:    getEnvFloat("MEMENTO_ACTIVITY_LOW_MULTIPLIER", 0.1),
			CacheTTL:         getEnvDuration("MEMENTO_ACTIVITY_CACHE_TTL", 5*time.Minute),
		},
		Ingestion: IngestionConfig{
			Atomicity:        getEnv("MEMENTO_INGEST_ATOMICITY", "per_chunk"),
			ChunkTokenBudget: getEnvInt("MEMENTO_INGEST_CHUNK_TOKEN_BUDGET", 400),
			MaxFileSizeBytes: int64(getEnvInt("MEMENTO_INGEST_MAX_FILE_SIZE_BYTES", 2<<20)),
		},
		Backup: BackupConfig{
			Enabled:          getEnvBool("MEMENTO_BACKUP_ENABLED", false),
			Interval:         getEnv("MEMENTO_BACKUP_INTERVAL", "24h"),
			Path:             getEnv("MEMENTO_BACKUP_PATH", "./backups"),
			Verify:           getEnvBool("MEMENTO_BACKUP_VERIFY", true),
			RetentionHourly:  getEnvInt("MEMENTO_BACKUP_RETENTION_HOURLY", 24),
			RetentionDaily:   getEnvInt("MEMENTO_BACKUP_RETENTION_DAILY", 7),
			RetentionWeekly:  getEnvInt("MEMENTO_BACKUP_RETENTION_WEEKLY", 4),
			RetentionMonthly: getEnvInt("MEMENTO_BACKUP_RETENTION_MONTHLY", 12),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
