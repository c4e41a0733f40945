package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete configuration for one analysis session. It is passed
// explicitly into constructors; there is no process-wide configuration state.
type Config struct {
	// MaxClusters bounds the candidate-k search for clustering.
	MaxClusters int `yaml:"max_clusters" envconfig:"MAX_CLUSTERS" default:"8" validate:"gt=0"`

	// MinSamples is the minimum row count required before multivariate stages
	// (PCA, clustering, outliers) are considered applicable.
	MinSamples int `yaml:"min_samples" envconfig:"MIN_SAMPLES" default:"10" validate:"gte=0"`

	// MinSamplesPerDimension guards PCA against overfit components: PCA is not
	// applicable unless rowCount >= MinSamplesPerDimension * numericColumns.
	MinSamplesPerDimension int `yaml:"min_samples_per_dimension" envconfig:"MIN_SAMPLES_PER_DIMENSION" default:"3" validate:"gt=0"`

	// EnableClusterProfiling toggles the clustering stage.
	EnableClusterProfiling bool `yaml:"enable_cluster_profiling" envconfig:"ENABLE_CLUSTER_PROFILING" default:"true"`

	// EnableStabilityAnalysis toggles k-means restart-stability reporting.
	EnableStabilityAnalysis bool `yaml:"enable_stability_analysis" envconfig:"ENABLE_STABILITY_ANALYSIS" default:"false"`

	// MemoryThresholdMB is the hard heap ceiling; exceeding it at minimum chunk
	// size aborts the run with a MemoryPressureError.
	MemoryThresholdMB float64 `yaml:"memory_threshold_mb" envconfig:"MEMORY_THRESHOLD_MB" default:"1024" validate:"gt=0"`

	// TargetMemoryUtilization is the fraction of MemoryThresholdMB the adaptive
	// chunk sizer steers toward.
	TargetMemoryUtilization float64 `yaml:"target_memory_utilization" envconfig:"TARGET_MEMORY_UTILIZATION" default:"0.7" validate:"gt=0,lt=1"`

	// MinChunkSize and MaxChunkSize clamp the adaptive chunk size (rows).
	MinChunkSize int `yaml:"min_chunk_size" envconfig:"MIN_CHUNK_SIZE" default:"100" validate:"gt=0"`
	MaxChunkSize int `yaml:"max_chunk_size" envconfig:"MAX_CHUNK_SIZE" default:"50000" validate:"gt=0,gtefield=MinChunkSize"`

	// ExpansionFactor (>1) grows the chunk size when memory is comfortable;
	// ReductionFactor (<1) shrinks it under pressure.
	ExpansionFactor float64 `yaml:"expansion_factor" envconfig:"EXPANSION_FACTOR" default:"1.5" validate:"gt=1"`
	ReductionFactor float64 `yaml:"reduction_factor" envconfig:"REDUCTION_FACTOR" default:"0.5" validate:"gt=0,lt=1"`

	// MaxCollectedRowsMultivariate bounds the row sample materialized for
	// clustering and outlier detection after the stream ends.
	MaxCollectedRowsMultivariate int `yaml:"max_collected_rows_multivariate" envconfig:"MAX_COLLECTED_ROWS_MULTIVARIATE" default:"10000" validate:"gt=0"`

	// SilhouetteSampleLimit caps the points used for silhouette computation,
	// which is quadratic in sample size.
	SilhouetteSampleLimit int `yaml:"silhouette_sample_limit" envconfig:"SILHOUETTE_SAMPLE_LIMIT" default:"2000" validate:"gt=0"`

	// KMeansRestarts is the number of k-means++ restarts per candidate k.
	KMeansRestarts int `yaml:"kmeans_restarts" envconfig:"KMEANS_RESTARTS" default:"5" validate:"gt=0"`

	// KMeansMaxIterations bounds Lloyd iterations within one k-means run.
	KMeansMaxIterations int `yaml:"kmeans_max_iterations" envconfig:"KMEANS_MAX_ITERATIONS" default:"100" validate:"gt=0"`

	// QuantileReservoirSize is the per-column reservoir used for approximate
	// quantile estimation.
	QuantileReservoirSize int `yaml:"quantile_reservoir_size" envconfig:"QUANTILE_RESERVOIR_SIZE" default:"1024" validate:"gt=0"`

	// MaxDistinctCategorical caps the distinct-value tracking per categorical
	// column so categorical profiling stays bounded.
	MaxDistinctCategorical int `yaml:"max_distinct_categorical" envconfig:"MAX_DISTINCT_CATEGORICAL" default:"256" validate:"gt=0"`

	// OutlierConfidenceLevels are the chi-square confidence levels that define
	// severity buckets. Heuristic constants, deliberately overridable.
	OutlierConfidenceLevels OutlierConfidenceLevels `yaml:"outlier_confidence_levels" envconfig:"OUTLIER_CONFIDENCE"`

	// Seed makes sampling and k-means seeding reproducible when set non-zero.
	Seed int64 `yaml:"seed" envconfig:"SEED" default:"0"`
}

// OutlierConfidenceLevels holds the confidence cutoffs for outlier severity
// buckets: distances beyond the Extreme cutoff are extreme, beyond Severe are
// severe, beyond Moderate are moderate.
type OutlierConfidenceLevels struct {
	Moderate float64 `yaml:"moderate" envconfig:"MODERATE" default:"0.95" validate:"gt=0,lt=1"`
	Severe   float64 `yaml:"severe" envconfig:"SEVERE" default:"0.99" validate:"gt=0,lt=1"`
	Extreme  float64 `yaml:"extreme" envconfig:"EXTREME" default:"0.999" validate:"gt=0,lt=1"`
}

// Default returns the configuration with every field at its default value.
func Default() Config {
	return Config{
		MaxClusters:                  8,
		MinSamples:                   10,
		MinSamplesPerDimension:       3,
		EnableClusterProfiling:       true,
		EnableStabilityAnalysis:      false,
		MemoryThresholdMB:            1024,
		TargetMemoryUtilization:      0.7,
		MinChunkSize:                 100,
		MaxChunkSize:                 50000,
		ExpansionFactor:              1.5,
		ReductionFactor:              0.5,
		MaxCollectedRowsMultivariate: 10000,
		SilhouetteSampleLimit:        2000,
		KMeansRestarts:               5,
		KMeansMaxIterations:          100,
		QuantileReservoirSize:        1024,
		MaxDistinctCategorical:       256,
		OutlierConfidenceLevels: OutlierConfidenceLevels{
			Moderate: 0.95,
			Severe:   0.99,
			Extreme:  0.999,
		},
	}
}

// ValidationResult reports the outcome of config validation. Invalid configs
// are rejected with field-level messages rather than a panic or thrown error.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateConfig checks every field against its constraints. It is pure: no
// logging, no mutation, never panics on ordinary input.
func ValidateConfig(cfg Config) ValidationResult {
	err := validate.Struct(cfg)
	if err == nil {
		return ValidationResult{Valid: true}
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q constraint (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return ValidationResult{Valid: false, Errors: msgs}
}

// Sanitize returns a copy of cfg with every invalid field replaced by its
// default, along with the names of the fields that were replaced. Callers that
// prefer degraded operation over rejection use this and surface the returned
// fields as configuration warnings.
func Sanitize(cfg Config) (Config, []string) {
	var replaced []string
	def := Default()

	if cfg.MaxClusters <= 0 {
		cfg.MaxClusters = def.MaxClusters
		replaced = append(replaced, "MaxClusters")
	}
	if cfg.MinSamples < 0 {
		cfg.MinSamples = def.MinSamples
		replaced = append(replaced, "MinSamples")
	}
	if cfg.MinSamplesPerDimension <= 0 {
		cfg.MinSamplesPerDimension = def.MinSamplesPerDimension
		replaced = append(replaced, "MinSamplesPerDimension")
	}
	if cfg.MemoryThresholdMB <= 0 {
		cfg.MemoryThresholdMB = def.MemoryThresholdMB
		replaced = append(replaced, "MemoryThresholdMB")
	}
	if cfg.TargetMemoryUtilization <= 0 || cfg.TargetMemoryUtilization >= 1 {
		cfg.TargetMemoryUtilization = def.TargetMemoryUtilization
		replaced = append(replaced, "TargetMemoryUtilization")
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = def.MinChunkSize
		replaced = append(replaced, "MinChunkSize")
	}
	if cfg.MaxChunkSize <= 0 || cfg.MaxChunkSize < cfg.MinChunkSize {
		cfg.MaxChunkSize = def.MaxChunkSize
		if cfg.MaxChunkSize < cfg.MinChunkSize {
			cfg.MaxChunkSize = cfg.MinChunkSize
		}
		replaced = append(replaced, "MaxChunkSize")
	}
	if cfg.ExpansionFactor <= 1 {
		cfg.ExpansionFactor = def.ExpansionFactor
		replaced = append(replaced, "ExpansionFactor")
	}
	if cfg.ReductionFactor <= 0 || cfg.ReductionFactor >= 1 {
		cfg.ReductionFactor = def.ReductionFactor
		replaced = append(replaced, "ReductionFactor")
	}
	if cfg.MaxCollectedRowsMultivariate <= 0 {
		cfg.MaxCollectedRowsMultivariate = def.MaxCollectedRowsMultivariate
		replaced = append(replaced, "MaxCollectedRowsMultivariate")
	}
	if cfg.SilhouetteSampleLimit <= 0 {
		cfg.SilhouetteSampleLimit = def.SilhouetteSampleLimit
		replaced = append(replaced, "SilhouetteSampleLimit")
	}
	if cfg.KMeansRestarts <= 0 {
		cfg.KMeansRestarts = def.KMeansRestarts
		replaced = append(replaced, "KMeansRestarts")
	}
	if cfg.KMeansMaxIterations <= 0 {
		cfg.KMeansMaxIterations = def.KMeansMaxIterations
		replaced = append(replaced, "KMeansMaxIterations")
	}
	if cfg.QuantileReservoirSize <= 0 {
		cfg.QuantileReservoirSize = def.QuantileReservoirSize
		replaced = append(replaced, "QuantileReservoirSize")
	}
	if cfg.MaxDistinctCategorical <= 0 {
		cfg.MaxDistinctCategorical = def.MaxDistinctCategorical
		replaced = append(replaced, "MaxDistinctCategorical")
	}
	lv := cfg.OutlierConfidenceLevels
	if lv.Moderate <= 0 || lv.Moderate >= 1 || lv.Severe <= lv.Moderate || lv.Severe >= 1 || lv.Extreme <= lv.Severe || lv.Extreme >= 1 {
		cfg.OutlierConfidenceLevels = def.OutlierConfidenceLevels
		replaced = append(replaced, "OutlierConfidenceLevels")
	}
	return cfg, replaced
}

// Load builds a Config from defaults, then environment variables with the
// DATAPROF prefix, then an optional yaml file. File values override env
// field-wise: env values for fields the file does not set survive. A named
// config file that cannot be read is an error, not a silent skip.
func Load(configFile string) (Config, error) {
	cfg := Default()

	if err := envconfig.Process("DATAPROF", &cfg); err != nil {
		return cfg, fmt.Errorf("load config from env: %w", err)
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if result := ValidateConfig(cfg); !result.Valid {
		return cfg, fmt.Errorf("config validation failed: %v", result.Errors)
	}
	return cfg, nil
}
