package analysis

import (
	"time"

	"dataprof/internal/errors"
	"dataprof/internal/multivariate"
	"dataprof/internal/stats"
)

// PerformanceMetrics summarizes the resource usage of one analysis run.
type PerformanceMetrics struct {
	RowsAnalyzed    int64         `json:"rows_analyzed"`
	ChunksProcessed int64         `json:"chunks_processed"`
	PeakMemoryMB    float64       `json:"peak_memory_mb"`
	Elapsed         time.Duration `json:"elapsed_ns"`
}

// Result is the immutable outcome of one analysis session, consumed by the
// downstream reporting collaborators. It is always produced, even on
// cancellation; only an unmitigable memory ceiling aborts with an error (and
// even then the error carries the partial result).
type Result struct {
	SessionID string `json:"session_id"`

	ColumnProfiles []stats.ColumnProfile `json:"column_profiles"`

	// NumericColumns are the columns behind the covariance/correlation
	// matrices, in matrix order. ExcludedColumns lists numeric columns left
	// out of the multivariate stages (zero variance).
	NumericColumns  []string `json:"numeric_columns,omitempty"`
	ExcludedColumns []string `json:"excluded_columns,omitempty"`

	CovarianceMatrix  [][]float64 `json:"covariance_matrix,omitempty"`
	CorrelationMatrix [][]float64 `json:"correlation_matrix,omitempty"`

	PCA        multivariate.PCAResult        `json:"pca"`
	Clustering multivariate.ClusteringResult `json:"clustering"`
	Outliers   multivariate.OutlierResult    `json:"outliers"`

	Warnings    []errors.Warning   `json:"warnings,omitempty"`
	Performance PerformanceMetrics `json:"performance_metrics"`
}
