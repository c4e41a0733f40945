package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"dataprof/internal/config"
	apperrors "dataprof/internal/errors"
	"dataprof/internal/memory"
	"dataprof/internal/multivariate"
	"dataprof/internal/stats"
)

// Coordinator pulls chunks from a row source and drives every accumulator,
// then runs the post-stream stages and assembles the immutable result.
// A Coordinator is reusable across runs; each run owns its own session state.
type Coordinator struct {
	cfg      config.Config
	logger   *slog.Logger
	tracer   *Tracer
	observer Observer
}

// NewCoordinator creates a coordinator with the given configuration.
func NewCoordinator(cfg config.Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{cfg: cfg, logger: logger}
}

// SetObserver registers a progress observer for subsequent runs.
func (c *Coordinator) SetObserver(o Observer) {
	c.observer = o
}

// SetTracer registers OTel instrumentation for subsequent runs.
func (c *Coordinator) SetTracer(t *Tracer) {
	c.tracer = t
}

// Run streams the source to exhaustion and returns the analysis result.
//
// The result is always non-nil. Cancellation finalizes partially accumulated
// state and returns it with a cancelled warning and a nil error. Only an
// unmitigable memory ceiling returns a non-nil *errors.MemoryPressureError,
// and even that carries the partial result.
func (c *Coordinator) Run(ctx context.Context, source RowSource) (*Result, error) {
	start := time.Now()

	cfg, replaced := config.Sanitize(c.cfg)
	sess := newSession(cfg, source.Columns())
	for _, field := range replaced {
		sess.warn(apperrors.NewConfigurationWarning(field,
			fmt.Sprintf("invalid value for %s replaced by default", field)))
	}

	governor := memory.NewGovernor(
		cfg.MemoryThresholdMB, cfg.TargetMemoryUtilization,
		cfg.ExpansionFactor, cfg.ReductionFactor,
		cfg.MinChunkSize, cfg.MaxChunkSize,
	)
	notifier := newProgressNotifier(c.observer)

	ctx, span := c.tracer.StartSession(ctx, sess.id, len(sess.columns))
	var runErr error
	defer func() { EndWithError(span, runErr) }()

	c.logger.InfoContext(ctx, "starting analysis session",
		"session_id", sess.id,
		"columns", len(sess.columns),
		"numeric_columns", len(sess.numericIdx),
		"min_chunk", cfg.MinChunkSize,
		"max_chunk", cfg.MaxChunkSize,
	)

	cancelled, fatal := c.stream(ctx, source, sess, governor, notifier, cfg)
	if cancelled {
		sess.warn(apperrors.NewCancelledWarning(sess.rowsProcessed))
	}

	result := c.finalize(ctx, sess, cfg, notifier)
	result.Performance = PerformanceMetrics{
		RowsAnalyzed:    sess.rowsProcessed,
		ChunksProcessed: sess.chunksProcessed,
		PeakMemoryMB:    governor.PeakHeapMB(),
		Elapsed:         time.Since(start),
	}

	if fatal != nil {
		var memErr *apperrors.MemoryPressureError
		if errors.As(fatal, &memErr) {
			memErr.PartialResult = result
		}
		runErr = fatal
		c.logger.ErrorContext(ctx, "analysis aborted",
			"session_id", sess.id,
			"rows_processed", sess.rowsProcessed,
			"error", fatal,
		)
		return result, fatal
	}

	notifier.stage(Progress{Phase: PhaseDone, RowsProcessed: sess.rowsProcessed})
	c.logger.InfoContext(ctx, "analysis session complete",
		"session_id", sess.id,
		"rows", sess.rowsProcessed,
		"chunks", sess.chunksProcessed,
		"warnings", len(sess.warnings),
		"elapsed", time.Since(start),
	)
	return result, nil
}

// stream runs the chunked accumulation loop. It reports whether the run was
// cancelled, and a fatal error when the memory ceiling could not be mitigated
// or the source failed.
func (c *Coordinator) stream(ctx context.Context, source RowSource, sess *session,
	governor *memory.Governor, notifier *progressNotifier, cfg config.Config) (bool, error) {

	chunkSize := cfg.MinChunkSize
	for {
		// Cancellation is checked once per chunk boundary; all per-chunk work
		// below runs synchronously to completion so accumulator updates stay
		// strictly ordered.
		select {
		case <-ctx.Done():
			return true, nil
		default:
		}

		batch, err := source.Next(ctx, chunkSize)
		for _, row := range batch {
			sess.consumeRow(row)
		}
		if len(batch) > 0 {
			sess.chunksProcessed++
			c.tracer.RecordChunk(ctx, len(batch))
		}

		sample := governor.SampleNow()
		notifier.chunk(Progress{
			Phase:         PhaseStreaming,
			RowsProcessed: sess.rowsProcessed,
			ChunkSize:     chunkSize,
			MemoryUsedMB:  sample.HeapUsedMB,
		})

		// Resolve the stream outcome before the ceiling check: a final batch
		// arriving together with EOF is already fully accumulated, so an
		// exhausted stream must not abort on memory pressure.
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return false, nil
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return true, nil
		default:
			return false, apperrors.NewDataError("row source failed", err)
		}

		if governor.OverCeiling(sample) {
			if chunkSize <= governor.MinChunkSize() {
				return false, &apperrors.MemoryPressureError{
					HeapUsedMB: sample.HeapUsedMB,
					CeilingMB:  governor.ThresholdMB(),
					ChunkSize:  chunkSize,
				}
			}
			sess.warn(apperrors.NewMemoryPressureWarning(
				fmt.Sprintf("heap %.1fMB over ceiling %.1fMB; reducing chunk size", sample.HeapUsedMB, governor.ThresholdMB()),
				sample.HeapUsedMB))
		}
		chunkSize = governor.NextChunkSize(chunkSize, sample)
	}
}

// finalize freezes the session and runs the post-stream stages. The ctx is
// re-checked between stages; stages skipped by cancellation keep their
// pending status.
func (c *Coordinator) finalize(ctx context.Context, sess *session, cfg config.Config, notifier *progressNotifier) *Result {
	sess.finalized = true
	notifier.stage(Progress{Phase: PhaseFinalizing, RowsProcessed: sess.rowsProcessed})

	result := &Result{
		SessionID:      sess.id,
		ColumnProfiles: sess.freezeProfiles(),
		NumericColumns: sess.cov.Names(),
		PCA:            multivariate.PCAResult{Status: multivariate.StagePending},
		Clustering:     multivariate.ClusteringResult{Status: multivariate.StagePending},
		Outliers:       multivariate.OutlierResult{Status: multivariate.StagePending},
	}

	cov := sess.cov.Covariance()
	if cov == nil {
		if len(sess.numericIdx) > 0 {
			sess.warn(apperrors.NewDataInsufficiencyWarning("covariance",
				fmt.Sprintf("insufficient rows for covariance: %d complete numeric rows", sess.cov.Count())))
		}
		c.skipStages(result, "insufficient data for multivariate stages")
		result.Warnings = sess.warnings
		return result
	}
	result.CovarianceMatrix = cov
	result.CorrelationMatrix = sanitizeCorrelation(stats.Correlation(cov))

	// Zero-variance columns are excluded from PCA, clustering and outliers.
	zero := stats.ZeroVarianceColumns(cov)
	keep := make([]int, 0, len(cov)-len(zero))
	zeroSet := make(map[int]bool, len(zero))
	for _, i := range zero {
		zeroSet[i] = true
	}
	names := sess.cov.Names()
	for i := range cov {
		if zeroSet[i] {
			result.ExcludedColumns = append(result.ExcludedColumns, names[i])
			continue
		}
		keep = append(keep, i)
	}
	if len(zero) > 0 {
		sess.warn(apperrors.NewDataInsufficiencyWarning("covariance",
			fmt.Sprintf("excluded %d zero variance column(s) from multivariate stages: %v", len(zero), result.ExcludedColumns)))
	}

	rowCount := sess.cov.Count()
	kept := stats.Submatrix(cov, keep)

	// PCA over the frozen covariance of the kept columns.
	if cancelledBetweenStages(ctx, sess) {
		result.Warnings = sess.warnings
		return result
	}
	notifier.stage(Progress{Phase: PhasePCA, RowsProcessed: sess.rowsProcessed})
	_, pcaSpan := c.tracer.StartStage(ctx, sess.id, PhasePCA)
	result.PCA = multivariate.ComputePCA(kept, rowCount, cfg.MinSamplesPerDimension)
	EndWithError(pcaSpan, nil)
	if !result.PCA.IsApplicable {
		sess.warn(apperrors.NewDataInsufficiencyWarning(PhasePCA, result.PCA.Reason))
	}

	// Clustering over the bounded multivariate sample. When every numeric
	// column was excluded for zero variance but rows exist, the full sample
	// is passed through so the identical-points rule can apply.
	if cancelledBetweenStages(ctx, sess) {
		result.Warnings = sess.warnings
		return result
	}
	if cfg.EnableClusterProfiling {
		notifier.stage(Progress{Phase: PhaseClustering, RowsProcessed: sess.rowsProcessed})
		_, clusterSpan := c.tracer.StartStage(ctx, sess.id, PhaseClustering)
		points := sess.sample.project(keep)
		if len(keep) == 0 && len(sess.numericIdx) >= 2 {
			points = sess.sample.project(allIndices(len(cov)))
		}
		result.Clustering = multivariate.Cluster(ctx, points, multivariate.ClusteringConfig{
			MaxClusters:           cfg.MaxClusters,
			Restarts:              cfg.KMeansRestarts,
			MaxIterations:         cfg.KMeansMaxIterations,
			SilhouetteSampleLimit: cfg.SilhouetteSampleLimit,
			MinSamples:            cfg.MinSamples,
			Seed:                  cfg.Seed,
			StabilityAnalysis:     cfg.EnableStabilityAnalysis,
		})
		EndWithError(clusterSpan, nil)
		if result.Clustering.Reason != "" {
			sess.warn(apperrors.NewDataInsufficiencyWarning(PhaseClustering, result.Clustering.Reason))
		}
	} else {
		result.Clustering = multivariate.ClusteringResult{
			Status:       multivariate.StageNotApplicable,
			IsApplicable: false,
			Reason:       "cluster profiling disabled by configuration",
		}
	}

	// Outlier detection against the accumulated mean and covariance.
	if cancelledBetweenStages(ctx, sess) {
		result.Warnings = sess.warnings
		return result
	}
	notifier.stage(Progress{Phase: PhaseOutliers, RowsProcessed: sess.rowsProcessed})
	_, outlierSpan := c.tracer.StartStage(ctx, sess.id, PhaseOutliers)
	meanAll := sess.cov.Means()
	mean := make([]float64, len(keep))
	for a, i := range keep {
		mean[a] = meanAll[i]
	}
	result.Outliers = multivariate.DetectOutliers(sess.sample.project(keep), mean, kept, multivariate.ConfidenceCutoffs{
		Moderate: cfg.OutlierConfidenceLevels.Moderate,
		Severe:   cfg.OutlierConfidenceLevels.Severe,
		Extreme:  cfg.OutlierConfidenceLevels.Extreme,
	})
	EndWithError(outlierSpan, nil)
	switch {
	case !result.Outliers.IsApplicable:
		sess.warn(apperrors.NewDataInsufficiencyWarning(PhaseOutliers, result.Outliers.Reason))
	case result.Outliers.Regularized:
		sess.warn(apperrors.NewNumericalInstabilityWarning(PhaseOutliers,
			"covariance matrix near-singular; applied diagonal regularization before inversion"))
	}
	// Map sample-local row indices back to original stream indices.
	for i := range result.Outliers.Records {
		result.Outliers.Records[i].RowIndex = int(sess.sample.indices[result.Outliers.Records[i].RowIndex])
	}

	result.Warnings = sess.warnings
	return result
}

// skipStages marks every post-stream stage not applicable with one reason.
func (c *Coordinator) skipStages(result *Result, reason string) {
	result.PCA = multivariate.PCAResult{
		Status: multivariate.StageNotApplicable, IsApplicable: false, Reason: reason,
	}
	result.Clustering = multivariate.ClusteringResult{
		Status: multivariate.StageNotApplicable, IsApplicable: false, Reason: reason,
	}
	result.Outliers = multivariate.OutlierResult{
		Status: multivariate.StageNotApplicable, IsApplicable: false, Reason: reason,
	}
}

// cancelledBetweenStages performs the between-stage cancellation check,
// recording the warning once.
func cancelledBetweenStages(ctx context.Context, sess *session) bool {
	if ctx.Err() == nil {
		return false
	}
	for _, w := range sess.warnings {
		if w.Kind == apperrors.WarnCancelled {
			return true
		}
	}
	sess.warn(apperrors.NewCancelledWarning(sess.rowsProcessed))
	return true
}

// sanitizeCorrelation replaces the NaN entries produced by zero-variance
// columns with 0 so the matrix stays JSON-encodable.
func sanitizeCorrelation(corr [][]float64) [][]float64 {
	for i := range corr {
		for j := range corr[i] {
			if math.IsNaN(corr[i][j]) {
				corr[i][j] = 0
			}
		}
	}
	return corr
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
