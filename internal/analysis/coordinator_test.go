package analysis

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataprof/internal/config"
	apperrors "dataprof/internal/errors"
	"dataprof/internal/multivariate"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MinSamples = 4
	cfg.MinChunkSize = 64
	cfg.Seed = 42
	return cfg
}

func numericColumns(names ...string) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: FieldNumeric}
	}
	return cols
}

func numericRows(data [][]float64) [][]interface{} {
	rows := make([][]interface{}, len(data))
	for i, r := range data {
		row := make([]interface{}, len(r))
		for j, v := range r {
			row[j] = v
		}
		rows[i] = row
	}
	return rows
}

func runAnalysis(t *testing.T, cfg config.Config, cols []Column, rows [][]interface{}) *Result {
	t.Helper()
	coord := NewCoordinator(cfg, nil)
	result, err := coord.Run(context.Background(), NewSliceSource(cols, rows))
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func hasWarningContaining(warnings []apperrors.Warning, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w.Message, substr) {
			return true
		}
	}
	return false
}

// Scenario A: three well-separated 2D clusters.
func TestRun_WellSeparatedClusters(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var data [][]float64
	for _, c := range [][]float64{{1, 1}, {5, 5}, {10, 1}} {
		for i := 0; i < 50; i++ {
			data = append(data, []float64{c[0] + rng.NormFloat64()*0.3, c[1] + rng.NormFloat64()*0.3})
		}
	}

	result := runAnalysis(t, testConfig(), numericColumns("x", "y"), numericRows(data))

	require.True(t, result.Clustering.IsApplicable)
	assert.Greater(t, result.Clustering.OptimalClusters.Elbow, 1)
	assert.LessOrEqual(t, result.Clustering.OptimalClusters.Elbow, 5)
	assert.Equal(t, 3, result.Clustering.OptimalClusters.Recommended)

	// Cluster sizes sum to the sampled row count.
	sum := 0
	for _, s := range result.Clustering.ClusterSizes {
		sum += s
	}
	assert.Equal(t, len(data), sum)

	v := result.Clustering.FinalClustering.Validation
	assert.GreaterOrEqual(t, v.SilhouetteScore, -1.0)
	assert.LessOrEqual(t, v.SilhouetteScore, 1.0)
}

// Scenario B: all rows identical.
func TestRun_IdenticalRows(t *testing.T) {
	data := [][]float64{{5, 5}, {5, 5}, {5, 5}, {5, 5}, {5, 5}, {5, 5}}

	result := runAnalysis(t, testConfig(), numericColumns("x", "y"), numericRows(data))

	require.True(t, result.Clustering.IsApplicable)
	assert.Equal(t, 1, result.Clustering.OptimalClusters.Recommended)
	assert.True(t,
		hasWarningContaining(result.Warnings, "identical") || hasWarningContaining(result.Warnings, "variance"),
		"expected a warning mentioning identical points or zero variance: %v", result.Warnings)

	assert.False(t, result.PCA.IsApplicable)
	assert.ElementsMatch(t, []string{"x", "y"}, result.ExcludedColumns)
}

// Scenario C: two rows total.
func TestRun_TwoRows(t *testing.T) {
	data := [][]float64{{1, 2}, {3, 4}}

	result := runAnalysis(t, testConfig(), numericColumns("x", "y"), numericRows(data))

	assert.False(t, result.PCA.IsApplicable)
	assert.True(t, hasWarningContaining(result.Warnings, "insufficient"),
		"expected an insufficiency warning: %v", result.Warnings)
}

// Scenario D: two linearly dependent columns.
func TestRun_LinearlyDependentColumns(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	var data [][]float64
	for i := 0; i < 200; i++ {
		x := rng.Float64() * 100
		data = append(data, []float64{x, 2*x + rng.NormFloat64()*0.5})
	}

	result := runAnalysis(t, testConfig(), numericColumns("col1", "col2"), numericRows(data))

	require.Len(t, result.CorrelationMatrix, 2)
	corr := result.CorrelationMatrix[0][1]
	assert.Greater(t, corr, 0.8, "near-perfect linear dependence must show high correlation")
	assert.InDelta(t, result.CorrelationMatrix[1][0], corr, 1e-12)
}

// Scenario E: single numeric column.
func TestRun_SingleNumericColumn(t *testing.T) {
	cols := []Column{
		{Name: "value", Type: FieldNumeric},
		{Name: "label", Type: FieldCategorical},
	}
	var rows [][]interface{}
	for i := 0; i < 50; i++ {
		rows = append(rows, []interface{}{float64(i), "a"})
	}

	result := runAnalysis(t, testConfig(), cols, rows)

	assert.False(t, result.PCA.IsApplicable)
	assert.Contains(t, result.PCA.Reason, "dimensionality")
	assert.False(t, result.Clustering.IsApplicable)
	assert.Contains(t, result.Clustering.Reason, "dimensionality")
}

func TestRun_CovarianceSymmetryAndDiagonal(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var data [][]float64
	for i := 0; i < 500; i++ {
		data = append(data, []float64{rng.NormFloat64() * 2, rng.Float64() * 10, rng.ExpFloat64()})
	}

	result := runAnalysis(t, testConfig(), numericColumns("a", "b", "c"), numericRows(data))

	cov := result.CovarianceMatrix
	require.Len(t, cov, 3)
	for i := range cov {
		for j := range cov {
			assert.InDelta(t, cov[j][i], cov[i][j], 1e-9)
		}
	}

	// Diagonal equals the column variances from the univariate pass.
	for i, p := range result.ColumnProfiles {
		assert.InDelta(t, p.Variance, cov[i][i], 1e-9)
	}

	// PCA cumulative variance is non-decreasing and bounded.
	require.True(t, result.PCA.IsApplicable)
	prev := 0.0
	for _, c := range result.PCA.CumulativeVarianceExplained {
		assert.GreaterOrEqual(t, c, prev)
		prev = c
	}
	assert.LessOrEqual(t, prev, 1.0+1e-9)

	for _, r := range result.Outliers.Records {
		assert.GreaterOrEqual(t, r.MahalanobisDistance, 0.0)
	}
}

// Chunking invariance: one big chunk and many small chunks agree.
func TestRun_ChunkingInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	var data [][]float64
	for i := 0; i < 1000; i++ {
		data = append(data, []float64{rng.NormFloat64() * 3, rng.Float64() * 7})
	}

	one := testConfig()
	one.MinChunkSize = 5000 // whole stream in a single chunk
	many := testConfig()
	many.MinChunkSize = 7
	many.MaxChunkSize = 17 // force many uneven chunks

	a := runAnalysis(t, one, numericColumns("x", "y"), numericRows(data))
	b := runAnalysis(t, many, numericColumns("x", "y"), numericRows(data))

	require.Len(t, a.ColumnProfiles, 2)
	for i := range a.ColumnProfiles {
		assert.InDelta(t, a.ColumnProfiles[i].Mean, b.ColumnProfiles[i].Mean, 1e-9)
		assert.InDelta(t, a.ColumnProfiles[i].Variance, b.ColumnProfiles[i].Variance, 1e-9)
	}
	for i := range a.CovarianceMatrix {
		for j := range a.CovarianceMatrix {
			assert.InDelta(t, a.CovarianceMatrix[i][j], b.CovarianceMatrix[i][j], 1e-9)
		}
	}
	assert.Greater(t, b.Performance.ChunksProcessed, a.Performance.ChunksProcessed)
}

func TestRun_MissingValues(t *testing.T) {
	cols := numericColumns("x", "y")
	rows := [][]interface{}{
		{1.0, 10.0},
		{2.0, nil}, // y missing: counted for x only, excluded from covariance
		{3.0, 30.0},
		{4.0, 40.0},
		{5.0, 50.0},
	}

	result := runAnalysis(t, testConfig(), cols, rows)

	assert.Equal(t, int64(5), result.ColumnProfiles[0].Count)
	assert.Equal(t, int64(4), result.ColumnProfiles[1].Count)
	assert.Equal(t, int64(5), result.Performance.RowsAnalyzed)
}

func TestRun_InvalidConfigSanitized(t *testing.T) {
	cfg := testConfig()
	cfg.MaxClusters = -5

	result := runAnalysis(t, cfg, numericColumns("x", "y"), numericRows([][]float64{{1, 2}, {2, 3}, {3, 4}, {4, 5}}))

	found := false
	for _, w := range result.Warnings {
		if w.Kind == apperrors.WarnConfigurationIssue {
			found = true
		}
	}
	assert.True(t, found, "sanitized config must be surfaced as a warning")
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	rng := rand.New(rand.NewSource(5))
	var data [][]float64
	for i := 0; i < 10000; i++ {
		data = append(data, []float64{rng.NormFloat64(), rng.NormFloat64()})
	}

	src := &cancellingSource{
		inner:       NewSliceSource(numericColumns("x", "y"), numericRows(data)),
		cancel:      cancel,
		cancelAfter: 3,
	}

	coord := NewCoordinator(testConfig(), nil)
	result, err := coord.Run(ctx, src)

	require.NoError(t, err, "cancellation returns partial results, not an error")
	require.NotNil(t, result)
	assert.Greater(t, result.Performance.RowsAnalyzed, int64(0))
	assert.Less(t, result.Performance.RowsAnalyzed, int64(10000))

	found := false
	for _, w := range result.Warnings {
		if w.Kind == apperrors.WarnCancelled {
			found = true
		}
	}
	assert.True(t, found, "expected a cancelled warning: %v", result.Warnings)
}

// cancellingSource cancels the run context after a number of batches.
type cancellingSource struct {
	inner       *SliceSource
	cancel      context.CancelFunc
	cancelAfter int
	calls       int
}

func (s *cancellingSource) Columns() []Column { return s.inner.Columns() }

func (s *cancellingSource) Next(ctx context.Context, max int) ([][]interface{}, error) {
	s.calls++
	if s.calls > s.cancelAfter {
		s.cancel()
	}
	return s.inner.Next(ctx, max)
}

func TestRun_MemoryPressureAborts(t *testing.T) {
	cfg := testConfig()
	cfg.MemoryThresholdMB = 0.001 // below any real heap
	cfg.MinChunkSize = 64
	cfg.MaxChunkSize = 64

	rng := rand.New(rand.NewSource(6))
	var data [][]float64
	for i := 0; i < 1000; i++ {
		data = append(data, []float64{rng.NormFloat64(), rng.NormFloat64()})
	}

	coord := NewCoordinator(cfg, nil)
	result, err := coord.Run(context.Background(), NewSliceSource(numericColumns("x", "y"), numericRows(data)))

	require.Error(t, err)
	var memErr *apperrors.MemoryPressureError
	require.ErrorAs(t, err, &memErr)
	require.NotNil(t, result, "partial result accompanies the error")
	assert.Same(t, result, memErr.PartialResult)
}

func TestRun_StabilityAnalysisToggle(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	var data [][]float64
	for _, c := range [][]float64{{1, 1}, {8, 8}} {
		for i := 0; i < 40; i++ {
			data = append(data, []float64{c[0] + rng.NormFloat64()*0.3, c[1] + rng.NormFloat64()*0.3})
		}
	}
	cols := numericColumns("x", "y")
	rows := numericRows(data)

	off := runAnalysis(t, testConfig(), cols, rows)
	require.True(t, off.Clustering.IsApplicable)
	assert.Nil(t, off.Clustering.FinalClustering.Stability)

	cfg := testConfig()
	cfg.EnableStabilityAnalysis = true
	on := runAnalysis(t, cfg, cols, rows)
	require.True(t, on.Clustering.IsApplicable)
	require.NotNil(t, on.Clustering.FinalClustering.Stability)
	assert.Equal(t, cfg.KMeansRestarts, on.Clustering.FinalClustering.Stability.Restarts)
}

func TestRun_ExhaustedStreamIgnoresCeiling(t *testing.T) {
	// The whole stream arrives in one batch together with EOF; with every
	// row already accumulated, memory pressure must not abort the run.
	cfg := testConfig()
	cfg.MemoryThresholdMB = 0.001 // below any real heap
	cfg.MinChunkSize = 4096
	cfg.MaxChunkSize = 4096

	rng := rand.New(rand.NewSource(7))
	var data [][]float64
	for i := 0; i < 100; i++ {
		data = append(data, []float64{rng.NormFloat64(), rng.NormFloat64()})
	}

	coord := NewCoordinator(cfg, nil)
	result, err := coord.Run(context.Background(), NewSliceSource(numericColumns("x", "y"), numericRows(data)))

	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Performance.RowsAnalyzed)
}

func TestRun_ProgressObserver(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	var data [][]float64
	for i := 0; i < 2000; i++ {
		data = append(data, []float64{rng.NormFloat64(), rng.Float64()})
	}

	obs := &recordingObserver{}
	coord := NewCoordinator(testConfig(), nil)
	coord.SetObserver(obs)

	_, err := coord.Run(context.Background(), NewSliceSource(numericColumns("x", "y"), numericRows(data)))
	require.NoError(t, err)

	require.NotEmpty(t, obs.events)
	prev := int64(0)
	phases := map[string]bool{}
	for _, p := range obs.events {
		assert.GreaterOrEqual(t, p.RowsProcessed, prev, "rows processed must be monotonic")
		prev = p.RowsProcessed
		phases[p.Phase] = true
	}
	assert.True(t, phases[PhaseDone], "terminal phase must be notified")
}

type recordingObserver struct {
	events []Progress
}

func (o *recordingObserver) OnProgress(p Progress) {
	o.events = append(o.events, p)
}

func TestRun_ResultIsJSONEncodable(t *testing.T) {
	// Zero-variance columns produce NaN correlations internally; the result
	// must still marshal.
	data := [][]float64{{5, 1}, {5, 2}, {5, 3}, {5, 4}, {5, 5}, {5, 6}}

	result := runAnalysis(t, testConfig(), numericColumns("const", "x"), numericRows(data))

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Contains(t, result.ExcludedColumns, "const")
}

func TestRun_OutlierRowIndexMapsToStream(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	var data [][]float64
	for i := 0; i < 300; i++ {
		data = append(data, []float64{rng.NormFloat64(), rng.NormFloat64()})
	}
	data = append(data, []float64{50, -50}) // stream index 300

	result := runAnalysis(t, testConfig(), numericColumns("x", "y"), numericRows(data))
	require.True(t, result.Outliers.IsApplicable)

	found := false
	for _, r := range result.Outliers.Records {
		if r.RowIndex == 300 {
			found = true
			assert.Equal(t, multivariate.SeverityExtreme, r.Severity)
		}
	}
	assert.True(t, found, "injected outlier must be reported with its stream row index")
}

func TestSliceSource(t *testing.T) {
	src := NewSliceSource(numericColumns("x"), numericRows([][]float64{{1}, {2}, {3}}))

	batch, err := src.Next(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	batch, err = src.Next(context.Background(), 2)
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, batch, 1)
}
