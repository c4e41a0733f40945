package analysis

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"dataprof/internal/config"
	"dataprof/internal/errors"
	"dataprof/internal/stats"
)

// profileQuantiles are the quantiles estimated for every numeric column.
var profileQuantiles = []float64{0.01, 0.05, 0.25, 0.5, 0.75, 0.95, 0.99}

// session owns all mutable accumulator state for one analysis invocation.
// It is created when the stream starts, mutated only by the coordinator, and
// frozen exactly once when the stream ends. No state is shared across
// sessions.
type session struct {
	id  string
	cfg config.Config

	columns    []Column
	numericIdx []int // positions in columns that feed the covariance engine

	accums   map[int]*stats.ColumnAccumulator // keyed by column position
	counters map[int]*stats.CategoricalCounter
	cov      *stats.CovarianceAccumulator

	sample *rowReservoir

	warnings        []errors.Warning
	rowsProcessed   int64
	chunksProcessed int64
	finalized       bool
}

func newSession(cfg config.Config, columns []Column) *session {
	s := &session{
		id:       uuid.NewString(),
		cfg:      cfg,
		columns:  columns,
		accums:   make(map[int]*stats.ColumnAccumulator),
		counters: make(map[int]*stats.CategoricalCounter),
	}

	var numericNames []string
	for i, col := range columns {
		switch col.Type {
		case FieldNumeric:
			s.numericIdx = append(s.numericIdx, i)
			numericNames = append(numericNames, col.Name)
			s.accums[i] = stats.NewColumnAccumulator(col.Name, cfg.QuantileReservoirSize, cfg.Seed)
		case FieldCategorical, FieldBoolean:
			s.counters[i] = stats.NewCategoricalCounter(col.Name, cfg.MaxDistinctCategorical)
		}
	}

	s.cov = stats.NewCovarianceAccumulator(numericNames)
	s.sample = newRowReservoir(cfg.MaxCollectedRowsMultivariate, cfg.Seed)
	return s
}

func (s *session) warn(w errors.Warning) {
	s.warnings = append(s.warnings, w)
}

// consumeRow feeds one row into every accumulator. Univariate accumulators
// see every present value; the covariance engine and the multivariate sample
// only see rows with all numeric fields present, so the matrix stays
// consistent with a single row population.
func (s *session) consumeRow(row []interface{}) {
	if s.finalized {
		// Mutation after finalization is a programming error upstream;
		// dropping the row keeps the frozen result immutable.
		return
	}
	s.rowsProcessed++

	numeric := make([]float64, 0, len(s.numericIdx))
	complete := true
	for _, i := range s.numericIdx {
		var value interface{}
		if i < len(row) {
			value = row[i]
		}
		v, ok := asFloat(value)
		if !ok {
			complete = false
			continue
		}
		s.accums[i].Add(v)
		numeric = append(numeric, v)
	}

	if complete && len(numeric) == len(s.numericIdx) && len(numeric) > 0 {
		s.cov.Add(numeric)
		s.sample.offer(s.rowsProcessed-1, numeric)
	}

	for i, counter := range s.counters {
		if i >= len(row) || row[i] == nil {
			continue
		}
		counter.Add(fmt.Sprintf("%v", row[i]))
	}
}

// asFloat extracts a numeric value from a typed field. Booleans and ints are
// accepted for robustness against loose upstream typing.
func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// freezeProfiles finalizes every per-column accumulator into its profile.
func (s *session) freezeProfiles() []stats.ColumnProfile {
	profiles := make([]stats.ColumnProfile, 0, len(s.columns))
	for i, col := range s.columns {
		switch {
		case s.accums[i] != nil:
			profiles = append(profiles, s.accums[i].Profile(string(col.Type), profileQuantiles))
		case s.counters[i] != nil:
			profiles = append(profiles, s.counters[i].Profile(string(col.Type)))
		default:
			profiles = append(profiles, stats.ColumnProfile{Name: col.Name, InferredType: string(col.Type)})
		}
	}
	return profiles
}

// rowReservoir keeps a bounded uniform sample of complete numeric rows for
// the post-stream multivariate stages, with their original stream indices.
type rowReservoir struct {
	capacity int
	seen     int64
	indices  []int64
	rows     [][]float64
	rng      *rand.Rand
}

func newRowReservoir(capacity int, seed int64) *rowReservoir {
	if capacity < 1 {
		capacity = 1
	}
	if seed == 0 {
		seed = 1
	}
	return &rowReservoir{
		capacity: capacity,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

func (r *rowReservoir) offer(index int64, row []float64) {
	r.seen++
	if len(r.rows) < r.capacity {
		r.indices = append(r.indices, index)
		r.rows = append(r.rows, append([]float64(nil), row...))
		return
	}
	if j := r.rng.Int63n(r.seen); j < int64(r.capacity) {
		r.indices[j] = index
		r.rows[j] = append(r.rows[j][:0], row...)
	}
}

func (r *rowReservoir) len() int { return len(r.rows) }

// project returns the sampled rows restricted to the kept numeric-column
// positions (indices into the covariance matrix order).
func (r *rowReservoir) project(keep []int) [][]float64 {
	out := make([][]float64, len(r.rows))
	for i, row := range r.rows {
		p := make([]float64, len(keep))
		for a, j := range keep {
			p[a] = row[j]
		}
		out[i] = p
	}
	return out
}
