package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataprof/internal/config"
)

func TestRowReservoir_Bounded(t *testing.T) {
	r := newRowReservoir(100, 1)
	for i := int64(0); i < 10000; i++ {
		r.offer(i, []float64{float64(i), float64(-i)})
	}

	assert.Equal(t, 100, r.len())
	for i, row := range r.rows {
		// Each kept row still pairs with its original stream index.
		assert.Equal(t, float64(r.indices[i]), row[0])
	}
}

func TestRowReservoir_KeepsAllWhenSmall(t *testing.T) {
	r := newRowReservoir(100, 1)
	for i := int64(0); i < 10; i++ {
		r.offer(i, []float64{float64(i)})
	}
	assert.Equal(t, 10, r.len())
	assert.Equal(t, int64(9), r.indices[9])
}

func TestRowReservoir_Project(t *testing.T) {
	r := newRowReservoir(10, 1)
	r.offer(0, []float64{1, 2, 3})
	r.offer(1, []float64{4, 5, 6})

	projected := r.project([]int{2, 0})
	assert.Equal(t, [][]float64{{3, 1}, {6, 4}}, projected)
}

func TestAsFloat(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  float64
		ok    bool
	}{
		{"float64", 3.5, 3.5, true},
		{"float32", float32(2), 2, true},
		{"int", 7, 7, true},
		{"int64", int64(9), 9, true},
		{"true", true, 1, true},
		{"false", false, 0, true},
		{"string", "x", 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := asFloat(tt.value)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSession_NoMutationAfterFinalize(t *testing.T) {
	cfg := config.Default()
	sess := newSession(cfg, numericColumns("x"))

	sess.consumeRow([]interface{}{1.0})
	sess.consumeRow([]interface{}{2.0})
	sess.finalized = true
	sess.consumeRow([]interface{}{100.0})

	require.Equal(t, int64(2), sess.rowsProcessed)
	assert.Equal(t, int64(2), sess.accums[0].Count())
}

func TestSession_MixedColumnTypes(t *testing.T) {
	cols := []Column{
		{Name: "amount", Type: FieldNumeric},
		{Name: "segment", Type: FieldCategorical},
		{Name: "returned", Type: FieldBoolean},
		{Name: "ts", Type: FieldDatetime},
	}
	sess := newSession(config.Default(), cols)

	sess.consumeRow([]interface{}{10.0, "Gold", true, "2020-01-01"})
	sess.consumeRow([]interface{}{20.0, "Silver", false, "2020-01-02"})

	profiles := sess.freezeProfiles()
	require.Len(t, profiles, 4)
	assert.Equal(t, int64(2), profiles[0].Count)
	assert.Equal(t, int64(1), profiles[1].DistinctValues["Gold"])
	assert.Equal(t, int64(1), profiles[2].DistinctValues["true"])
	assert.Equal(t, "datetime", profiles[3].InferredType)
	assert.Equal(t, int64(0), profiles[3].Count, "datetime columns are not profiled numerically")
}
