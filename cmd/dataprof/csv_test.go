package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataprof/internal/analysis"
	"dataprof/internal/config"
)

func testAnalysisConfig() config.Config {
	cfg := config.Default()
	cfg.MinSamples = 4
	cfg.Seed = 42
	return cfg
}

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVSource_TypeInference(t *testing.T) {
	path := writeTempCSV(t,
		"amount,category,returned,day\n"+
			"10.5,Food,true,2020-01-01\n"+
			"20,Books,false,2020-01-02\n"+
			"7.25,Toys,true,2020-01-03\n")

	src, err := newCSVSource(path)
	require.NoError(t, err)
	defer src.Close()

	cols := src.Columns()
	require.Len(t, cols, 4)
	assert.Equal(t, analysis.FieldNumeric, cols[0].Type)
	assert.Equal(t, analysis.FieldCategorical, cols[1].Type)
	assert.Equal(t, analysis.FieldBoolean, cols[2].Type)
	assert.Equal(t, analysis.FieldDatetime, cols[3].Type)
}

func TestCSVSource_StreamsTypedRows(t *testing.T) {
	path := writeTempCSV(t,
		"x,y\n"+
			"1,2\n"+
			"3,\n"+
			"5,6\n")

	src, err := newCSVSource(path)
	require.NoError(t, err)
	defer src.Close()

	var rows [][]interface{}
	for {
		batch, err := src.Next(context.Background(), 2)
		rows = append(rows, batch...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	require.Len(t, rows, 3)
	assert.Equal(t, 1.0, rows[0][0])
	assert.Equal(t, 2.0, rows[0][1])
	assert.Nil(t, rows[1][1], "empty field becomes nil")
	assert.Equal(t, 6.0, rows[2][1])
}

func TestCSVSource_BOMStripped(t *testing.T) {
	path := writeTempCSV(t, "\xEF\xBB\xBFa,b\n1,2\n")

	src, err := newCSVSource(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "a", src.Columns()[0].Name)
	assert.Equal(t, analysis.FieldNumeric, src.Columns()[0].Type)
}

func TestInferType(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   analysis.FieldType
	}{
		{"integers", []string{"1", "2", "3"}, analysis.FieldNumeric},
		{"floats", []string{"1.5", "-2.25"}, analysis.FieldNumeric},
		{"zero one is numeric", []string{"0", "1", "0"}, analysis.FieldNumeric},
		{"booleans", []string{"true", "false", "True"}, analysis.FieldBoolean},
		{"dates", []string{"2020-01-01", "2021-12-31"}, analysis.FieldDatetime},
		{"mixed", []string{"abc", "1"}, analysis.FieldCategorical},
		{"empty", nil, analysis.FieldCategorical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferType(tt.values))
		})
	}
}

func TestEndToEnd_CSVAnalysis(t *testing.T) {
	content := "x,y,segment\n"
	for i := 0; i < 30; i++ {
		content += "1.0,1.1,Gold\n"
		content += "5.0,5.2,Silver\n"
		content += "10.0,1.0,Gold\n"
	}
	path := writeTempCSV(t, content)

	src, err := newCSVSource(path)
	require.NoError(t, err)
	defer src.Close()

	// The full pipeline runs over the adapted source.
	cfg := testAnalysisConfig()
	coord := analysis.NewCoordinator(cfg, nil)
	result, err := coord.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, int64(90), result.Performance.RowsAnalyzed)
	require.Len(t, result.ColumnProfiles, 3)
	assert.Equal(t, "categorical", result.ColumnProfiles[2].InferredType)
	assert.True(t, result.Clustering.IsApplicable)
}
