package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without cause",
			err:      NewConfigError("maxClusters must be positive", nil),
			expected: "[CONFIG] maxClusters must be positive",
		},
		{
			name:     "with cause",
			err:      NewDataError("row decode failed", fmt.Errorf("bad field")),
			expected: "[DATA] row decode failed: bad field",
		},
		{
			name:     "numerical",
			err:      NewNumericalError("covariance inversion failed", nil),
			expected: "[NUMERICAL] covariance inversion failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewDataError("wrapper", cause)

	require.ErrorIs(t, err, cause)

	var appErr *AppError
	require.True(t, errors.As(fmt.Errorf("outer: %w", err), &appErr))
	assert.Equal(t, ErrTypeData, appErr.Type)
}

func TestAppError_WithContext(t *testing.T) {
	err := NewConfigError("invalid", nil).
		WithContext("field", "maxClusters").
		WithContext("value", -1)

	assert.Equal(t, "maxClusters", err.Context["field"])
	assert.Equal(t, -1, err.Context["value"])
}

func TestMemoryPressureError(t *testing.T) {
	err := &MemoryPressureError{
		HeapUsedMB: 612.5,
		CeilingMB:  512,
		ChunkSize:  100,
	}

	assert.Contains(t, err.Error(), "612.5")
	assert.Contains(t, err.Error(), "512")
	assert.Contains(t, err.Error(), "MEMORY")
}

func TestWarning_String(t *testing.T) {
	tests := []struct {
		name     string
		warning  Warning
		expected string
	}{
		{
			name:     "with stage",
			warning:  NewDataInsufficiencyWarning("pca", "fewer than 2 numeric columns"),
			expected: "data_insufficiency(pca): fewer than 2 numeric columns",
		},
		{
			name:     "without stage",
			warning:  NewConfigurationWarning("maxClusters", "replaced by default"),
			expected: "configuration_issue: replaced by default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.warning.String())
		})
	}
}

func TestWarningConstructors(t *testing.T) {
	t.Run("memory pressure carries heap detail", func(t *testing.T) {
		w := NewMemoryPressureWarning("reduced chunk size", 420.0)
		assert.Equal(t, WarnMemoryPressure, w.Kind)
		assert.Equal(t, 420.0, w.Detail["heap_used_mb"])
	})

	t.Run("cancelled carries row count", func(t *testing.T) {
		w := NewCancelledWarning(1234)
		assert.Equal(t, WarnCancelled, w.Kind)
		assert.Equal(t, int64(1234), w.Detail["rows_processed"])
	})
}
