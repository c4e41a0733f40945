package errors

import "fmt"

// WarningKind is the closed set of warning categories emitted during analysis.
// Downstream consumers switch over this enum exhaustively; adding a kind is an
// API change, not a free-text convention.
type WarningKind string

const (
	WarnDataInsufficiency    WarningKind = "data_insufficiency"
	WarnNumericalInstability WarningKind = "numerical_instability"
	WarnMemoryPressure       WarningKind = "memory_pressure"
	WarnConfigurationIssue   WarningKind = "configuration_issue"
	WarnCancelled            WarningKind = "cancelled"
)

// Warning is a non-fatal condition recorded against an analysis session.
// Stage identifies the engine that raised it ("pca", "clustering", "outliers",
// "covariance", "stream"); Detail carries kind-specific structured payload.
type Warning struct {
	Kind    WarningKind            `json:"kind"`
	Stage   string                 `json:"stage,omitempty"`
	Message string                 `json:"message"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
}

// String implements fmt.Stringer
func (w Warning) String() string {
	if w.Stage != "" {
		return fmt.Sprintf("%s(%s): %s", w.Kind, w.Stage, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// NewDataInsufficiencyWarning reports that a stage lacks the rows, columns or
// variance it needs; the stage becomes not-applicable, siblings continue.
func NewDataInsufficiencyWarning(stage, message string) Warning {
	return Warning{Kind: WarnDataInsufficiency, Stage: stage, Message: message}
}

// NewNumericalInstabilityWarning reports a singular or ill-conditioned
// computation that was recovered by regularization.
func NewNumericalInstabilityWarning(stage, message string) Warning {
	return Warning{Kind: WarnNumericalInstability, Stage: stage, Message: message}
}

// NewMemoryPressureWarning reports chunk-size reduction under memory pressure.
func NewMemoryPressureWarning(message string, heapUsedMB float64) Warning {
	return Warning{
		Kind:    WarnMemoryPressure,
		Stage:   "stream",
		Message: message,
		Detail:  map[string]interface{}{"heap_used_mb": heapUsedMB},
	}
}

// NewConfigurationWarning reports an invalid config value that was replaced by
// a safe default.
func NewConfigurationWarning(field, message string) Warning {
	return Warning{
		Kind:    WarnConfigurationIssue,
		Message: message,
		Detail:  map[string]interface{}{"field": field},
	}
}

// NewCancelledWarning reports that the run was cancelled and the result holds
// partially accumulated state.
func NewCancelledWarning(rowsProcessed int64) Warning {
	return Warning{
		Kind:    WarnCancelled,
		Stage:   "stream",
		Message: "analysis cancelled; results reflect rows processed before cancellation",
		Detail:  map[string]interface{}{"rows_processed": rowsProcessed},
	}
}
