package analysis

import (
	"context"
	"io"
)

// FieldType is the inferred type tag a row source attaches to each column.
type FieldType string

const (
	FieldNumeric     FieldType = "numeric"
	FieldCategorical FieldType = "categorical"
	FieldDatetime    FieldType = "datetime"
	FieldBoolean     FieldType = "boolean"
)

// Column describes one column of the incoming row stream.
type Column struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// RowSource is the boundary to the parsing collaborator: an ordered sequence
// of rows, each an array of already-typed field values. Numeric fields arrive
// as float64, categorical as string, boolean as bool, datetime as time.Time;
// nil marks a missing value. Sources need not be restartable.
type RowSource interface {
	// Columns returns the column descriptors, stable across the stream.
	Columns() []Column

	// Next returns up to max rows. It returns io.EOF (possibly alongside a
	// final partial batch) when the stream is exhausted.
	Next(ctx context.Context, max int) ([][]interface{}, error)
}

// SliceSource serves rows from memory. Used by tests and small inputs.
type SliceSource struct {
	cols []Column
	rows [][]interface{}
	pos  int
}

// NewSliceSource creates a source over the given rows.
func NewSliceSource(cols []Column, rows [][]interface{}) *SliceSource {
	return &SliceSource{cols: cols, rows: rows}
}

// Columns implements RowSource.
func (s *SliceSource) Columns() []Column {
	return s.cols
}

// Next implements RowSource.
func (s *SliceSource) Next(ctx context.Context, max int) ([][]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	end := s.pos + max
	if end > len(s.rows) {
		end = len(s.rows)
	}
	batch := s.rows[s.pos:end]
	s.pos = end
	if s.pos >= len(s.rows) {
		return batch, io.EOF
	}
	return batch, nil
}
