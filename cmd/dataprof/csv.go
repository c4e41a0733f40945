package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"dataprof/internal/analysis"
)

// typeSniffRows is how many leading rows vote on each column's type.
const typeSniffRows = 200

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// csvSource adapts a CSV file to the analysis row-source boundary: it reads
// the header, infers a type tag per column from the leading rows, and streams
// typed values. Empty fields and unparseable values become nil.
type csvSource struct {
	file   *os.File
	reader *csv.Reader
	cols   []analysis.Column

	// rows consumed during type sniffing, replayed before further reads
	buffered [][]string
	done     bool
}

func newCSVSource(path string) (*csvSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}

	br := bufio.NewReader(file)
	stripBOM(br)

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	s := &csvSource{file: file, reader: reader}

	for i := 0; i < typeSniffRows; i++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		s.buffered = append(s.buffered, record)
	}

	s.cols = inferColumns(header, s.buffered)
	return s, nil
}

// stripBOM discards a UTF-8 byte order mark if present.
func stripBOM(br *bufio.Reader) {
	head, err := br.Peek(3)
	if err == nil && len(head) == 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		br.Discard(3)
	}
}

// Columns implements analysis.RowSource.
func (s *csvSource) Columns() []analysis.Column {
	return s.cols
}

// Next implements analysis.RowSource.
func (s *csvSource) Next(ctx context.Context, max int) ([][]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, io.EOF
	}

	batch := make([][]interface{}, 0, max)
	for len(batch) < max {
		var record []string
		if len(s.buffered) > 0 {
			record = s.buffered[0]
			s.buffered = s.buffered[1:]
		} else {
			var err error
			record, err = s.reader.Read()
			if err == io.EOF {
				s.done = true
				return batch, io.EOF
			}
			if err != nil {
				return batch, fmt.Errorf("read csv row: %w", err)
			}
		}
		batch = append(batch, s.typedRow(record))
	}
	return batch, nil
}

// Close releases the underlying file.
func (s *csvSource) Close() error {
	return s.file.Close()
}

func (s *csvSource) typedRow(record []string) []interface{} {
	row := make([]interface{}, len(s.cols))
	for i := range s.cols {
		if i >= len(record) {
			continue
		}
		row[i] = parseField(record[i], s.cols[i].Type)
	}
	return row
}

// parseField converts one raw field by its column type tag; nil marks missing
// or unparseable values.
func parseField(raw string, t analysis.FieldType) interface{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	switch t {
	case analysis.FieldNumeric:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
		return nil
	case analysis.FieldBoolean:
		if v, err := strconv.ParseBool(strings.ToLower(raw)); err == nil {
			return v
		}
		return nil
	case analysis.FieldDatetime:
		for _, layout := range datetimeLayouts {
			if v, err := time.Parse(layout, raw); err == nil {
				return v
			}
		}
		return nil
	default:
		return raw
	}
}

// inferColumns votes on a type per column over the sniffed rows: a column
// where every non-empty value parses as a number is numeric, as a boolean is
// boolean, as a datetime is datetime; anything else is categorical.
func inferColumns(header []string, rows [][]string) []analysis.Column {
	cols := make([]analysis.Column, len(header))
	for i, name := range header {
		cols[i] = analysis.Column{Name: strings.TrimSpace(name), Type: inferType(columnValues(rows, i))}
	}
	return cols
}

func columnValues(rows [][]string, col int) []string {
	var vals []string
	for _, r := range rows {
		if col < len(r) {
			if v := strings.TrimSpace(r[col]); v != "" {
				vals = append(vals, v)
			}
		}
	}
	return vals
}

func inferType(values []string) analysis.FieldType {
	if len(values) == 0 {
		return analysis.FieldCategorical
	}

	numeric, boolean, datetime := true, true, true
	for _, v := range values {
		if numeric {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
			}
		}
		if boolean {
			if _, err := strconv.ParseBool(strings.ToLower(v)); err != nil {
				boolean = false
			}
		}
		if datetime {
			if !parsesAsDatetime(v) {
				datetime = false
			}
		}
	}

	switch {
	case boolean && !numeric:
		return analysis.FieldBoolean
	case numeric:
		return analysis.FieldNumeric
	case datetime:
		return analysis.FieldDatetime
	default:
		return analysis.FieldCategorical
	}
}

func parsesAsDatetime(v string) bool {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
