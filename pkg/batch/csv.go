package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/mchmarny/loanrisk/pkg/frame"
)

const (
	// SampleFileName is the suggested name for the sample input download.
	SampleFileName = "sample_input.csv"
	// ResultFileName is the suggested name for the scored output download.
	ResultFileName = "predictions.csv"
)

// ErrEmptyFile is returned when the input has no header row.
var ErrEmptyFile = errors.New("CSV file is empty")

// Read parses a CSV table. Columns named in numeric parse as numbers
// (empty cells become missing); all other columns stay text.
func Read(r io.Reader, numeric func(column string) bool) (*frame.Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	f, err := frame.New(header...)
	if err != nil {
		return nil, fmt.Errorf("invalid CSV header: %w", err)
	}

	isNum := make([]bool, len(header))
	if numeric != nil {
		for i, h := range header {
			isNum[i] = numeric(h)
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		line, _ := cr.FieldPos(0)

		row := make([]any, len(rec))
		for i, v := range rec {
			v = strings.TrimSpace(v)
			if !isNum[i] {
				if v == "" {
					row[i] = nil
				} else {
					row[i] = v
				}
				continue
			}
			if v == "" {
				row[i] = nil
				continue
			}
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %s: %q is not a number", line, header[i], v)
			}
			row[i] = n
		}
		if err := f.Append(row...); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return f, nil
}

// Write renders f as CSV with a header row. Missing cells are empty.
func Write(w io.Writer, f *frame.Frame) error {
	cw := csv.NewWriter(w)
	cols := f.Columns()
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	rec := make([]string, len(cols))
	for i := 0; i < f.Len(); i++ {
		for j, v := range f.Row(i) {
			rec[j] = cell(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(t) {
			return ""
		}
		return frame.FormatFloat(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
