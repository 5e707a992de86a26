package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lucasjlepore/activity-harmonics/activity"
)

const (
	// DefaultTimeLayout is day.month.year hour:minute:second. Day, month and hour
	// may be written with or without a leading zero.
	DefaultTimeLayout = "2.1.2006 15:04:05"

	DefaultTimestampColumn = "timestamp"
	DefaultSubjectColumn   = "subject"
	DefaultActivityColumn  = "activity"
	DefaultDetailColumn    = "activity_detail"
)

// MalformedInputError reports a cell that cannot be parsed. It aborts ingest.
type MalformedInputError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input at line %d column %q (%q): %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// CSVOptions describes the tabular source layout.
type CSVOptions struct {
	Comma           rune
	TimeLayout      string
	Location        *time.Location
	TimestampColumn string
	SubjectColumn   string
	ActivityColumn  string
	DetailColumn    string
	// Channels restricts numeric columns. Empty means every column that is not
	// one of the identifying columns.
	Channels []string
}

func (o CSVOptions) withDefaults() CSVOptions {
	if o.Comma == 0 {
		o.Comma = ';'
	}
	if o.TimeLayout == "" {
		o.TimeLayout = DefaultTimeLayout
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.TimestampColumn == "" {
		o.TimestampColumn = DefaultTimestampColumn
	}
	if o.SubjectColumn == "" {
		o.SubjectColumn = DefaultSubjectColumn
	}
	if o.ActivityColumn == "" {
		o.ActivityColumn = DefaultActivityColumn
	}
	if o.DetailColumn == "" {
		o.DetailColumn = DefaultDetailColumn
	}
	return o
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, opts CSVOptions) ([]activity.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, opts)
}

// ReadCSV parses a delimited table into samples. Channel cells use a comma or a
// dot as decimal separator; empty channel cells become 0.
func ReadCSV(r io.Reader, opts CSVOptions) ([]activity.Sample, error) {
	opts = opts.withDefaults()

	cr := csv.NewReader(r)
	cr.Comma = opts.Comma
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read csv header: empty input")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}

	tsIdx, ok := cols[opts.TimestampColumn]
	if !ok {
		return nil, fmt.Errorf("csv header is missing timestamp column %q", opts.TimestampColumn)
	}
	idIdx := map[string]int{}
	for _, name := range []string{opts.SubjectColumn, opts.ActivityColumn, opts.DetailColumn} {
		i, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("csv header is missing column %q", name)
		}
		idIdx[name] = i
	}

	channels := opts.Channels
	if len(channels) == 0 {
		for _, name := range header {
			name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
			if name == opts.TimestampColumn {
				continue
			}
			if _, isID := idIdx[name]; isID {
				continue
			}
			channels = append(channels, name)
		}
	}
	chIdx := make([]int, len(channels))
	for i, name := range channels {
		idx, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("csv header is missing channel column %q", name)
		}
		chIdx[i] = idx
	}

	samples := make([]activity.Sample, 0, 4096)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		cell := func(i int) string {
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		raw := cell(tsIdx)
		ts, err := time.ParseInLocation(opts.TimeLayout, raw, opts.Location)
		if err != nil {
			return nil, &MalformedInputError{Line: line, Column: opts.TimestampColumn, Value: raw, Err: err}
		}

		s := activity.Sample{
			Timestamp: ts,
			Subject:   cell(idIdx[opts.SubjectColumn]),
			Activity:  cell(idIdx[opts.ActivityColumn]),
			Detail:    cell(idIdx[opts.DetailColumn]),
			Channels:  make(map[string]float64, len(channels)),
		}
		for i, name := range channels {
			v, err := ParseDecimal(cell(chIdx[i]))
			if err != nil {
				return nil, &MalformedInputError{Line: line, Column: name, Value: cell(chIdx[i]), Err: err}
			}
			s.Channels[name] = v
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// ParseDecimal parses a number written with either decimal separator.
// Empty and "nan" cells are treated as missing and return 0.
func ParseDecimal(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "nan") {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil {
		return 0, err
	}
	if isNaNOrInf(v) {
		return 0, fmt.Errorf("non-finite value")
	}
	return v, nil
}
