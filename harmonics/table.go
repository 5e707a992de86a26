package harmonics

import (
	"strconv"
	"time"
)

// Column name helpers for one channel.
func PreprocessedColumn(channel string) string  { return channel + "_preprocessed" }
func ReconstructedColumn(channel string) string { return channel + "_reconstructed" }
func HarmonicColumn(channel string, i int) string {
	return channel + "_harmonic_" + strconv.Itoa(i)
}

// FeatureRow is one resampled tick of one window or group.
type FeatureRow struct {
	Index     int                `json:"index"`
	Timestamp time.Time          `json:"timestamp"`
	Detail    string             `json:"detail"`
	Segment   string             `json:"segment,omitempty"`
	Window    string             `json:"window,omitempty"`
	Group     string             `json:"group,omitempty"`
	Values    map[string]float64 `json:"values"`
}

// GroupReport describes how one window or group went through extraction.
type GroupReport struct {
	Key        string             `json:"key"`
	Rows       int                `json:"rows"`
	Retained   []string           `json:"retained_channels"`
	Degenerate []string           `json:"degenerate_channels,omitempty"`
	Outliers   map[string]int     `json:"outliers_replaced,omitempty"`
	R2         map[string]float64 `json:"reconstruction_r2,omitempty"`
	R2Fit      map[string]float64 `json:"reconstruction_r2_fit,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// FeatureTable is the harmonic feature output. Columns is the union of value
// columns in first-seen order; a row lacks the columns of channels that were
// degenerate in its window.
type FeatureTable struct {
	Columns []string      `json:"columns"`
	Rows    []FeatureRow  `json:"rows"`
	Reports []GroupReport `json:"reports"`
}

// Empty reports whether the table has no rows.
func (t *FeatureTable) Empty() bool { return t == nil || len(t.Rows) == 0 }

// Append concatenates other onto t, extending the column union.
func (t *FeatureTable) Append(other *FeatureTable) {
	if other == nil {
		return
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		seen[c] = true
	}
	for _, c := range other.Columns {
		if !seen[c] {
			seen[c] = true
			t.Columns = append(t.Columns, c)
		}
	}
	t.Rows = append(t.Rows, other.Rows...)
	t.Reports = append(t.Reports, other.Reports...)
}
