package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/lucasjlepore/activity-harmonics/activity"
	"github.com/lucasjlepore/activity-harmonics/harmonics"
)

var featureMetaColumns = []string{"window", "group", "segment", "detail", "index", "timestamp"}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeFeaturesCSV writes one row per tick. Cells of columns a window does not
// carry are left empty.
func writeFeaturesCSV(path string, table *harmonics.FeatureTable) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append(append([]string(nil), featureMetaColumns...), table.Columns...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range table.Rows {
		row := []string{
			r.Window,
			r.Group,
			r.Segment,
			r.Detail,
			strconv.Itoa(r.Index),
			r.Timestamp.UTC().Format(time.RFC3339),
		}
		for _, col := range table.Columns {
			v, ok := r.Values[col]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatFloat(v))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// writeWindowSamplesCSV writes the raw samples of held-out windows.
func writeWindowSamplesCSV(path string, windows []activity.Window, channels []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"window", "kind", "ordinal", "timestamp", "subject", "activity", "activity_detail", "segment"}
	header = append(header, channels...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, win := range windows {
		for _, s := range win.Samples {
			row := []string{
				win.Label,
				string(win.Kind),
				strconv.Itoa(win.Ordinal),
				s.Timestamp.UTC().Format(time.RFC3339),
				s.Subject,
				s.Activity,
				s.Detail,
				s.Segment,
			}
			for _, ch := range channels {
				v, ok := s.Channels[ch]
				if !ok {
					row = append(row, "")
					continue
				}
				row = append(row, formatFloat(v))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
