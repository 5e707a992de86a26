package ingest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tormoder/fit"
)

const sampleCSV = `timestamp;subject;activity;activity_detail;heart_rate;breathing_rate
12.05.2023 09:00:00;p01;cycling;easy;72,5;14
12.05.2023 09:00:30;p01;cycling;easy;;15,25
13.05.2023 10:15:01;p02;walking;flat;80;12
`

func TestReadCSVParsesDecimalsAndTimestamps(t *testing.T) {
	samples, err := ReadCSV(strings.NewReader(sampleCSV), CSVOptions{})
	if err != nil {
		t.Fatalf("ReadCSV error: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	first := samples[0]
	if first.Subject != "p01" || first.Activity != "cycling" || first.Detail != "easy" {
		t.Fatalf("unexpected labels %+v", first)
	}
	if got := first.Channels["heart_rate"]; got != 72.5 {
		t.Fatalf("heart_rate = %v, want 72.5", got)
	}
	if got := samples[1].Channels["heart_rate"]; got != 0 {
		t.Fatalf("missing heart_rate = %v, want 0", got)
	}
	if got := samples[1].Channels["breathing_rate"]; got != 15.25 {
		t.Fatalf("breathing_rate = %v, want 15.25", got)
	}
	want := time.Date(2023, 5, 13, 10, 15, 1, 0, time.UTC)
	if !samples[2].Timestamp.Equal(want) {
		t.Fatalf("timestamp = %s, want %s", samples[2].Timestamp, want)
	}
}

func TestReadCSVUnpaddedTimestamps(t *testing.T) {
	in := "timestamp;subject;activity;activity_detail;heart_rate\n1.5.2023 9:00:00;p01;cycling;easy;70\n"
	samples, err := ReadCSV(strings.NewReader(in), CSVOptions{})
	if err != nil {
		t.Fatalf("ReadCSV error: %v", err)
	}
	want := time.Date(2023, 5, 1, 9, 0, 0, 0, time.UTC)
	if !samples[0].Timestamp.Equal(want) {
		t.Fatalf("timestamp = %s, want %s", samples[0].Timestamp, want)
	}
}

func TestReadCSVChannelSubset(t *testing.T) {
	samples, err := ReadCSV(strings.NewReader(sampleCSV), CSVOptions{Channels: []string{"breathing_rate"}})
	if err != nil {
		t.Fatalf("ReadCSV error: %v", err)
	}
	if _, ok := samples[0].Channels["heart_rate"]; ok {
		t.Fatalf("unrequested channel was parsed")
	}
}

func TestReadCSVMalformedInput(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		column string
	}{
		{
			name:   "bad timestamp",
			input:  "timestamp;subject;activity;activity_detail;hr\n2023-05-12 09:00:00;p;a;d;1\n",
			column: "timestamp",
		},
		{
			name:   "non-numeric channel",
			input:  "timestamp;subject;activity;activity_detail;hr\n12.05.2023 09:00:00;p;a;d;high\n",
			column: "hr",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.input), CSVOptions{})
			var malformed *MalformedInputError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedInputError, got %v", err)
			}
			if malformed.Column != tc.column || malformed.Line != 2 {
				t.Fatalf("unexpected error location: line %d column %q", malformed.Line, malformed.Column)
			}
		})
	}
}

func TestReadCSVMissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("timestamp;subject;activity\n"), CSVOptions{})
	if err == nil || !strings.Contains(err.Error(), "activity_detail") {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestReadFITFile(t *testing.T) {
	data := buildTestFIT(t)
	path := filepath.Join(t.TempDir(), "rider07.fit")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fit: %v", err)
	}

	samples, err := ReadFITFile(path, FITOptions{Activity: "trainer", Detail: "intervals"})
	if err != nil {
		t.Fatalf("ReadFITFile error: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	s := samples[0]
	if s.Subject != "rider07" || s.Activity != "trainer" || s.Detail != "intervals" {
		t.Fatalf("unexpected labels %+v", s)
	}
	if s.Channels[ChannelHeartRate] != 135 || s.Channels[ChannelPower] != 245 || s.Channels[ChannelCadence] != 92 {
		t.Fatalf("unexpected channels %+v", s.Channels)
	}
	if s.Channels[ChannelAltitude] != 0 {
		t.Fatalf("invalid altitude should map to 0, got %v", s.Channels[ChannelAltitude])
	}
	if samples[2].Channels[ChannelHeartRate] != 0 {
		t.Fatalf("invalid heart rate should map to 0, got %v", samples[2].Channels[ChannelHeartRate])
	}
	for _, ch := range FITChannels {
		if _, ok := s.Channels[ch]; !ok {
			t.Fatalf("channel %s missing", ch)
		}
	}
}

func buildTestFIT(t *testing.T) []byte {
	t.Helper()

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}
	act, err := file.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}

	start := time.Date(2026, 2, 26, 23, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		record := fit.NewRecordMsg()
		record.Timestamp = start.Add(time.Duration(i) * time.Second)
		record.Power = 245
		record.Cadence = 92
		if i < 2 {
			record.HeartRate = 135
		}
		act.Records = append(act.Records, record)
	}

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}
