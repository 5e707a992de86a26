package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lucasjlepore/activity-harmonics/activity"
	"github.com/lucasjlepore/activity-harmonics/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		Partition: activity.DefaultConfig(),
		Harmonics: 3,
		Resample:  time.Second,
		Workers:   2,
	}
	return New(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testSamples(n int) []SampleRequest {
	start := time.Date(2023, 5, 12, 9, 0, 0, 0, time.UTC)
	out := make([]SampleRequest, n)
	for i := range out {
		out[i] = SampleRequest{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Subject:   "p01",
			Activity:  "cycling",
			Detail:    "easy",
			Channels:  map[string]float64{"heart_rate": 120 + 10*math.Sin(2*math.Pi*float64(i)/20)},
		}
	}
	return out
}

func sparseSamples(span time.Duration) []SampleRequest {
	out := testSamples(2)
	out[1].Timestamp = out[0].Timestamp.Add(span)
	return out
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHarmonicsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodPost, "/api/v1/harmonics", HarmonicsRequest{
		Samples:   testSamples(60),
		Harmonics: 4,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			Columns []string `json:"columns"`
			Rows    []struct {
				Values map[string]float64 `json:"values"`
			} `json:"rows"`
		} `json:"data"`
		Meta struct {
			Rows    int `json:"rows"`
			Columns int `json:"columns"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Meta.Rows != 60 || resp.Meta.Columns != 6 {
		t.Fatalf("unexpected meta %+v", resp.Meta)
	}
	if _, ok := resp.Data.Rows[0].Values["heart_rate_harmonic_4"]; !ok {
		t.Fatalf("missing harmonic column in %v", resp.Data.Columns)
	}
}

func TestHarmonicsEndpointParquet(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodPost, "/api/v1/harmonics?format=parquet", HarmonicsRequest{
		Samples:  testSamples(30),
		Channels: []string{"heart_rate"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != parquetContentType {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PAR1")) {
		t.Fatalf("body is not parquet")
	}
}

func TestHarmonicsEndpointErrors(t *testing.T) {
	srv := newTestServer(t)
	cases := []struct {
		name string
		body any
		want int
	}{
		{"bad json", `{"samples": [`, http.StatusBadRequest},
		{"no samples", HarmonicsRequest{}, http.StatusBadRequest},
		{"too many harmonics", HarmonicsRequest{Samples: testSamples(10), Harmonics: 11}, http.StatusBadRequest},
		{"unknown group column", HarmonicsRequest{Samples: testSamples(10), GroupBy: "colour"}, http.StatusBadRequest},
		{"persist without store", HarmonicsRequest{Samples: testSamples(10), Persist: true}, http.StatusBadRequest},
		{"span too long", HarmonicsRequest{Samples: sparseSamples(30 * 24 * time.Hour)}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		rec := do(t, srv, http.MethodPost, "/api/v1/harmonics", tc.body)
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d want %d (%s)", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestPartitionEndpoint(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodPost, "/api/v1/partition", PartitionRequest{
		Samples:     testSamples(65),
		WindowTotal: 30,
		TrainSize:   18,
		CalibSize:   6,
		ValidSize:   6,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data []struct {
			Label   string `json:"label"`
			Kind    string `json:"kind"`
			Samples int    `json:"samples"`
		} `json:"data"`
		Meta activity.Stats `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Meta.Blocks != 2 || len(resp.Data) != 6 {
		t.Fatalf("expected 2 blocks and 6 windows, got %d and %d", resp.Meta.Blocks, len(resp.Data))
	}
	if resp.Data[1].Label != "p01_cycling_easy_1_1" || resp.Data[1].Samples != 18 {
		t.Fatalf("unexpected second train window %+v", resp.Data[1])
	}
	if resp.Meta.SamplesDiscarded != 5 {
		t.Fatalf("samples discarded = %d", resp.Meta.SamplesDiscarded)
	}
}

func TestPartitionEndpointInvalidSizes(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodPost, "/api/v1/partition", PartitionRequest{
		Samples:     testSamples(10),
		WindowTotal: 10,
		TrainSize:   5,
		CalibSize:   5,
		ValidSize:   5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), fmt.Sprint(activity.ErrInvalidConfig)) {
		t.Fatalf("expected invalid config message, got %s", rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/harmonics", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	newTestServer(t).Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
}
