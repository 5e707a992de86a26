package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lucasjlepore/activity-harmonics/activity"
	"github.com/lucasjlepore/activity-harmonics/harmonics"
	"github.com/lucasjlepore/activity-harmonics/pipeline"
	"github.com/lucasjlepore/activity-harmonics/store"
)

const parquetContentType = "application/vnd.apache.parquet"

// SampleRequest is one observation in a request body.
type SampleRequest struct {
	Timestamp time.Time          `json:"timestamp" binding:"required"`
	Subject   string             `json:"subject"`
	Activity  string             `json:"activity"`
	Detail    string             `json:"activity_detail"`
	Segment   string             `json:"segment"`
	Window    string             `json:"window"`
	Channels  map[string]float64 `json:"channels"`
}

// HarmonicsRequest asks for harmonic features of one window, or of several
// windows when GroupBy is set.
type HarmonicsRequest struct {
	Samples         []SampleRequest `json:"samples" binding:"required,min=1,dive"`
	Channels        []string        `json:"channels"`
	Harmonics       int             `json:"n_harmonics"`
	ResampleSeconds float64         `json:"resample_seconds"`
	GroupBy         string          `json:"group_by"`
	Seed            uint64          `json:"seed"`
	Persist         bool            `json:"persist"`
	Source          string          `json:"source"`
}

// PartitionRequest asks for segmentation and windowing of raw samples. Zero
// sizes fall back to the server configuration.
type PartitionRequest struct {
	Samples     []SampleRequest `json:"samples" binding:"required,min=1,dive"`
	GapSeconds  int             `json:"gap_seconds"`
	WindowTotal int             `json:"window_total"`
	TrainSize   int             `json:"train_size"`
	CalibSize   int             `json:"calib_size"`
	ValidSize   int             `json:"valid_size"`
}

// POST /api/v1/harmonics
func (s *Server) handleHarmonics(c *gin.Context) {
	var req HarmonicsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	opts := harmonics.Options{
		Channels:  req.Channels,
		Harmonics: req.Harmonics,
		Resample:  time.Duration(req.ResampleSeconds * float64(time.Second)),
		GroupBy:   req.GroupBy,
		Seed:      req.Seed,
		Workers:   s.cfg.Workers,
		Logger:    s.logger,
	}
	if len(opts.Channels) == 0 {
		opts.Channels = s.cfg.Channels
	}
	samples := toSamples(req.Samples)
	if len(opts.Channels) == 0 {
		opts.Channels = activity.ChannelNames(samples)
	}
	if opts.Harmonics == 0 {
		opts.Harmonics = s.cfg.Harmonics
	}
	if opts.Resample == 0 {
		opts.Resample = s.cfg.Resample
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	table, err := harmonics.Extract(ctx, samples, opts)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if harmonics.IsFatal(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": "extraction failed", "details": err.Error()})
		return
	}

	var runID string
	if req.Persist {
		if s.store == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "persistence is not configured"})
			return
		}
		id, err := s.persist(ctx, req, opts.Harmonics, table)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		runID = id.String()
	}

	if c.Query("format") == "parquet" {
		data, err := pipeline.MarshalFeaturesParquet(table)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if runID != "" {
			c.Header("X-Run-ID", runID)
		}
		c.Data(http.StatusOK, parquetContentType, data)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id": runID,
		"data":   table,
		"meta": gin.H{
			"rows":    len(table.Rows),
			"columns": len(table.Columns),
		},
	})
}

func (s *Server) persist(ctx context.Context, req HarmonicsRequest, n int, table *harmonics.FeatureTable) (uuid.UUID, error) {
	id := uuid.New()
	source := req.Source
	if source == "" {
		source = "api"
	}
	failed := 0
	for _, r := range table.Reports {
		if r.Error != "" || len(r.Retained) == 0 {
			failed++
		}
	}
	if err := s.store.InsertRun(ctx, store.Run{
		ID:        id,
		Source:    source,
		Harmonics: n,
		Windows:   len(table.Reports),
		Failed:    failed,
	}); err != nil {
		return id, err
	}
	if _, err := s.store.InsertFeatures(ctx, id, table); err != nil {
		return id, err
	}
	return id, nil
}

// POST /api/v1/partition
func (s *Server) handlePartition(c *gin.Context) {
	var req PartitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	cfg := s.cfg.Partition
	if req.GapSeconds > 0 {
		cfg.GapThreshold = time.Duration(req.GapSeconds) * time.Second
	}
	for _, v := range []struct {
		src int
		dst *int
	}{
		{req.WindowTotal, &cfg.WindowTotal},
		{req.TrainSize, &cfg.TrainSize},
		{req.CalibSize, &cfg.CalibSize},
		{req.ValidSize, &cfg.ValidSize},
	} {
		if v.src != 0 {
			*v.dst = v.src
		}
	}

	parts, err := activity.SegmentAndPartition(toSamples(req.Samples), cfg)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, activity.ErrInvalidConfig) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": pipeline.WindowIndex(parts).Windows,
		"meta": parts.Stats,
	})
}

func toSamples(in []SampleRequest) []activity.Sample {
	out := make([]activity.Sample, len(in))
	for i, r := range in {
		out[i] = activity.Sample{
			Timestamp: r.Timestamp,
			Subject:   r.Subject,
			Activity:  r.Activity,
			Detail:    r.Detail,
			Segment:   r.Segment,
			Window:    r.Window,
			Channels:  r.Channels,
		}
	}
	return out
}
