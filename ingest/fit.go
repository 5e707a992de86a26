package ingest

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tormoder/fit"

	"github.com/lucasjlepore/activity-harmonics/activity"
)

// FIT record channels.
const (
	ChannelHeartRate = "heart_rate"
	ChannelPower     = "power"
	ChannelCadence   = "cadence"
	ChannelSpeed     = "speed"
	ChannelAltitude  = "altitude"
)

// FITChannels lists the channels ReadFIT produces for every record.
var FITChannels = []string{ChannelHeartRate, ChannelPower, ChannelCadence, ChannelSpeed, ChannelAltitude}

// FITOptions supplies the labels a FIT activity does not carry itself.
type FITOptions struct {
	Subject string
	// Activity defaults to the session sport.
	Activity string
	// Detail defaults to the session sub-sport.
	Detail string
}

// ReadFITFile decodes an activity FIT file into samples.
func ReadFITFile(path string, opts FITOptions) ([]activity.Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fit file: %w", err)
	}
	if opts.Subject == "" {
		opts.Subject = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return ReadFIT(bytes.NewReader(data), opts)
}

// ReadFIT decodes FIT bytes from r. Every record message with a valid timestamp
// becomes one sample; invalid sensor sentinels are stored as 0.
func ReadFIT(r io.Reader, opts FITOptions) ([]activity.Sample, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode FIT file: %w", err)
	}
	act, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity FIT expected: %w", err)
	}

	if len(act.Sessions) > 0 && act.Sessions[0] != nil {
		session := act.Sessions[0]
		if opts.Activity == "" {
			opts.Activity = fmt.Sprint(session.Sport)
		}
		if opts.Detail == "" {
			opts.Detail = fmt.Sprint(session.SubSport)
		}
	}
	if opts.Activity == "" {
		opts.Activity = "unknown"
	}

	samples := make([]activity.Sample, 0, len(act.Records))
	for _, rec := range act.Records {
		if rec == nil {
			continue
		}
		ts := validTimeOrZero(rec.Timestamp)
		if ts.IsZero() {
			continue
		}
		samples = append(samples, activity.Sample{
			Timestamp: ts.UTC(),
			Subject:   opts.Subject,
			Activity:  opts.Activity,
			Detail:    opts.Detail,
			Channels: map[string]float64{
				ChannelHeartRate: extractHeartRate(rec),
				ChannelPower:     extractPower(rec),
				ChannelCadence:   extractCadence(rec),
				ChannelSpeed:     extractSpeed(rec),
				ChannelAltitude:  extractAltitude(rec),
			},
		})
	}
	return samples, nil
}

func validTimeOrZero(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
}

func extractPower(rec *fit.RecordMsg) float64 {
	if rec.Power == math.MaxUint16 {
		return 0
	}
	return float64(rec.Power)
}

func extractHeartRate(rec *fit.RecordMsg) float64 {
	if rec.HeartRate == math.MaxUint8 {
		return 0
	}
	return float64(rec.HeartRate)
}

func extractCadence(rec *fit.RecordMsg) float64 {
	if cad256 := rec.GetCadence256Scaled(); !isNaNOrInf(cad256) && cad256 > 0 {
		return cad256
	}
	if rec.Cadence == math.MaxUint8 {
		return 0
	}
	return float64(rec.Cadence)
}

func extractSpeed(rec *fit.RecordMsg) float64 {
	if speed := rec.GetEnhancedSpeedScaled(); !isNaNOrInf(speed) && speed >= 0 {
		return speed
	}
	if speed := rec.GetSpeedScaled(); !isNaNOrInf(speed) && speed >= 0 {
		return speed
	}
	return 0
}

func extractAltitude(rec *fit.RecordMsg) float64 {
	if alt := rec.GetEnhancedAltitudeScaled(); !isNaNOrInf(alt) {
		return alt
	}
	if alt := rec.GetAltitudeScaled(); !isNaNOrInf(alt) {
		return alt
	}
	return 0
}

func isNaNOrInf(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
