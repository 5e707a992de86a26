package activity

import (
	"fmt"
	"sort"
	"strconv"
)

// Partition slices each segment into consecutive blocks of cfg.WindowTotal samples
// and splits every block into train, calibration and validation windows.
//
// Segments shorter than one block are dropped, as is any remainder past the last
// full block. The partition ordinal is shared by the three windows of a block and
// increases across the whole call, so every window label is unique.
func Partition(segments []Segment, cfg Config) (Partitions, error) {
	if err := cfg.Validate(); err != nil {
		return Partitions{}, err
	}

	var out Partitions
	ordinal := 0
	for _, seg := range segments {
		out.Stats.Segments++
		out.Stats.Samples += len(seg.Samples)
		if len(seg.Samples) < cfg.WindowTotal {
			out.Stats.ShortSegmentCount++
			out.Stats.SamplesDiscarded += len(seg.Samples)
			continue
		}
		out.Stats.SegmentsKept++

		sorted := make([]Sample, len(seg.Samples))
		copy(sorted, seg.Samples)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		blocks := len(sorted) / cfg.WindowTotal
		out.Stats.SamplesDiscarded += len(sorted) - blocks*cfg.WindowTotal
		for b := 0; b < blocks; b++ {
			block := sorted[b*cfg.WindowTotal : (b+1)*cfg.WindowTotal]
			label := seg.ID() + "_" + strconv.Itoa(ordinal)

			trainEnd := cfg.TrainSize
			calibEnd := trainEnd + cfg.CalibSize
			out.Train = append(out.Train, newWindow(label, seg.ID(), ordinal, KindTrain, block[:trainEnd]))
			out.Calibration = append(out.Calibration, newWindow(label, seg.ID(), ordinal, KindCalibration, block[trainEnd:calibEnd]))
			out.Validation = append(out.Validation, newWindow(label, seg.ID(), ordinal, KindValidation, block[calibEnd:]))

			ordinal++
			out.Stats.Blocks++
		}
	}
	return out, nil
}

// SegmentAndPartition runs gap segmentation followed by window partitioning.
func SegmentAndPartition(samples []Sample, cfg Config) (Partitions, error) {
	if err := cfg.Validate(); err != nil {
		return Partitions{}, err
	}
	segments := SegmentSamples(samples, cfg.GapThreshold)
	parts, err := Partition(segments, cfg)
	if err != nil {
		return Partitions{}, fmt.Errorf("partition segments: %w", err)
	}
	return parts, nil
}

func newWindow(label, segment string, ordinal int, kind Kind, samples []Sample) Window {
	out := make([]Sample, len(samples))
	for i, s := range samples {
		s.Window = label
		out[i] = s
	}
	return Window{
		Label:   label,
		Segment: segment,
		Ordinal: ordinal,
		Kind:    kind,
		Samples: out,
	}
}
