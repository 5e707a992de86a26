package pipeline

import (
	"fmt"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lucasjlepore/activity-harmonics/harmonics"
)

// featureSchema describes the wide feature layout: metadata columns followed by
// one DOUBLE column per feature. Absent features are written as NaN.
func featureSchema(columns []string) []string {
	md := []string{
		"name=window, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY",
		"name=group, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY",
		"name=segment, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY",
		"name=detail, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY",
		"name=index, type=INT64",
		"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS",
	}
	for _, col := range columns {
		md = append(md, fmt.Sprintf("name=%s, type=DOUBLE", col))
	}
	return md
}

func writeFeatures(fw source.ParquetFile, table *harmonics.FeatureTable) error {
	pw, err := writer.NewCSVWriter(featureSchema(table.Columns), fw, 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range table.Rows {
		rec := make([]interface{}, 0, len(featureMetaColumns)+len(table.Columns))
		rec = append(rec, r.Window, r.Group, r.Segment, r.Detail, int64(r.Index), r.Timestamp.UnixMilli())
		for _, col := range table.Columns {
			rec = append(rec, valueOrNaN(r.Values, col))
		}
		if err := pw.Write(rec); err != nil {
			_ = pw.WriteStop()
			return err
		}
	}
	return pw.WriteStop()
}

func writeFeaturesParquet(path string, table *harmonics.FeatureTable) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	if err := writeFeatures(fw, table); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

// MarshalFeaturesParquet encodes table as an in-memory parquet file.
func MarshalFeaturesParquet(table *harmonics.FeatureTable) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	if err := writeFeatures(fw, table); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}
