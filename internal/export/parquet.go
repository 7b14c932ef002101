// Package export writes activity history as Parquet for offline analysis.
package export

import (
	"fmt"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"example.com/swimlog/internal/domain"
)

// ContentType is the media type served for Parquet downloads.
const ContentType = "application/vnd.apache.parquet"

// Row is the Parquet layout of one activity.
type Row struct {
	ActivityID      string `parquet:"name=activity_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date            string `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	LocationName    string `parquet:"name=location_name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	LocationType    string `parquet:"name=location_type, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	DurationMinutes int32  `parquet:"name=duration_minutes, type=INT32"`
	Distance        int32  `parquet:"name=distance, type=INT32"`
	PaceSeconds     int32  `parquet:"name=pace_seconds, type=INT32"`
	Pace            string `parquet:"name=pace, type=BYTE_ARRAY, convertedtype=UTF8"`
	Feeling         string `parquet:"name=feeling, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	HeartRateAvg    *int32 `parquet:"name=heart_rate_avg, type=INT32, repetitiontype=OPTIONAL"`
	HeartRateMax    *int32 `parquet:"name=heart_rate_max, type=INT32, repetitiontype=OPTIONAL"`
	IntervalCount   int32  `parquet:"name=interval_count, type=INT32"`
	Notes           string `parquet:"name=notes, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// NewRow flattens an activity. Undated activities get an empty date.
func NewRow(a domain.Activity) Row {
	row := Row{
		ActivityID:      a.ID,
		LocationName:    a.LocationName,
		LocationType:    string(a.LocationType),
		DurationMinutes: int32(a.DurationMinutes),
		Distance:        int32(a.Distance),
		PaceSeconds:     int32(domain.PaceSeconds(a.Distance, a.DurationMinutes)),
		Pace:            a.Pace(),
		Feeling:         string(a.Feeling),
		HeartRateAvg:    optionalInt32(a.HeartRateAvg),
		HeartRateMax:    optionalInt32(a.HeartRateMax),
		IntervalCount:   int32(len(a.Intervals)),
		Notes:           a.Notes,
	}
	if !a.Date.IsZero() {
		row.Date = a.Date.Format("2006-01-02")
	}
	return row
}

// Parquet encodes activities in the given order as a Snappy-compressed Parquet file.
func Parquet(activities []domain.Activity) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(Row), 4)
	if err != nil {
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, a := range activities {
		if err := pw.Write(NewRow(a)); err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("write activity %s: %w", a.ID, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func optionalInt32(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}
