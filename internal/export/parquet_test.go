package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"example.com/swimlog/internal/domain"
)

func TestParquetRoundTrip(t *testing.T) {
	hr := 141
	activities := []domain.Activity{
		{
			ID:              "a1",
			Date:            time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC),
			LocationName:    "Clube",
			LocationType:    domain.LocationPool,
			DurationMinutes: 20,
			Distance:        1000,
			Feeling:         domain.FeelingGood,
			HeartRateAvg:    &hr,
			Intervals:       []domain.Interval{{Distance: 500}, {Distance: 500}},
		},
		{ID: "a2", DurationMinutes: 30, Feeling: domain.FeelingRegular},
	}

	data, err := Parquet(activities)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	pr, err := reader.NewParquetReader(parquetbuffer.NewBufferFileFromBytes(data), new(Row), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.EqualValues(t, 2, pr.GetNumRows())
	rows := make([]Row, 2)
	require.NoError(t, pr.Read(&rows))

	require.Equal(t, "a1", rows[0].ActivityID)
	require.Equal(t, "2024-01-10", rows[0].Date)
	require.Equal(t, "2:00", rows[0].Pace)
	require.EqualValues(t, 120, rows[0].PaceSeconds)
	require.EqualValues(t, 2, rows[0].IntervalCount)
	require.NotNil(t, rows[0].HeartRateAvg)
	require.EqualValues(t, 141, *rows[0].HeartRateAvg)
	require.Nil(t, rows[0].HeartRateMax)

	require.Equal(t, "a2", rows[1].ActivityID)
	require.Empty(t, rows[1].Date)
	require.Equal(t, "0:00", rows[1].Pace)
}
