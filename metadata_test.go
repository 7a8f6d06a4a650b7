package gtfsgeneral

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedMetadata(t *testing.T) {
	meta, err := FeedMetadata(sampleFeed(t))
	require.NoError(t, err)

	assert.Equal(t, ServiceRange{
		Start:       20240101,
		LatestStart: 20240106,
		End:         20240131,
	}, meta.ServiceRange)
	assert.Equal(t, 2, meta.Services)
	assert.Equal(t, 3, meta.RowCounts["trips"])
	assert.Equal(t, 5, meta.RowCounts["stop_times"])
}

func TestFeedMetadataLatestStartFromExceptionOnlyService(t *testing.T) {
	feed := calendarFeed(t, `
service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date
DAILY,1,1,1,1,1,1,1,20240101,20240110
`, `
service_id,date,exception_type
LATE,20240120,1
`)

	meta, err := FeedMetadata(feed)
	require.NoError(t, err)

	assert.Equal(t, ServiceRange{
		Start:       20240101,
		LatestStart: 20240120,
		End:         20240120,
	}, meta.ServiceRange)
}

func TestFeedMetadataEmptyFeed(t *testing.T) {
	feed := calendarFeed(t, `
service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date
NEVER,0,0,0,0,0,0,0,20240101,20240131
`, "")

	_, err := FeedMetadata(feed)
	assert.ErrorIs(t, err, ErrEmptyFeed)
}

func TestMetadataRender(t *testing.T) {
	meta, err := FeedMetadata(sampleFeed(t))
	require.NoError(t, err)

	rendered := meta.Render()
	assert.Contains(t, rendered, "service range:\t2024-01-01 (latest start 2024-01-06) to 2024-01-31")
	assert.Contains(t, rendered, "services:\t2")
	assert.Contains(t, rendered, "trips:\t3 rows")
}
