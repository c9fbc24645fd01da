package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/jonathan/job-monitor/internal/schemas"
	"github.com/jonathan/job-monitor/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func TestEncodePostingEvent(t *testing.T) {
	p := SamplePosting()
	data, err := EncodePostingEvent(p, fixedNow)
	require.NoError(t, err)

	var got PostingEvent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, EventPosting, got.Type)
	assert.Equal(t, "test:test-notification", got.Identity)
	assert.Equal(t, p, got.Posting)
	assert.True(t, fixedNow.Equal(got.DetectedAt))
}

func TestEncodePostingEvent_RejectsInvalidPosting(t *testing.T) {
	p := SamplePosting()
	p.Source = ""
	_, err := EncodePostingEvent(p, fixedNow)

	var validationErr *schemas.ValidationError
	require.True(t, errors.As(err, &validationErr), "got %T: %v", err, err)
}

func TestEncodeBatchEvent_RejectsEmptyBatch(t *testing.T) {
	_, err := EncodeBatchEvent(nil, fixedNow)
	require.Error(t, err)
}

func TestRedis_PublishesOneBatchEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	pub := NewMockPublisher(ctrl)
	sink := NewRedis(pub, "job-monitor.postings")
	sink.now = func() time.Time { return fixedNow }

	postings := samplePostings(3)
	pub.EXPECT().
		Publish(gomock.Any(), "job-monitor.postings", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, message interface{}) *redis.IntCmd {
			data, ok := message.([]byte)
			require.True(t, ok)
			var got BatchEvent
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, EventPostingBatch, got.Type)
			assert.Equal(t, 3, got.Count)
			assert.Equal(t, postings, got.Postings)
			return redis.NewIntResult(1, nil)
		})

	require.NoError(t, sink.Notify(context.Background(), postings))
	assert.Equal(t, "redis", sink.Name())
}

func TestRedis_PublishError(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	pub := NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), "ch", gomock.Any()).Return(redis.NewIntResult(0, errors.New("connection refused")))

	err := NewRedis(pub, "ch").Notify(context.Background(), samplePostings(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKafka_WritesOneMessagePerPosting(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := NewMockMessageWriter(ctrl)
	sink := NewKafkaWithWriter(writer)
	sink.now = func() time.Time { return fixedNow }

	postings := []types.Posting{
		{ExternalID: "1", Source: "indeed", Title: "A", Company: "Co", Location: "Remote"},
		{ExternalID: "2", Source: "linkedin", Title: "B", Company: "Co", Location: "Remote"},
	}

	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kafka.Message) error {
			require.Len(t, msgs, 2)
			assert.Equal(t, "indeed:1", string(msgs[0].Key))
			assert.Equal(t, "linkedin:2", string(msgs[1].Key))

			var got PostingEvent
			require.NoError(t, json.Unmarshal(msgs[1].Value, &got))
			assert.Equal(t, postings[1], got.Posting)
			assert.True(t, fixedNow.Equal(msgs[1].Time))
			return nil
		})

	require.NoError(t, sink.Notify(context.Background(), postings))
}

func TestKafka_WriteError(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := NewMockMessageWriter(ctrl)
	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("leader not available"))
	writer.EXPECT().Close().Return(nil)

	sink := NewKafkaWithWriter(writer)
	err := sink.Notify(context.Background(), samplePostings(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.NoError(t, sink.Close())
}
