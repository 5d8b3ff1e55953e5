package intake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazankay/eventpipe/internal/model"
	"github.com/kazankay/eventpipe/pkg/config"
)

type fakeSink struct {
	posts []model.RawPost
	err   error
}

func (f *fakeSink) InsertRawPost(ctx context.Context, post model.RawPost) error {
	if f.err != nil {
		return f.err
	}
	f.posts = append(f.posts, post)
	return nil
}

func testConsumer(sink PostSink) *Consumer {
	return New(config.KafkaConfig{
		Brokers:       []string{"localhost:9092"},
		ConsumerGroup: "test",
		RawPostsTopic: "raw-posts",
	}, sink)
}

func TestHandleMessage_LandsValidPost(t *testing.T) {
	sink := &fakeSink{}
	c := testConsumer(sink)

	err := c.handleMessage(context.Background(), []byte("kazankay/42"),
		[]byte(`{"channel": "kazankay", "post_id": 42, "text": "Концерт 15 декабря"}`))

	require.NoError(t, err)
	require.Len(t, sink.posts, 1)
	assert.Equal(t, "kazankay", sink.posts[0].Channel)
	assert.Equal(t, int64(42), sink.posts[0].PostID)
}

func TestHandleMessage_DropsMalformedJSON(t *testing.T) {
	sink := &fakeSink{}
	c := testConsumer(sink)

	err := c.handleMessage(context.Background(), nil, []byte("не json"))

	assert.NoError(t, err, "malformed payloads must be committed, not redelivered")
	assert.Empty(t, sink.posts)
}

func TestHandleMessage_DropsInvalidPost(t *testing.T) {
	sink := &fakeSink{}
	c := testConsumer(sink)

	err := c.handleMessage(context.Background(), nil, []byte(`{"channel": "", "post_id": 1, "text": "x"}`))

	assert.NoError(t, err)
	assert.Empty(t, sink.posts)
}

func TestHandleMessage_StoreErrorRedelivers(t *testing.T) {
	sink := &fakeSink{err: errors.New("db down")}
	c := testConsumer(sink)

	err := c.handleMessage(context.Background(), nil,
		[]byte(`{"channel": "kazankay", "post_id": 42, "text": "Концерт"}`))

	assert.Error(t, err, "storage failures must leave the message uncommitted")
}
