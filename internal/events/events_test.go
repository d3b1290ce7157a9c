package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	msg, err := Encode("page-1", map[string]string{"kind": "view"})
	require.NoError(t, err)
	assert.Equal(t, []byte("page-1"), msg.Key)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "view", decoded["kind"])
}

func TestEncodeRejectsUnsupportedPayload(t *testing.T) {
	_, err := Encode("k", make(chan int))
	assert.Error(t, err)
}

func TestNewPublisherWithoutBrokers(t *testing.T) {
	p := NewPublisher(nil, "topic")
	_, ok := p.(NopPublisher)
	require.True(t, ok)
	assert.NoError(t, p.Publish(context.Background(), "k", struct{}{}))
	assert.NoError(t, p.PublishBatch(context.Background(), []Message{{Key: "k", Payload: 1}}))
	assert.NoError(t, p.Close())
}

func TestNewPublisherWithBrokers(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, "hits")
	kp, ok := p.(*KafkaPublisher)
	require.True(t, ok)
	assert.Equal(t, "hits", kp.writer.Topic)
	assert.NoError(t, kp.Close())
}
