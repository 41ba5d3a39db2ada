package events

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessages(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	msgs, err := messages([]Event{
		{Action: ChallengeCreated, ChallengeID: "c1", Name: "Warmup", Category: "misc", Source: "upload", OccurredAt: at},
		{Action: ChallengeUpdated, ChallengeID: "c2", Name: "Scaling", Category: "crypto", Source: "cli", OccurredAt: at},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "c1", string(msgs[0].Key))
	assert.JSONEq(t, `{
		"action": "challenge.created",
		"challenge_id": "c1",
		"name": "Warmup",
		"category": "misc",
		"source": "upload",
		"occurred_at": "2024-03-01T12:00:00Z"
	}`, string(msgs[0].Value))
	assert.Equal(t, "c2", string(msgs[1].Key))
}

func TestKafkaPublisher_NothingToPublish(t *testing.T) {
	p := NewKafkaPublisher([]string{"127.0.0.1:1"}, "challenge-events")
	defer p.Close()

	assert.NoError(t, p.Publish(context.Background()))
}

func TestKafkaPublisher_Integration(t *testing.T) {
	brokers := os.Getenv("PORTABLE_TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("PORTABLE_TEST_KAFKA_BROKERS not set")
	}
	topic := "portable-test-" + time.Now().Format("20060102150405")

	p := NewKafkaPublisher(strings.Split(brokers, ","), topic)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sent := Event{Action: ChallengeCreated, ChallengeID: "c1", Name: "Warmup", OccurredAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, p.Publish(ctx, sent))

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: strings.Split(brokers, ","), Topic: topic})
	defer r.Close()

	msg, err := r.ReadMessage(ctx)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, sent.ChallengeID, got.ChallengeID)
	assert.Equal(t, sent.Action, got.Action)
}
