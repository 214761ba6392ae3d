//go:build integration

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"bobinator/internal/platform/kafka/producer"
	"bobinator/internal/verification/models"
	id "bobinator/pkg/domain"
	"bobinator/pkg/testutil/containers"
)

func TestKafkaPublisher_Integration(t *testing.T) {
	kc := containers.GetManager().GetKafka(t)
	ctx := context.Background()
	topic := "verification.events.it"
	require.NoError(t, kc.CreateTopic(ctx, topic, 1, 1))

	p, err := producer.New(producer.DefaultConfig(kc.Brokers), slog.Default())
	require.NoError(t, err)
	defer p.Close()

	entry := models.LogEntry{
		ID:             id.NewLogEntryID(),
		ProviderID:     id.NewProviderID(),
		CredentialType: models.CredentialBond,
		Result:         models.ResultExpired,
		Details:        "Expires: 2025-01-01",
		CheckedAt:      time.Now().UTC(),
	}
	require.NoError(t, NewKafkaPublisher(p, topic, nil).Publish(ctx, entry))

	consumer, err := kc.NewConsumer(ctx, "events-it", topic)
	require.NoError(t, err)
	defer consumer.Close()

	rec := kc.WaitForMessage(ctx, consumer, 30*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == entry.ProviderID.String()
	})
	require.NotNil(t, rec)

	var evt Event
	require.NoError(t, json.Unmarshal(rec.Value, &evt))
	assert.Equal(t, entry.ID, evt.LogEntryID)
	assert.Equal(t, models.ResultExpired, evt.Result)
}
