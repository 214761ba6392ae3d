package events

//go:generate mockgen -source=events.go -destination=mocks/mocks.go -package=mocks Publisher,Sender

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"bobinator/internal/platform/kafka/producer"
	"bobinator/internal/verification/events/mocks"
	"bobinator/internal/verification/models"
	id "bobinator/pkg/domain"
)

func TestKafkaPublisher_Publish(t *testing.T) {
	entry := models.LogEntry{
		ID:             id.NewLogEntryID(),
		ProviderID:     id.NewProviderID(),
		CredentialType: models.CredentialLicense,
		Result:         models.ResultVerified,
		Details:        "ACTIVE",
		CheckedAt:      time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}

	t.Run("keys by provider and encodes the entry", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sender := mocks.NewMockSender(ctrl)
		var sent *producer.Message
		sender.EXPECT().ProduceAsync(gomock.Any()).DoAndReturn(func(msg *producer.Message) error {
			sent = msg
			return nil
		})

		err := NewKafkaPublisher(sender, "", nil).Publish(context.Background(), entry)

		require.NoError(t, err)
		require.NotNil(t, sent)
		assert.Equal(t, DefaultTopic, sent.Topic)
		assert.Equal(t, entry.ProviderID.String(), string(sent.Key))
		assert.Equal(t, "license", sent.Headers["credential_type"])

		var evt Event
		require.NoError(t, json.Unmarshal(sent.Value, &evt))
		assert.Equal(t, TypeVerificationRecorded, evt.Type)
		assert.Equal(t, entry.ID, evt.LogEntryID)
		assert.Equal(t, entry.ProviderID, evt.ProviderID)
		assert.Equal(t, models.ResultVerified, evt.Result)
		assert.Equal(t, "ACTIVE", evt.Details)
		assert.True(t, entry.CheckedAt.Equal(evt.CheckedAt))
		assert.NotEmpty(t, evt.EventID)
	})

	t.Run("producer errors are returned", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sender := mocks.NewMockSender(ctrl)
		sender.EXPECT().ProduceAsync(gomock.Any()).Return(producer.ErrClosed)

		err := NewKafkaPublisher(sender, "custom.topic", nil).Publish(context.Background(), entry)

		assert.True(t, errors.Is(err, producer.ErrClosed))
	})
}

func TestNoopPublisher(t *testing.T) {
	assert.NoError(t, NoopPublisher{}.Publish(context.Background(), models.LogEntry{}))
}
