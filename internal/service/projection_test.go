package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-booking/internal/model"
)

func TestSummarizeConversations(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sid := "s-1"
	msgs := []model.Message{
		{ID: "1", ConversationID: "b-1", Kind: model.ConversationBooking, Sender: model.SenderClient, CreatedAt: t0},
		{ID: "2", ConversationID: "b-2", Kind: model.ConversationBooking, Sender: model.SenderClient, CreatedAt: t0.Add(time.Minute)},
		{ID: "3", ConversationID: "b-1", Kind: model.ConversationBooking, Sender: model.SenderOwner, CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "4", ConversationID: "b-2", Kind: model.ConversationBooking, Sender: model.SenderClient, IsRead: true, CreatedAt: t0.Add(30 * time.Second)},
		{ID: "5", ConversationID: "s-1", Kind: model.ConversationSession, SessionID: &sid, Sender: model.SenderUser, CreatedAt: t0.Add(time.Hour)},
	}

	out := SummarizeConversations(msgs, model.SenderOwner)
	require.Len(t, out, 2)
	assert.Equal(t, "b-1", out[0].ConversationID)
	assert.Equal(t, "3", out[0].Last.ID)
	assert.Equal(t, 1, out[0].Unread)
	assert.Equal(t, "b-2", out[1].ConversationID)
	assert.Equal(t, "2", out[1].Last.ID, "latest by time, not by position")
	assert.Equal(t, 1, out[1].Unread)

	assert.Empty(t, SummarizeConversations(nil, model.SenderOwner))
}

func TestSummarizeConversationsTies(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		{ID: "1", ConversationID: "b-2", Kind: model.ConversationBooking, Sender: model.SenderSystem, CreatedAt: t0},
		{ID: "2", ConversationID: "b-1", Kind: model.ConversationBooking, Sender: model.SenderSystem, CreatedAt: t0},
		{ID: "3", ConversationID: "b-1", Kind: model.ConversationBooking, Sender: model.SenderSystem, CreatedAt: t0},
	}
	out := SummarizeConversations(msgs, model.SenderOwner)
	require.Len(t, out, 2)
	assert.Equal(t, "b-1", out[0].ConversationID)
	assert.Equal(t, "3", out[0].Last.ID)
	assert.Zero(t, out[0].Unread, "system messages are never unread")
}

func TestLatestPaymentConfirmation(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		{ID: "1", MessageType: model.MessagePaymentConfirmation, PaymentDetails: &model.PaymentDetails{AmountPaid: 100, TotalAmount: 100}, CreatedAt: t0},
		{ID: "2", MessageType: model.MessagePaymentConfirmation, PaymentDetails: &model.PaymentDetails{AmountPaid: 40, TotalAmount: 100}, CreatedAt: t0.Add(time.Minute)},
		{ID: "3", MessageType: model.MessagePaymentConfirmation, CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "4", MessageType: model.MessageText, CreatedAt: t0.Add(3 * time.Minute)},
	}
	got := latestPaymentConfirmation(msgs)
	require.NotNil(t, got)
	assert.Equal(t, "2", got.ID)
	assert.Nil(t, latestPaymentConfirmation(msgs[2:]))
}
