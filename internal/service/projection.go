package service

import (
	"sort"

	"github.com/iliyamo/venue-booking/internal/model"
)

// SummarizeConversations builds the staff chat overview: one entry per
// booking conversation holding its latest message, newest conversation
// first.  Unread counts the opposite party's unread messages as seen by
// viewer.  Session-chat messages are ignored.
func SummarizeConversations(msgs []model.Message, viewer model.SenderRole) []model.ConversationSummary {
	other, hasOther := viewer.Opposite()
	byID := make(map[string]*model.ConversationSummary)
	for _, m := range msgs {
		if m.SessionID != nil || m.Kind == model.ConversationSession {
			continue
		}
		sum, ok := byID[m.ConversationID]
		if !ok {
			sum = &model.ConversationSummary{ConversationID: m.ConversationID, Last: m}
			byID[m.ConversationID] = sum
		} else if !m.CreatedAt.Before(sum.Last.CreatedAt) {
			// input is in creation order, so ties go to the later entry
			sum.Last = m
		}
		if hasOther && m.Sender == other && !m.IsRead {
			sum.Unread++
		}
	}

	out := make([]model.ConversationSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Last.CreatedAt, out[j].Last.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	return out
}

// latestPaymentConfirmation returns the newest payment-confirmation with
// details, or nil.
func latestPaymentConfirmation(msgs []model.Message) *model.Message {
	var last *model.Message
	for i := range msgs {
		m := &msgs[i]
		if m.MessageType != model.MessagePaymentConfirmation || m.PaymentDetails == nil {
			continue
		}
		if last == nil || !m.CreatedAt.Before(last.CreatedAt) {
			last = m
		}
	}
	return last
}
