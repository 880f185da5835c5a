package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-booking/internal/model"
)

type captureMailer struct {
	sent []model.Email
	err  error
}

func (c *captureMailer) Send(_ context.Context, e model.Email) error {
	c.sent = append(c.sent, e)
	return c.err
}

func TestHandleDelivery(t *testing.T) {
	m := &captureMailer{}
	err := handleDelivery(context.Background(), []byte(`{"to":"g@example.com","subject":"Hi","body":"There"}`), m)
	require.NoError(t, err)
	require.Len(t, m.sent, 1)
	assert.Equal(t, model.Email{To: "g@example.com", Subject: "Hi", Body: "There"}, m.sent[0])
}

func TestHandleDeliveryRejects(t *testing.T) {
	m := &captureMailer{}
	assert.Error(t, handleDelivery(context.Background(), []byte(`not json`), m))
	assert.Error(t, handleDelivery(context.Background(), []byte(`{"subject":"x"}`), m))
	assert.Empty(t, m.sent)

	m.err = errors.New("smtp down")
	assert.ErrorIs(t, handleDelivery(context.Background(), []byte(`{"to":"a@b.c"}`), m), m.err)
}

func TestRunEmailConsumerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, RunEmailConsumer(ctx, "amqp://invalid:0/", &captureMailer{}, nil))
}
