package realtime

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeHandle(t *testing.T) {
	r := NewRouter(nil)
	c := NewConn(8)
	key := SessionChannel("s-1")
	require.NoError(t, r.Subscribe(c, key))

	local := NewRedisBridge(nil, nil)
	remote := NewRedisBridge(nil, nil)
	body := func(origin, channel string) []byte {
		raw, err := json.Marshal(envelope{
			Origin:  origin,
			Channel: channel,
			Kind:    EventMessage,
			Payload: json.RawMessage(`{"id":"m-1"}`),
			At:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		return raw
	}

	local.handle(r, body(local.instance, key.String()))
	assert.Empty(t, drain(c), "own echo is skipped")

	local.handle(r, body(remote.instance, key.String()))
	evs := drain(c)
	require.Len(t, evs, 1)
	assert.Equal(t, EventMessage, evs[0].Kind)
	assert.JSONEq(t, `{"id":"m-1"}`, string(evs[0].Payload.(json.RawMessage)))

	local.handle(r, body(remote.instance, "bogus"))
	local.handle(r, []byte("{"))
	assert.Empty(t, drain(c))
}
