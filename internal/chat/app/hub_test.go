package app

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/pkg/logger"
)

// drain reads every queued payload without blocking.
func drain(t *testing.T, c *Client) []domain.Event {
	t.Helper()
	var out []domain.Event
	for {
		select {
		case payload := <-c.send:
			var evt domain.Event
			require.NoError(t, json.Unmarshal(payload, &evt))
			out = append(out, evt)
		default:
			return out
		}
	}
}

func TestHub_ToUserReachesEveryDevice(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()

	dev1 := NewClient("user-a", nil)
	dev2 := NewClient("user-a", nil)
	other := NewClient("user-b", nil)
	hub.Register(dev1)
	hub.Register(dev2)
	hub.Register(other)

	hub.ToUser("user-a", domain.Event{Event: domain.EventUserOnline})

	assert.Len(t, drain(t, dev1), 1)
	assert.Len(t, drain(t, dev2), 1)
	assert.Empty(t, drain(t, other))
}

func TestHub_ToConversationExcludesOrigin(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()

	origin := NewClient("user-a", nil)
	peer := NewClient("user-b", nil)
	outsider := NewClient("user-c", nil)
	hub.Register(origin)
	hub.Register(peer)
	hub.Register(outsider)
	hub.Join("conv-1", origin)
	hub.Join("conv-1", peer)

	hub.ToConversation("conv-1", domain.Event{Event: domain.EventUserTyping}, origin.ID)

	assert.Empty(t, drain(t, origin), "originating connection is excluded")
	assert.Len(t, drain(t, peer), 1)
	assert.Empty(t, drain(t, outsider), "non-subscribers get nothing")
}

func TestHub_JoinIdempotent(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()

	c := NewClient("user-a", nil)
	hub.Register(c)
	hub.Join("conv-1", c)
	hub.Join("conv-1", c)

	hub.ToConversation("conv-1", domain.Event{Event: domain.EventMessage}, "")
	assert.Len(t, drain(t, c), 1, "duplicate join must not duplicate delivery")
}

func TestClient_SendOnFullBufferClosesWithoutBlocking(t *testing.T) {
	logger.SetNewNop()
	c := NewClient("user-a", nil)
	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, c.Send([]byte("queued")))
	}

	result := make(chan error, 1)
	go func() { result <- c.Send([]byte("overflow")) }()

	select {
	case err := <-result:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Send stalled on a full buffer")
	}

	// The overflow closed the connection, later sends are refused.
	assert.Error(t, c.Send([]byte("after close")))
}

func TestHub_UnregisterStopsDelivery(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub()

	c := NewClient("user-a", nil)
	hub.Register(c)
	hub.Join("conv-1", c)
	hub.Unregister(c)

	hub.ToUser("user-a", domain.Event{Event: domain.EventMessage})
	hub.ToConversation("conv-1", domain.Event{Event: domain.EventMessage}, "")
	hub.Everyone(domain.Event{Event: domain.EventMessage})

	assert.Empty(t, drain(t, c))
}
