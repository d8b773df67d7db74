package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistrySendToAllSessions(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	tab1 := NewClient(1, nil, 4)
	tab2 := NewClient(1, nil, 4)
	other := NewClient(2, nil, 4)
	registry.Register(1, tab1)
	registry.Register(1, tab2)
	registry.Register(2, other)
	assert.Equal(t, 3, registry.Connections())

	assert.True(t, registry.Send(1, Event{Type: EventPong}))
	for _, c := range []*Client{tab1, tab2} {
		require.Len(t, c.send, 1)
		var got Event
		require.NoError(t, json.Unmarshal(<-c.send, &got))
		assert.Equal(t, EventPong, got.Type)
	}
	assert.Empty(t, other.send)

	assert.False(t, registry.Send(42, Event{Type: EventPong}), "offline user")
}

func TestRegistryDropsSlowClient(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	slow := NewClient(1, nil, 1)
	registry.Register(1, slow)

	assert.True(t, registry.Send(1, Event{Type: EventPong}))
	// очередь полна: соединение закрывается и убирается
	assert.False(t, registry.Send(1, Event{Type: EventPong}))
	assert.False(t, registry.Online(1))

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow client must be closed")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	c := NewClient(1, nil, 1)
	registry.Register(1, c)
	registry.CloseAll()

	assert.Zero(t, registry.Connections())
	assert.False(t, c.Push(Event{Type: EventPong}), "closed client rejects events")
	// повторное снятие безопасно
	registry.Unregister(1, c)
}
