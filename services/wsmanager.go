package services

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"tapspot/logger"
)

// Registry - соединения живого канала по пользователям. Один пользователь
// может держать несколько соединений (вкладки, устройства).
type Registry struct {
	mu    sync.RWMutex
	users map[int64]map[*Client]struct{}
	log   *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		users: make(map[int64]map[*Client]struct{}),
		log:   log,
	}
}

func (r *Registry) Register(userID int64, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[*Client]struct{})
		r.users[userID] = conns
	}
	if _, exists := conns[c]; !exists {
		conns[c] = struct{}{}
		wsConnections.Inc()
	}
}

// Unregister убирает соединение; пустая запись пользователя удаляется
func (r *Registry) Unregister(userID int64, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.users[userID]
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	wsConnections.Dec()
	if len(conns) == 0 {
		delete(r.users, userID)
	}
}

// Send кладет событие в очереди всех соединений пользователя.
// Возвращает true, если хотя бы одно соединение его приняло.
// Соединение с переполненной очередью закрывается.
func (r *Registry) Send(userID int64, event Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		r.log.Error("marshal event", zap.Error(err))
		return false
	}

	r.mu.RLock()
	clients := make([]*Client, 0, len(r.users[userID]))
	for c := range r.users[userID] {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	delivered := false
	for _, c := range clients {
		if c.enqueue(data) {
			delivered = true
			continue
		}
		r.log.Warn("dropping slow websocket client", logger.UserID(userID))
		r.Unregister(userID, c)
		c.Close()
	}
	return delivered
}

func (r *Registry) Online(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// Connections общее число соединений
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, conns := range r.users {
		total += len(conns)
	}
	return total
}

// CloseAll закрывает все соединения при остановке сервера
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, conns := range r.users {
		for c := range conns {
			c.Close()
			wsConnections.Dec()
		}
		delete(r.users, userID)
	}
}
