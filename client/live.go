package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tapspot/models"
	"tapspot/services"
)

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws"
	q := u.Query()
	q.Set("token", c.Token())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Listen держит живой канал и отдаёт события в handle. После обрыва
// переподключается через ReconnectDelay, пока жив ctx.
func (c *Client) Listen(ctx context.Context, log *zap.Logger, handle func(services.Event)) error {
	for {
		err := c.listenOnce(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("live channel dropped, reconnecting",
			zap.Error(err), zap.Duration("delay", c.ReconnectDelay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.ReconnectDelay):
		}
	}
}

func (c *Client) listenOnce(ctx context.Context, handle func(services.Event)) error {
	target, err := c.wsURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var event services.Event
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		handle(event)
	}
}

// Follow выводит переписку с peerID: сообщения приходят живым каналом и
// опросом after_id раз в PollInterval, в out попадает каждое ровно один раз.
func (c *Client) Follow(ctx context.Context, log *zap.Logger, peerID int64, out func(models.Message)) error {
	inbox := NewInbox()
	var outMu sync.Mutex
	emit := func(msgs []models.Message) {
		outMu.Lock()
		defer outMu.Unlock()
		for _, m := range msgs {
			out(m)
		}
	}

	go func() {
		_ = c.Listen(ctx, log, func(event services.Event) {
			if event.Type != services.EventMessage || event.Message == nil {
				return
			}
			p := event.Message
			if p.SenderID != peerID && p.ReceiverID != peerID {
				return
			}
			emit(inbox.Merge(models.Message{
				ID:             p.ID,
				ConversationID: event.ConversationID,
				SenderID:       p.SenderID,
				Content:        p.Content,
				CreatedAt:      p.CreatedAt,
			}))
		})
	}()

	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for {
		if err := c.poll(ctx, peerID, inbox, emit); err != nil && ctx.Err() == nil {
			log.Warn("poll failed", zap.Int64("peer_id", peerID), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) poll(ctx context.Context, peerID int64, inbox *Inbox, emit func([]models.Message)) error {
	for {
		page, err := c.Messages(ctx, peerID, inbox.Cursor())
		if err != nil {
			return err
		}
		emit(inbox.MergePolled(page...))
		if len(page) < pollPageSize {
			return nil
		}
	}
}
