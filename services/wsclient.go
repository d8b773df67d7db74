package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 4096
)

// Client - одно WebSocket-соединение пользователя. Писать в conn может
// только WritePump, остальные кладут данные в send.
type Client struct {
	userID int64
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func NewClient(userID int64, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) UserID() int64 {
	return c.userID
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Push отправляет событие только в это соединение
func (c *Client) Push(event Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return false
	}
	return c.enqueue(data)
}

// Close останавливает WritePump; повторный вызов безопасен
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Done закрывается, когда соединение остановлено
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// WritePump пишет очередь в сокет и шлёт ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump читает входящие кадры до ошибки или закрытия
func (c *Client) ReadPump(handle func(data []byte)) error {
	c.conn.SetReadLimit(maxFrameSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(data)
	}
}
