// Package client - клиент TapSpot для консольных утилит и тестов: REST,
// живой канал с переподключением и опрос after_id.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"tapspot/apperr"
	"tapspot/models"
)

// APIError ответ сервера с кодом ошибки
type APIError struct {
	Status  int
	Code    apperr.Kind
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

const (
	defaultReconnectDelay = 3 * time.Second
	defaultPollInterval   = 5 * time.Second
	pollPageSize          = 100
)

type Client struct {
	baseURL string
	http    *http.Client

	// ReconnectDelay фиксированная пауза перед переподключением живого канала
	ReconnectDelay time.Duration
	// PollInterval период опроса after_id
	PollInterval time.Duration

	mu     sync.RWMutex
	token  string
	userID int64
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},

		ReconnectDelay: defaultReconnectDelay,
		PollInterval:   defaultPollInterval,
	}
}

// Token текущий токен сессии
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) UserID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

type session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (c *Client) Register(ctx context.Context, username, password string) (*models.User, error) {
	return c.authenticate(ctx, "/api/register", username, password)
}

func (c *Client) Login(ctx context.Context, username, password string) (*models.User, error) {
	return c.authenticate(ctx, "/api/login", username, password)
}

func (c *Client) authenticate(ctx context.Context, path, username, password string) (*models.User, error) {
	var s session
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, path, body, &s); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.token = s.Token
	c.userID = s.User.ID
	c.mu.Unlock()
	return &s.User, nil
}

func (c *Client) SendMessage(ctx context.Context, receiverID int64, content string) (*models.Message, error) {
	var msg models.Message
	body := map[string]interface{}{"receiver_id": receiverID, "content": content}
	if err := c.do(ctx, http.MethodPost, "/api/messages", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Messages сообщения с собеседником строго после afterID по возрастанию id
func (c *Client) Messages(ctx context.Context, peerID, afterID int64) ([]models.Message, error) {
	q := url.Values{}
	q.Set("after_id", strconv.FormatInt(afterID, 10))
	q.Set("limit", strconv.Itoa(pollPageSize))
	path := fmt.Sprintf("/api/conversations/%d/messages?%s", peerID, q.Encode())

	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/conversations/%d/read", conversationID), nil, nil)
}

func (c *Client) UnreadTotal(ctx context.Context) (int64, error) {
	var resp struct {
		Unread int64 `json:"unread"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/messages/unread", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Unread, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Message: string(data)}
		var e apperr.ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Code != "" {
			apiErr.Code = e.Code
			apiErr.Message = e.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
