package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"univmarket/internal/domain/entity"
	"univmarket/pkg/errors"
	"univmarket/pkg/response"
)

// Client talks to the chat REST API. It is the fallback path of a room session.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchRoomMeta returns the room with the authoritative product status.
func (c *Client) FetchRoomMeta(ctx context.Context, roomID string) (*entity.ChatRoom, error) {
	var room entity.ChatRoom
	if err := c.get(ctx, "/v1/chat/rooms/"+url.PathEscape(roomID), &room); err != nil {
		return nil, errors.FetchFailed("could not load chat room", fmt.Errorf("client.FetchRoomMeta: %w", err))
	}
	return &room, nil
}

// FetchMessages returns the room's full history, oldest first.
func (c *Client) FetchMessages(ctx context.Context, roomID string) ([]entity.Message, error) {
	var messages []entity.Message
	if err := c.get(ctx, "/v1/chat/rooms/"+url.PathEscape(roomID)+"/messages", &messages); err != nil {
		return nil, errors.FetchFailed("could not load messages", fmt.Errorf("client.FetchMessages: %w", err))
	}
	return messages, nil
}

func (c *Client) SendMessageFallback(ctx context.Context, roomID, content string) (*entity.Message, error) {
	var message entity.Message
	body := map[string]string{"content": content}
	if err := c.post(ctx, "/v1/chat/rooms/"+url.PathEscape(roomID)+"/messages", body, &message); err != nil {
		return nil, fmt.Errorf("client.SendMessageFallback: %w", asAppError(err))
	}
	return &message, nil
}

func (c *Client) RequestReserve(ctx context.Context, productID string) error {
	if err := c.doRequest(ctx, http.MethodPut, "/v1/products/"+url.PathEscape(productID)+"/reserve", nil, nil); err != nil {
		return fmt.Errorf("client.RequestReserve: %w", asAppError(err))
	}
	return nil
}

func (c *Client) RequestComplete(ctx context.Context, productID string) error {
	if err := c.doRequest(ctx, http.MethodPut, "/v1/products/"+url.PathEscape(productID)+"/complete", nil, nil); err != nil {
		return fmt.Errorf("client.RequestComplete: %w", asAppError(err))
	}
	return nil
}

// OpenChatRoom opens the caller's room for a product, or returns the existing one.
func (c *Client) OpenChatRoom(ctx context.Context, productID string) (*entity.ChatRoom, error) {
	var room entity.ChatRoom
	if err := c.post(ctx, "/v1/chat/rooms", map[string]string{"product_id": productID}, &room); err != nil {
		return nil, fmt.Errorf("client.OpenChatRoom: %w", asAppError(err))
	}
	return &room, nil
}

// ListChatRooms returns the first page (up to 100) of the caller's rooms, newest first.
func (c *Client) ListChatRooms(ctx context.Context) ([]entity.ChatRoom, error) {
	var page struct {
		Items []entity.ChatRoom `json:"items"`
	}
	if err := c.get(ctx, "/v1/chat/rooms?limit=100", &page); err != nil {
		return nil, fmt.Errorf("client.ListChatRooms: %w", asAppError(err))
	}
	return page.Items, nil
}

// Me returns the caller's profile.
func (c *Client) Me(ctx context.Context) (*entity.User, error) {
	var user entity.User
	if err := c.get(ctx, "/v1/users/me", &user); err != nil {
		return nil, fmt.Errorf("client.Me: %w", asAppError(err))
	}
	return &user, nil
}

// asAppError turns an API error response back into the server's AppError code.
func asAppError(err error) error {
	var httpErr *HTTPError
	if !stderrors.As(err, &httpErr) {
		return err
	}
	switch httpErr.Code {
	case errors.CodeTransitionRejected, errors.CodeConflict:
		return errors.TransitionRejected(httpErr.Message, err)
	case "":
		return errors.New(errors.CodeInternal, httpErr.Message, httpErr.StatusCode, err)
	}
	return errors.New(httpErr.Code, httpErr.Message, httpErr.StatusCode, err)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var env response.Envelope
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode >= 400 {
		if decodeErr == nil && env.Error != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out == nil {
		return nil
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if !env.Success {
		return fmt.Errorf("decode response: envelope not successful")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
