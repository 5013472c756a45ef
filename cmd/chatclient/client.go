package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/satriahrh/obrolan/server/internal/api"
	ws "github.com/satriahrh/obrolan/server/internal/websocket"
)

// Client calls the chat server's HTTP and websocket endpoints
type Client struct {
	baseURL   string
	sessionID string
	token     string
	http      *http.Client
}

// NewClient creates a new client for the server at baseURL
func NewClient(baseURL, sessionID, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		sessionID: sessionID,
		token:     token,
		http:      &http.Client{Timeout: timeout},
	}
}

// Ask sends prompt to the blocking endpoint
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/chatbot", api.ChatRequest{Prompt: prompt}, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body api.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode reply: %w", err)
	}
	return body.Reply, nil
}

// AskStream sends prompt to the streaming endpoint and passes every data
// frame to onFragment. An error event ends the stream with an error.
func (c *Client) AskStream(ctx context.Context, prompt string, onFragment func(string) error) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/chatbot/stream", api.ChatRequest{Prompt: prompt}, "text/event-stream")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var reply strings.Builder
	err = readEvents(resp.Body, func(event, data string) error {
		if event == "error" {
			return decodeServerError(data)
		}
		reply.WriteString(data)
		return onFragment(data)
	})
	return reply.String(), err
}

// AskWebSocket sends prompt over a websocket and passes every fragment to
// onFragment until the server reports done.
func (c *Client) AskWebSocket(ctx context.Context, prompt string, onFragment func(string) error) (string, error) {
	wsURL, err := url.Parse(c.baseURL + "/chatbot/ws")
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), c.headers())
	if err != nil {
		if resp != nil {
			return "", fmt.Errorf("websocket connection failed with status %d: %w", resp.StatusCode, err)
		}
		return "", fmt.Errorf("websocket connection failed: %w", err)
	}
	defer conn.Close()

	if c.http.Timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.http.Timeout))
	}

	if err := conn.WriteJSON(ws.PromptMessage{BaseMessage: ws.BaseMessage{Type: ws.MessageTypePrompt}, Prompt: prompt}); err != nil {
		return "", fmt.Errorf("failed to send prompt: %w", err)
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("failed to read message: %w", err)
		}

		var base ws.BaseMessage
		if err := json.Unmarshal(payload, &base); err != nil {
			return "", fmt.Errorf("invalid message from server: %w", err)
		}

		switch base.Type {
		case ws.MessageTypeFragment:
			var fragment ws.FragmentMessage
			if err := json.Unmarshal(payload, &fragment); err != nil {
				return "", fmt.Errorf("invalid fragment: %w", err)
			}
			if err := onFragment(fragment.Data); err != nil {
				return "", err
			}
		case ws.MessageTypeDone:
			var done ws.DoneMessage
			if err := json.Unmarshal(payload, &done); err != nil {
				return "", fmt.Errorf("invalid done message: %w", err)
			}
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return done.Reply, nil
		case ws.MessageTypeError:
			var errMsg ws.ErrorMessage
			if err := json.Unmarshal(payload, &errMsg); err != nil {
				return "", fmt.Errorf("invalid error message: %w", err)
			}
			return "", fmt.Errorf("server error %s: %s", errMsg.Code, errMsg.Message)
		}
	}
}

// History fetches the session's turns
func (c *Client) History(ctx context.Context) (*api.HistoryResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/chatbot/history", nil, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var history api.HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return &history, nil
}

// Reset clears the session's history
func (c *Client) Reset(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, "/chatbot/history", nil, "")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// NewSession asks the server for a session token
func (c *Client) NewSession(ctx context.Context) (*api.SessionResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/chatbot/session", nil, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var session api.SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, accept string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = c.headers()
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned %d: %w", resp.StatusCode, decodeServerError(string(data)))
	}
	return resp, nil
}

func (c *Client) headers() http.Header {
	header := http.Header{}
	if c.sessionID != "" {
		header.Set(api.SessionHeader, c.sessionID)
	}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	return header
}

// readEvents parses an SSE stream, calling handle once per frame
func readEvents(r io.Reader, handle func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	var data []string
	pending := false

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if pending {
				if err := handle(event, strings.Join(data, "\n")); err != nil {
					return err
				}
			}
			event, data, pending = "", nil, false
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			pending = true
		case strings.HasPrefix(line, "data:"):
			value := strings.TrimPrefix(line, "data:")
			data = append(data, strings.TrimPrefix(value, " "))
			pending = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}

	if pending {
		return handle(event, strings.Join(data, "\n"))
	}
	return nil
}

func decodeServerError(data string) error {
	var body api.ErrorResponse
	if err := json.Unmarshal([]byte(data), &body); err != nil || body.Error == "" {
		return errors.New(strings.TrimSpace(data))
	}
	if body.Message == "" {
		return errors.New(body.Error)
	}
	return fmt.Errorf("%s: %s", body.Error, body.Message)
}
