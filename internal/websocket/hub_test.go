package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/obrolan/server/domain/entities"
)

type fakeStreamer struct {
	fragments []string
	err       error

	mu       sync.Mutex
	sessions []string
	prompts  []string
}

func (f *fakeStreamer) Stream(ctx context.Context, sessionID, prompt string, emit func(string) error) (string, error) {
	f.mu.Lock()
	f.sessions = append(f.sessions, sessionID)
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	var reply strings.Builder
	for _, fragment := range f.fragments {
		if err := emit(fragment); err != nil {
			return "", err
		}
		reply.WriteString(fragment)
	}
	if f.err != nil {
		return "", f.err
	}
	return reply.String(), nil
}

func setupTestHub(t *testing.T, streamer Streamer) (*Hub, string) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	hub := NewHub(streamer, nil, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		return HandleWebSocket(hub, c, "ws-session", logger)
	})
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestHub_NewHub(t *testing.T) {
	hub := NewHub(&fakeStreamer{}, []string{"*"}, zaptest.NewLogger(t))

	require.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.Equal(t, 0, hub.Count())
}

func TestHub_PromptStreamsFragmentsThenDone(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"Hel", "lo", "!"}}
	_, url := setupTestHub(t, streamer)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "prompt", "prompt": "Hi"}))

	var got []string
	for i := 0; i < 3; i++ {
		var fragment FragmentMessage
		require.NoError(t, conn.ReadJSON(&fragment))
		assert.Equal(t, MessageTypeFragment, fragment.Type)
		assert.Equal(t, i, fragment.Index)
		assert.Equal(t, "ws-session", fragment.SessionID)
		got = append(got, fragment.Data)
	}
	assert.Equal(t, []string{"Hel", "lo", "!"}, got)

	var done DoneMessage
	require.NoError(t, conn.ReadJSON(&done))
	assert.Equal(t, MessageTypeDone, done.Type)
	assert.Equal(t, "Hello!", done.Reply)
	assert.Equal(t, 3, done.Fragments)

	streamer.mu.Lock()
	defer streamer.mu.Unlock()
	assert.Equal(t, []string{"ws-session"}, streamer.sessions)
	assert.Equal(t, []string{"Hi"}, streamer.prompts)
}

func TestHub_InvalidMessages(t *testing.T) {
	_, url := setupTestHub(t, &fakeStreamer{})
	conn := dial(t, url)

	tests := []struct {
		message  string
		wantCode string
	}{
		{message: `not json`, wantCode: ErrorCodeInvalidMessage},
		{message: `{"type":"prompt","prompt":"  "}`, wantCode: ErrorCodeInvalidPrompt},
		{message: `{"type":"listening_start"}`, wantCode: ErrorCodeInvalidMessage},
	}

	for _, tt := range tests {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.message)))

		var errMsg ErrorMessage
		require.NoError(t, conn.ReadJSON(&errMsg))
		assert.Equal(t, MessageTypeError, errMsg.Type)
		assert.Equal(t, tt.wantCode, errMsg.Code, tt.message)
	}
}

func TestHub_GenerationFailure(t *testing.T) {
	tests := []struct {
		err      error
		wantCode string
	}{
		{err: &entities.GenerationError{Backend: "test", Err: errors.New("boom")}, wantCode: ErrorCodeGenerationFailed},
		{err: &entities.GenerationError{Backend: "test", Err: entities.ErrModelUnavailable}, wantCode: ErrorCodeModelUnavailable},
		{err: errors.New("store down"), wantCode: ErrorCodeInternal},
	}

	for _, tt := range tests {
		_, url := setupTestHub(t, &fakeStreamer{fragments: []string{"partial"}, err: tt.err})
		conn := dial(t, url)

		require.NoError(t, conn.WriteJSON(map[string]string{"type": "prompt", "prompt": "Hi"}))

		var fragment FragmentMessage
		require.NoError(t, conn.ReadJSON(&fragment))
		assert.Equal(t, "partial", fragment.Data)

		var errMsg ErrorMessage
		require.NoError(t, conn.ReadJSON(&errMsg))
		assert.Equal(t, MessageTypeError, errMsg.Type)
		assert.Equal(t, tt.wantCode, errMsg.Code)
	}
}

func TestHub_PingPong(t *testing.T) {
	_, url := setupTestHub(t, &fakeStreamer{})
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping", "message_id": "m1", "data": "hello"}))

	var pong PongMessage
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, MessageTypePong, pong.Type)
	assert.Equal(t, "m1", pong.MessageID)
	assert.Equal(t, "hello", pong.Data)
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub, url := setupTestHub(t, &fakeStreamer{})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCheckOrigin(t *testing.T) {
	request := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, checkOrigin(nil)(request("http://evil.example")))
	assert.True(t, checkOrigin([]string{"*"})(request("http://evil.example")))

	restricted := checkOrigin([]string{"http://app.example"})
	assert.True(t, restricted(request("http://app.example")))
	assert.True(t, restricted(request("")))
	assert.False(t, restricted(request("http://evil.example")))
}
