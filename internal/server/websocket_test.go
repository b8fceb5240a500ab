package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_HandleWebSocketMessage_Streams(t *testing.T) {
	s := newTestServer(t)
	conn := &mockWebSocketConn{}

	s.handleWebSocketMessage(conn, []byte(scenarioBody(t, "mixed_images")))

	msgs := conn.messages(t)
	require.Len(t, msgs, 4)
	for i, msg := range msgs[:3] {
		assert.Equal(t, MessageImage, msg.Type)
		require.NotNil(t, msg.Index)
		assert.Equal(t, i, *msg.Index)
		require.NotNil(t, msg.Image)
		assert.InDelta(t, float64(i+1)/3, msg.Progress, 1e-12)
	}

	last := msgs[3]
	assert.Equal(t, MessageSummary, last.Type)
	require.NotNil(t, last.Summary)
	assert.Equal(t, 3, last.Summary.Files)
	assert.Equal(t, 2, last.Summary.Overall.TruePositives)
	assert.Equal(t, 2, last.Summary.Overall.FalsePositives)
	assert.Equal(t, 1, last.Summary.Overall.FalseNegatives)
}

func TestServer_HandleWebSocketMessage_Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantType string
	}{
		{"invalid json", "not json", errTypeInvalidRequest},
		{"invalid threshold", `{"iou_threshold": -1, "images": []}`, errTypeInvalidRequest},
		{
			"unknown class",
			`{"images":[{"file":"a.xml","ground_truth":[],"predictions":[{"label":"NOPE","xmin":0,"ymin":0,"xmax":1,"ymax":1}]}]}`,
			errTypeUnknownClass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &mockWebSocketConn{}
			newTestServer(t).handleWebSocketMessage(conn, []byte(tt.data))

			msgs := conn.messages(t)
			require.Len(t, msgs, 1)
			assert.Equal(t, MessageError, msgs[0].Type)
			assert.Equal(t, tt.wantType, msgs[0].ErrorType)
			assert.NotEmpty(t, msgs[0].Error)
			assert.Nil(t, msgs[0].Summary)
		})
	}
}

func TestServer_CheckOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/evaluate", nil)
	req.Header.Set("Origin", "https://evil.example")

	assert.True(t, (&Server{corsOrigin: "*"}).checkOrigin(req))
	assert.False(t, (&Server{corsOrigin: "https://ok.example"}).checkOrigin(req))

	req.Header.Set("Origin", "https://ok.example")
	assert.True(t, (&Server{corsOrigin: "https://ok.example"}).checkOrigin(req))
}

func TestServer_WebSocketEndToEnd(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/evaluate"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(scenarioBody(t, "greedy_stealing"))))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msgs []WebSocketMessage
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg WebSocketMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		msgs = append(msgs, msg)
		if msg.Type != MessageImage {
			break
		}
	}

	require.Len(t, msgs, 2)
	assert.Equal(t, MessageImage, msgs[0].Type)
	summary := msgs[1].Summary
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Overall.TruePositives)
	assert.Equal(t, 1, summary.Overall.FalseNegatives)
	assert.Equal(t, 0, summary.Overall.FalsePositives)
}

// dialEvaluate opens /ws/evaluate on a test server running s.
func dialEvaluate(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/evaluate"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntilDone reads messages up to and including the first non-image one.
func readUntilDone(t *testing.T, conn *websocket.Conn) []WebSocketMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msgs []WebSocketMessage
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg WebSocketMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		msgs = append(msgs, msg)
		if msg.Type != MessageImage {
			return msgs
		}
	}
}

func TestServer_WebSocketChargesEveryMessage(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RateLimit = RateLimitConfig{Enabled: true, RequestsPerMinute: 1}
	})
	conn := dialEvaluate(t, s)
	body := []byte(scenarioBody(t, "perfect_match"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, body))
	first := readUntilDone(t, conn)
	assert.Equal(t, MessageSummary, first[len(first)-1].Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, body))
	second := readUntilDone(t, conn)
	require.Len(t, second, 1)
	assert.Equal(t, MessageError, second[0].Type)
	assert.Equal(t, errTypeRateLimited, second[0].ErrorType)
	assert.Nil(t, second[0].Summary)

	assert.Equal(t, 1, s.rateLimiter.Usage("127.0.0.1").RequestsLastMinute)
}

func TestServer_AdmitWebSocketMessage_DataQuota(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RateLimit = RateLimitConfig{Enabled: true, MaxDataPerDay: 10}
	})
	conn := &mockWebSocketConn{}

	assert.True(t, s.admitWebSocketMessage(conn, "10.0.0.1", []byte("0123456789")))
	assert.False(t, s.admitWebSocketMessage(conn, "10.0.0.1", []byte("x")))
	assert.Equal(t, int64(10), s.rateLimiter.Usage("10.0.0.1").BytesToday)

	msgs := conn.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, errTypeRateLimited, msgs[0].ErrorType)
}

func TestServer_AdmitWebSocketMessage_NoLimiter(t *testing.T) {
	conn := &mockWebSocketConn{}
	assert.True(t, newTestServer(t).admitWebSocketMessage(conn, "10.0.0.1", []byte("{}")))
	assert.Empty(t, conn.sent)
}

func TestServer_WebSocketReadLimit(t *testing.T) {
	conn := dialEvaluate(t, newTestServer(t))

	oversized := make([]byte, 1024*1024+1)
	for i := range oversized {
		oversized[i] = ' '
	}
	// The server may drop the connection before the whole frame is sent.
	_ = conn.WriteMessage(websocket.TextMessage, oversized)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, _, err := conn.ReadMessage()
	require.Error(t, err, "the server closes connections whose messages exceed max_upload_mb")
	assert.False(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
