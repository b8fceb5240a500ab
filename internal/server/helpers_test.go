package server

import (
	"encoding/json"
	"testing"

	"github.com/MeKo-Tech/deteval/internal/testutil"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, modify ...func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		CORSOrigin:   "*",
		MaxUploadMB:  1,
		TimeoutSec:   5,
		IoUThreshold: 0.3,
		Workers:      1,
	}
	for _, m := range modify {
		m(&cfg)
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s
}

// scenarioBody encodes a fixture scenario as an EvaluateRequest body.
func scenarioBody(t *testing.T, name string) string {
	t.Helper()
	s, err := testutil.ScenarioByName(name)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"iou_threshold": s.Threshold,
		"per_image":     true,
		"images":        s.Images,
	})
	require.NoError(t, err)
	return string(body)
}

// mockWebSocketConn records written messages.
type mockWebSocketConn struct {
	sent [][]byte
}

func (m *mockWebSocketConn) WriteMessage(_ int, data []byte) error {
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockWebSocketConn) messages(t *testing.T) []WebSocketMessage {
	t.Helper()
	out := make([]WebSocketMessage, len(m.sent))
	for i, data := range m.sent {
		require.NoError(t, json.Unmarshal(data, &out[i]))
	}
	return out
}
