package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubResolver maps fixed tokens to user ids.
type stubResolver struct {
	tokens map[string]string
}

func (s *stubResolver) Resolve(_ context.Context, token string) (string, error) {
	if userID, ok := s.tokens[token]; ok {
		return userID, nil
	}
	return "", errors.New("unknown token")
}

type recordingAuditor struct {
	mu          sync.Mutex
	connects    []string
	disconnects []string
}

func (a *recordingAuditor) RecordConnect(connectionID, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connects = append(a.connects, connectionID)
}

func (a *recordingAuditor) RecordDisconnect(connectionID, userID, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnects = append(a.disconnects, connectionID)
}

func (a *recordingAuditor) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.connects), len(a.disconnects)
}

type wireEnvelope struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
	ProjectID *string        `json:"project_id"`
	UserID    *string        `json:"user_id"`
	Timestamp string         `json:"timestamp"`
}

func newHandlerServer(t *testing.T, cfg HandlerConfig) (*httptest.Server, *Registry, *recordingAuditor) {
	t.Helper()
	registry := NewRegistry(64, time.Second, zap.NewNop())
	auditor := &recordingAuditor{}
	resolver := &stubResolver{tokens: map[string]string{"tok-u1": "u1", "tok-u2": "u2"}}
	handler := NewHandler(registry, resolver, auditor, cfg, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(srv.Close)
	return srv, registry, auditor
}

func defaultHandlerConfig() HandlerConfig {
	return HandlerConfig{MaxMessageSize: 4096}
}

func dial(t *testing.T, srv *httptest.Server, token string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *gorilla.Conn) wireEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env wireEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func sendJSON(t *testing.T, conn *gorilla.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(payload)))
}

func TestAnonymousWelcome(t *testing.T) {
	srv, _, _ := newHandlerServer(t, defaultHandlerConfig())
	conn := dial(t, srv, "")

	welcome := readEnvelope(t, conn)
	assert.Equal(t, "ping", welcome.EventType)
	assert.NotEmpty(t, welcome.Data["connection_id"])
	assert.Equal(t, "connection established", welcome.Data["message"])
	assert.Equal(t, false, welcome.Data["authenticated"])
	assert.Nil(t, welcome.UserID)
}

func TestAuthenticatedWelcomeAndPresence(t *testing.T) {
	srv, _, _ := newHandlerServer(t, defaultHandlerConfig())
	conn := dial(t, srv, "tok-u1")

	welcome := readEnvelope(t, conn)
	assert.Equal(t, "user_online", welcome.EventType)
	assert.Equal(t, true, welcome.Data["authenticated"])
	require.NotNil(t, welcome.UserID)
	assert.Equal(t, "u1", *welcome.UserID)

	// The global presence broadcast reaches the new connection too.
	presence := readEnvelope(t, conn)
	assert.Equal(t, "user_online", presence.EventType)
	assert.Equal(t, "user_u1", presence.Data["username"])
	assert.Equal(t, "online", presence.Data["status"])
}

func TestInvalidTokenDegradesToAnonymous(t *testing.T) {
	srv, _, _ := newHandlerServer(t, defaultHandlerConfig())
	conn := dial(t, srv, "bogus-token")

	welcome := readEnvelope(t, conn)
	assert.Equal(t, "ping", welcome.EventType)
	assert.Equal(t, false, welcome.Data["authenticated"])
}

func TestPingPong(t *testing.T) {
	srv, _, _ := newHandlerServer(t, defaultHandlerConfig())
	conn := dial(t, srv, "")
	readEnvelope(t, conn) // welcome

	sendJSON(t, conn, `{"event_type":"ping"}`)
	pong := readEnvelope(t, conn)
	assert.Equal(t, "pong", pong.EventType)
	assert.NotEmpty(t, pong.Data["timestamp"])
}

func TestJoinAndLeaveProject(t *testing.T) {
	srv, registry, _ := newHandlerServer(t, defaultHandlerConfig())
	conn := dial(t, srv, "tok-u1")
	readEnvelope(t, conn) // welcome
	readEnvelope(t, conn) // presence

	sendJSON(t, conn, `{"event_type":"join_project","project_id":"p1"}`)
	ack := readEnvelope(t, conn)
	assert.Equal(t, "project_member_added", ack.EventType)
	assert.Equal(t, "p1", ack.Data["project_id"])
	assert.Equal(t, "joined project p1", ack.Data["message"])
	require.Eventually(t, func() bool {
		return registry.Stats().ConnectionsPerProject["p1"] == 1
	}, time.Second, 5*time.Millisecond)

	sendJSON(t, conn, `{"event_type":"leave_project","project_id":"p1"}`)
	ack = readEnvelope(t, conn)
	assert.Equal(t, "project_member_removed", ack.EventType)
	require.Eventually(t, func() bool {
		return registry.Stats().ProjectRooms == 0
	}, time.Second, 5*time.Millisecond)
}

func TestJoinWithoutProjectID(t *testing.T) {
	srv, registry, _ := newHandlerServer(t, defaultHandlerConfig())
	conn := dial(t, srv, "")
	readEnvelope(t, conn) // welcome

	sendJSON(t, conn, `{"event_type":"join_project"}`)
	errEnv := readEnvelope(t, conn)
	assert.Equal(t, "error", errEnv.EventType)
	assert.Equal(t, "MISSING_PROJECT_ID", errEnv.Data["error_code"])
	assert.Equal(t, 0, registry.Stats().ProjectRooms)
}

func TestMalformedJSONKeepsConnectionOpen(t *testing.T) {
	srv, _, _ := newHandlerServer(t, defaultHandlerConfig())
	conn := dial(t, srv, "")
	readEnvelope(t, conn) // welcome

	sendJSON(t, conn, `{not json`)
	errEnv := readEnvelope(t, conn)
	assert.Equal(t, "error", errEnv.EventType)
	assert.Equal(t, "INVALID_JSON", errEnv.Data["error_code"])
	assert.Contains(t, errEnv.Data["details"].(map[string]any)["message"], "{not json")

	// Still serving the protocol afterwards.
	sendJSON(t, conn, `{"event_type":"ping"}`)
	pong := readEnvelope(t, conn)
	assert.Equal(t, "pong", pong.EventType)
}

func TestUnknownEventType(t *testing.T) {
	srv, _, _ := newHandlerServer(t, defaultHandlerConfig())
	conn := dial(t, srv, "")
	readEnvelope(t, conn) // welcome

	sendJSON(t, conn, `{"event_type":"task_created"}`)
	errEnv := readEnvelope(t, conn)
	assert.Equal(t, "error", errEnv.EventType)
	assert.Equal(t, "UNKNOWN_EVENT", errEnv.Data["error_code"])
	assert.Equal(t, "task_created", errEnv.Data["details"].(map[string]any)["received_type"])
}

func TestRateLimitedMessages(t *testing.T) {
	cfg := defaultHandlerConfig()
	cfg.MessageRate = 1
	cfg.MessageBurst = 1
	srv, _, _ := newHandlerServer(t, cfg)
	conn := dial(t, srv, "")
	readEnvelope(t, conn) // welcome

	sendJSON(t, conn, `{"event_type":"ping"}`)
	sendJSON(t, conn, `{"event_type":"ping"}`)

	first := readEnvelope(t, conn)
	assert.Equal(t, "pong", first.EventType)
	second := readEnvelope(t, conn)
	assert.Equal(t, "error", second.EventType)
	assert.Equal(t, "RATE_LIMITED", second.Data["error_code"])
}

func TestOfflineBroadcastOnDisconnect(t *testing.T) {
	srv, registry, _ := newHandlerServer(t, defaultHandlerConfig())

	watcher := dial(t, srv, "")
	readEnvelope(t, watcher) // welcome

	authed := dial(t, srv, "tok-u2")
	online := readEnvelope(t, watcher)
	assert.Equal(t, "user_online", online.EventType)

	require.NoError(t, authed.Close())
	offline := readEnvelope(t, watcher)
	assert.Equal(t, "user_offline", offline.EventType)
	assert.Equal(t, "user_u2", offline.Data["username"])

	require.Eventually(t, func() bool {
		return registry.Stats().ActiveConnections == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAuditRecordsLifecycle(t *testing.T) {
	srv, registry, auditor := newHandlerServer(t, defaultHandlerConfig())

	conn := dial(t, srv, "tok-u1")
	readEnvelope(t, conn)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return registry.Stats().ActiveConnections == 0
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		connects, disconnects := auditor.counts()
		return connects == 1 && disconnects == 1
	}, time.Second, 5*time.Millisecond)
	auditor.mu.Lock()
	defer auditor.mu.Unlock()
	assert.Equal(t, auditor.connects[0], auditor.disconnects[0])
}
