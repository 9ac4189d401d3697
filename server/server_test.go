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

	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/engine"
	"github.com/teranos/listsync/store"
)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := &config.Config{
		Render: config.RenderConfig{
			DefaultLanguage:      "en",
			DefaultThumbnailSize: 128,
		},
		Store: config.StoreConfig{Path: ":memory:"},
	}
	eng, err := engine.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	s := New(cfg.Server, eng, nil)
	ts := httptest.NewServer(s.http.Handler)
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusEndpointReportsRecordedRuns(t *testing.T) {
	s, ts := testServer(t)
	require.NoError(t, s.eng.Store().RecordRun("List of towers", store.StatusOK, "", true))
	require.NoError(t, s.eng.Store().RecordRun("List of bridges", store.StatusFailed, "template markers not found", false))

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Version string `json:"version"`
		Pages   []struct {
			Page      string `json:"page"`
			Status    string `json:"status"`
			Message   string `json:"message"`
			Edited    bool   `json:"edited"`
			FailCount int64  `json:"fail_count"`
		} `json:"pages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Pages, 2)

	byPage := make(map[string]int)
	for i, p := range body.Pages {
		byPage[p.Page] = i
	}
	towers := body.Pages[byPage["List of towers"]]
	assert.Equal(t, store.StatusOK, towers.Status)
	assert.True(t, towers.Edited)

	bridges := body.Pages[byPage["List of bridges"]]
	assert.Equal(t, store.StatusFailed, bridges.Status)
	assert.Equal(t, "template markers not found", bridges.Message)
	assert.Equal(t, int64(1), bridges.FailCount)
}

func TestWebsocketReceivesTransitions(t *testing.T) {
	s, ts := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Registration happens in the upgrade handler before it returns, but
	// give the write pump a moment to start
	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.clients) == 1
	}, time.Second, 10*time.Millisecond)

	s.BroadcastTransition(engine.Transition{
		Page: "List of towers",
		From: engine.StateQuerying,
		To:   engine.StateRendering,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type       string            `json:"type"`
		Transition engine.Transition `json:"transition"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "job_transition", msg.Type)
	assert.Equal(t, "List of towers", msg.Transition.Page)
	assert.Equal(t, engine.StateRendering, msg.Transition.To)
}

func TestWebsocketDisconnectUnregistersClient(t *testing.T) {
	s, ts := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.clients) == 1
	}, time.Second, 10*time.Millisecond)

	// A clean close must be noticed by the read side, not sit until a
	// ping write fails a minute later
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	conn.Close()

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.clients) == 0
	}, time.Second, 10*time.Millisecond)
}
