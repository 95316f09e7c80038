package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-server/internal/arena"
)

func setupAdmin(t *testing.T, withStore bool) (*testServer, *EventHub, *StatsRepository, *httptest.Server) {
	t.Helper()
	ts := startTestServer(t, nil)
	hub := NewEventHub()

	admin := NewAdmin(ts.Server, hub, nil, nil)
	var repo *StatsRepository
	if withStore {
		r, db := setupTestRepo(t)
		repo = r
		admin = NewAdmin(ts.Server, hub, repo, db)
	}

	httpServer := httptest.NewServer(admin.RegisterRoutes())
	t.Cleanup(httpServer.Close)
	return ts, hub, repo, httpServer
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestAdmin_Health(t *testing.T) {
	_, _, _, srv := setupAdmin(t, true)

	var body struct {
		Status   string            `json:"status"`
		Phase    string            `json:"phase"`
		Database map[string]string `json:"database"`
	}
	resp := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "lobby", body.Phase)
	assert.Equal(t, "up", body.Database["status"])
}

func TestAdmin_Status(t *testing.T) {
	ts, _, _, srv := setupAdmin(t, false)
	_, err := ts.Arena().Join("Ann", arena.NoPassword)
	require.NoError(t, err)

	var status Status
	getJSON(t, srv.URL+"/status", &status)
	assert.Equal(t, "lobby", status.Phase)
	assert.False(t, status.InGame)
	assert.Equal(t, ts.Port(), status.Port)
	require.NotNil(t, status.Players[0])
	assert.Equal(t, "Ann", status.Players[0].UserName)
}

func TestAdmin_Matches(t *testing.T) {
	_, _, repo, srv := setupAdmin(t, true)

	var empty []MatchRecord
	resp := getJSON(t, srv.URL+"/matches", &empty)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, empty)

	_, err := repo.SaveMatch(context.Background(), "a.ast", sampleSummary())
	require.NoError(t, err)

	var matches []MatchRecord
	getJSON(t, srv.URL+"/matches?limit=5", &matches)
	require.Len(t, matches, 1)
	assert.Equal(t, "Ann", matches[0].Players[0].UserName)

	resp = getJSON(t, srv.URL+"/matches?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdmin_MatchesWithoutStore(t *testing.T) {
	_, _, _, srv := setupAdmin(t, false)
	resp := getJSON(t, srv.URL+"/matches", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// Why: the control panel may not close the server while a match runs
func TestAdmin_CloseRefusedDuringMatch(t *testing.T) {
	ts, _, _, srv := setupAdmin(t, false)
	_, err := ts.Arena().Join("Ann", arena.NoPassword)
	require.NoError(t, err)
	_, _, err = ts.Arena().Start(0)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/close", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.True(t, ts.InGame())
}

func TestAdmin_CloseInLobby(t *testing.T) {
	ts, _, _, srv := setupAdmin(t, false)

	resp, err := http.Post(srv.URL+"/close", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ts.waitTag(t, TagGame)
	assert.Equal(t, arena.PhaseClosed, ts.Arena().Phase())
}

func TestAdmin_Preflight(t *testing.T) {
	_, _, _, srv := setupAdmin(t, false)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/close", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestAdmin_Metrics(t *testing.T) {
	ts, _, _, srv := setupAdmin(t, false)
	require.Regexp(t, joinedReply, send(t, ts.Addr(), "join=Ann;None"))
	send(t, ts.Addr(), "dance=1")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "arena_lobby_players 1")
	assert.Contains(t, text, `arena_commands_total{command="join",phase="lobby"} 1`)
	assert.Contains(t, text, `arena_commands_rejected_total{reason="unknown_command"} 1`)
}

func TestAdmin_EventsFeed(t *testing.T) {
	_, hub, _, srv := setupAdmin(t, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.LogSink(nil)("Lobby Open")
	hub.CallbackSink(nil)(TagGame)

	var ev Event
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "log", ev.Type)
	assert.Equal(t, "Lobby Open", ev.Message)

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "callback", ev.Type)
	assert.Equal(t, TagGame, ev.Tag)

	conn.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
