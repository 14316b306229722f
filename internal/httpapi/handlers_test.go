package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/live-leaderboard/internal/hub"
	"github.com/DoyleJ11/live-leaderboard/internal/leaderboard"
	"github.com/DoyleJ11/live-leaderboard/internal/store"
	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	hub    *hub.Hub
	outbox chan []byte
	srv    *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(nil)
	h.Start(ctx)

	// a push viewer watching everything the API does
	outbox := make(chan []byte, 32)
	require.NoError(t, h.Join(ctx, "viewer", outbox))

	svc := leaderboard.NewService(store.NewMemory(), h, nil)
	handler := SetupRoutes(h, svc, Options{
		CORSOrigins:    []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Second,
	}, zap.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testServer{hub: h, outbox: outbox, srv: srv}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (ts *testServer) nextEvent(t *testing.T) types.Envelope {
	t.Helper()
	select {
	case frame := <-ts.outbox:
		var env types.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for broadcast")
		return types.Envelope{}
	}
}

func (ts *testServer) noEvent(t *testing.T) {
	t.Helper()
	select {
	case frame := <-ts.outbox:
		t.Fatalf("unexpected broadcast: %s", frame)
	case <-time.After(30 * time.Millisecond):
	}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

const seedBody = `{"teams":[{"name":"A","companyName":"X","score":"5"},{"name":"B","companyName":"Y","score":"10"}]}`

func TestInitializeTeams(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/api/teams", `{"teams":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid request. Teams array is required.", decode[types.ErrorResponse](t, body).Message)

	status, _ = ts.do(t, http.MethodPost, "/api/teams", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = ts.do(t, http.MethodPost, "/api/teams", seedBody)
	require.Equal(t, http.StatusCreated, status)
	res := decode[types.TeamsResponse](t, body)
	assert.Equal(t, leaderboard.MsgInitialized, res.Message)
	require.Len(t, res.Teams, 2)
	assert.Equal(t, "B", res.Teams[0].Name)
	assert.Equal(t, types.EventScoreUpdate, ts.nextEvent(t).Event)

	status, body = ts.do(t, http.MethodPost, "/teams", seedBody)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, leaderboard.MsgAlreadyInitialized, decode[types.TeamsResponse](t, body).Message)
	ts.noEvent(t)
}

func TestListTeams(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/teams", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))

	ts.do(t, http.MethodPost, "/teams", seedBody)
	for _, path := range []string{"/teams", "/api/teams"} {
		status, body = ts.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, status)
		teams := decode[[]types.Team](t, body)
		require.Len(t, teams, 2)
		assert.Equal(t, []int{10, 5}, []int{teams[0].Score, teams[1].Score})
	}
}

func TestAddTeam(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/api/teams/add", `{"name":"A","companyName":"X","score":"7"}`)
	require.Equal(t, http.StatusCreated, status)
	res := decode[types.TeamResponse](t, body)
	assert.Equal(t, leaderboard.MsgTeamAdded, res.Message)
	assert.Equal(t, 7, res.Team.Score)
	assert.Len(t, res.Leaderboard, 1)
	assert.Equal(t, types.EventScoreUpdate, ts.nextEvent(t).Event)

	status, body = ts.do(t, http.MethodPost, "/api/teams/add", `{"name":"A","companyName":"Z"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Team with this name already exists", decode[types.ErrorResponse](t, body).Message)

	status, body = ts.do(t, http.MethodPost, "/api/teams/add", `{"name":"B"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Name and company name are required", decode[types.ErrorResponse](t, body).Message)

	status, _ = ts.do(t, http.MethodPost, "/api/teams/add", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, status)
	ts.noEvent(t)
}

func TestUpdateScore(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/teams", seedBody)
	ts.nextEvent(t)

	status, body := ts.do(t, http.MethodPut, "/api/teams/score", `{"teamName":"A","points":"+20"}`)
	require.Equal(t, http.StatusOK, status)
	res := decode[types.TeamResponse](t, body)
	assert.Equal(t, 25, res.Team.Score)
	assert.Equal(t, "A", res.Leaderboard[0].Name)

	env := ts.nextEvent(t)
	require.Equal(t, types.EventScoreUpdate, env.Event)
	upd := decode[types.ScoreUpdate](t, env.Data)
	require.NotNil(t, upd.UpdatedTeam)
	assert.Equal(t, 25, upd.UpdatedTeam.Score)

	status, _ = ts.do(t, http.MethodPut, "/api/teams/score", `{"teamName":"Ghost","points":"1"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = ts.do(t, http.MethodPut, "/api/teams/score", `{"teamName":"A"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Team name and points are required", decode[types.ErrorResponse](t, body).Message)
	ts.noEvent(t)
}

func TestResetScores(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/teams", seedBody)
	ts.nextEvent(t)

	status, body := ts.do(t, http.MethodPut, "/teams/reset", "")
	require.Equal(t, http.StatusOK, status)
	res := decode[types.TeamsResponse](t, body)
	assert.Equal(t, leaderboard.MsgScoresReset, res.Message)
	for _, team := range res.Teams {
		assert.Zero(t, team.Score)
	}
	assert.Equal(t, []string{"A", "B"}, []string{res.Teams[0].Name, res.Teams[1].Name})
	assert.Equal(t, types.EventScoreUpdate, ts.nextEvent(t).Event)
}

func TestUpdateAndDeleteTeam(t *testing.T) {
	ts := newTestServer(t)
	_, body := ts.do(t, http.MethodPost, "/teams", seedBody)
	ts.nextEvent(t)
	teams := decode[types.TeamsResponse](t, body).Teams
	b, a := teams[0], teams[1]

	status, body := ts.do(t, http.MethodPut, "/api/teams/"+a.ID, `{"companyName":"New Co","score":0}`)
	require.Equal(t, http.StatusOK, status)
	res := decode[types.TeamResponse](t, body)
	assert.Equal(t, leaderboard.MsgTeamUpdated, res.Message)
	assert.Equal(t, "New Co", res.Team.CompanyName)
	assert.Equal(t, 0, res.Team.Score)
	assert.Equal(t, types.EventTeamUpdated, ts.nextEvent(t).Event)

	status, _ = ts.do(t, http.MethodPut, "/api/teams/"+a.ID, `{"name":"B"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(t, http.MethodPut, "/api/teams/unknown", `{"name":"C"}`)
	assert.Equal(t, http.StatusNotFound, status)
	ts.noEvent(t)

	status, _ = ts.do(t, http.MethodDelete, "/api/teams/unknown", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = ts.do(t, http.MethodDelete, "/api/teams/"+b.ID, "")
	require.Equal(t, http.StatusOK, status)
	del := decode[types.DeleteResponse](t, body)
	assert.Equal(t, b.ID, del.TeamID)
	assert.Len(t, del.Leaderboard, 1)

	env := ts.nextEvent(t)
	require.Equal(t, types.EventTeamDeleted, env.Event)
	assert.Equal(t, b.ID, decode[types.TeamDeleted](t, env.Data).DeletedTeam.ID)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/healthz", "/health"} {
		status, body := ts.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, status)
		res := decode[healthResponse](t, body)
		assert.Equal(t, "ok", res.Status)
		assert.Equal(t, hub.StateActive, res.Hub.State)
		assert.Equal(t, 1, res.Hub.Clients)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, ts.srv.URL+"/api/teams/score", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(leaderboard.KindValidation))
	assert.Equal(t, http.StatusBadRequest, statusFor(leaderboard.KindDuplicateName))
	assert.Equal(t, http.StatusNotFound, statusFor(leaderboard.KindNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(leaderboard.KindStore))
}
