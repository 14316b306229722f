package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/live-leaderboard/internal/httpapi"
	"github.com/DoyleJ11/live-leaderboard/internal/hub"
	"github.com/DoyleJ11/live-leaderboard/internal/leaderboard"
	"github.com/DoyleJ11/live-leaderboard/internal/store"
	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startServer(t *testing.T, seed ...types.TeamInput) (*httptest.Server, *leaderboard.Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(nil)
	h.Start(ctx)
	svc := leaderboard.NewService(store.NewMemory(), h, nil)
	if len(seed) > 0 {
		_, err := svc.Initialize(ctx, seed)
		require.NoError(t, err)
	}
	srv := httptest.NewServer(httpapi.SetupRoutes(h, svc, httpapi.Options{}, zap.NewNop()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, svc
}

// runClient starts Run and returns a channel with its result.
func runClient(t *testing.T, c *Client) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	return cancel, done
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, 3*time.Second, 5*time.Millisecond,
		"client never reached %s", want)
}

func TestClient_ConnectLoadsBoard(t *testing.T) {
	srv, _ := startServer(t,
		types.TeamInput{Name: "A", CompanyName: "X", Score: "5"},
		types.TeamInput{Name: "B", CompanyName: "Y", Score: "10"},
	)
	c := New(Options{BaseURL: srv.URL})
	runClient(t, c)

	waitState(t, c, StateConnected)
	require.Eventually(t, c.Board().Loaded, 2*time.Second, 5*time.Millisecond)
	teams := c.Board().Teams()
	require.Len(t, teams, 2)
	assert.Equal(t, "B", teams[0].Name)
}

func TestClient_PushMutationsUpdateBoard(t *testing.T) {
	srv, _ := startServer(t,
		types.TeamInput{Name: "A", CompanyName: "X", Score: "5"},
		types.TeamInput{Name: "B", CompanyName: "Y", Score: "10"},
	)
	var changes atomic.Int32
	c := New(Options{
		BaseURL:  srv.URL,
		OnChange: func([]types.Team, *types.Team) { changes.Add(1) },
	})
	runClient(t, c)
	waitState(t, c, StateConnected)
	require.Eventually(t, c.Board().Loaded, 2*time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, c.UpdateScore(ctx, "A", "20", false))

	// the ack is queued behind the broadcast, so the board is already current
	teams := c.Board().Teams()
	assert.Equal(t, "A", teams[0].Name)
	assert.Equal(t, 25, teams[0].Score)
	assert.Equal(t, "A", c.Board().Highlighted())
	assert.Equal(t, MovementUp, c.Board().Movement("A"))

	require.NoError(t, c.UpdateScore(ctx, "A", "30", true))
	assert.Equal(t, -5, c.Board().Teams()[1].Score)

	err := c.UpdateScore(ctx, "Ghost", "1", false)
	assert.ErrorIs(t, err, ErrNotFound)

	err = c.AddTeam(ctx, types.TeamInput{Name: "A", CompanyName: "Dup"})
	assert.ErrorIs(t, err, ErrBadRequest)

	require.NoError(t, c.AddTeam(ctx, types.TeamInput{Name: "C", CompanyName: "Z", Score: 1}))
	var cID string
	for _, tm := range c.Board().Teams() {
		if tm.Name == "C" {
			cID = tm.ID
		}
	}
	require.NotEmpty(t, cID)

	name := "C2"
	require.NoError(t, c.UpdateTeam(ctx, cID, types.UpdateTeamRequest{Name: &name}))
	assert.Equal(t, MovementNone, c.Board().Movement("C2"))
	require.NoError(t, c.DeleteTeam(ctx, cID))
	assert.Len(t, c.Board().Teams(), 2)
	assert.Greater(t, changes.Load(), int32(5))
}

func TestClient_FallsBackToHTTPWhenNotConnected(t *testing.T) {
	srv, svc := startServer(t, types.TeamInput{Name: "A", CompanyName: "X", Score: 1})
	c := New(Options{BaseURL: srv.URL})

	require.NoError(t, c.UpdateScore(context.Background(), "A", "4", false))
	teams := c.Board().Teams()
	require.Len(t, teams, 1)
	assert.Equal(t, 5, teams[0].Score)
	assert.Equal(t, "A", c.Board().Highlighted())

	ranked, err := svc.ListRanked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, ranked[0].Score)

	err = c.UpdateScore(context.Background(), "Ghost", "4", false)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.ResetScores(context.Background()))
	assert.Zero(t, c.Board().Teams()[0].Score)
}

func TestClient_SeedsEmptyLeaderboard(t *testing.T) {
	srv, svc := startServer(t)
	c := New(Options{
		BaseURL: srv.URL,
		Seed:    []types.TeamInput{{Name: "A", CompanyName: "X", Score: "3"}},
	})
	runClient(t, c)

	require.Eventually(t, func() bool { return len(c.Board().Teams()) == 1 }, 3*time.Second, 5*time.Millisecond)
	ranked, err := svc.ListRanked(context.Background())
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, 3, ranked[0].Score)
}

func TestClient_GivesUpAfterFiveReconnects(t *testing.T) {
	var dials atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/api/teams", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]types.Team{{Name: "A", Score: 1}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	clock := clockwork.NewFakeClock()
	var mu sync.Mutex
	var states []State
	c := New(Options{
		BaseURL:            srv.URL,
		Clock:              clock,
		FallbackFetchAfter: -1,
		OnStateChange: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	_, done := runClient(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(5 * time.Second)
	}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrGaveUp)
	case <-time.After(3 * time.Second):
		t.Fatal("client never gave up")
	}
	assert.Equal(t, StatePermanentlyDisconnected, c.State())
	assert.EqualValues(t, 6, dials.Load(), "one initial dial and five reconnects")

	// the connect error still loaded the board over HTTP
	assert.True(t, c.Board().Loaded())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, StatePermanentlyDisconnected, states[len(states)-1])
}

func TestClient_ReconnectResyncs(t *testing.T) {
	var dials, fetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			conn.Close(websocket.StatusGoingAway, "restart")
			return
		}
		// hold the second connection open until the client leaves
		_, _, _ = conn.Read(r.Context())
	})
	mux.HandleFunc("/api/teams", func(w http.ResponseWriter, r *http.Request) {
		n := fetches.Add(1)
		_ = json.NewEncoder(w).Encode([]types.Team{{Name: "A", Score: int(n) * 10}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	clock := clockwork.NewFakeClock()
	c := New(Options{BaseURL: srv.URL, Clock: clock, FallbackFetchAfter: -1})
	runClient(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	waitState(t, c, StateConnected)
	require.Eventually(t, func() bool { return fetches.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		teams := c.Board().Teams()
		return len(teams) == 1 && teams[0].Score == 20
	}, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, dials.Load())
}

func TestAckError(t *testing.T) {
	assert.NoError(t, ackError(types.Ack{OK: true}))
	assert.ErrorIs(t, ackError(types.Ack{Kind: "not_found"}), ErrNotFound)
	assert.ErrorIs(t, ackError(types.Ack{Kind: "duplicate_name"}), ErrBadRequest)
	assert.ErrorIs(t, ackError(types.Ack{Kind: "validation"}), ErrBadRequest)
	assert.ErrorIs(t, ackError(types.Ack{Kind: "store"}), ErrServer)
	assert.True(t, errors.Is(ackError(types.Ack{Kind: kindDisconnected}), ErrDisconnected))
}

func TestWSURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8000/ws", wsURL("http://localhost:8000"))
	assert.Equal(t, "wss://board.example.com/ws", wsURL("https://board.example.com"))
}
