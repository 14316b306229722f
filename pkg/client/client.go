package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

var (
	// ErrGaveUp is returned by Run once every reconnect attempt has failed.
	ErrGaveUp       = errors.New("push channel reconnect attempts exhausted")
	ErrAckTimeout   = errors.New("no acknowledgement from server")
	ErrDisconnected = errors.New("push channel disconnected")

	errNotConnected = errors.New("push channel not connected")
)

type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
	StatePermanentlyDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StatePermanentlyDisconnected:
		return "permanently disconnected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Options struct {
	// BaseURL of the server, e.g. http://localhost:8000.
	BaseURL string

	MaxReconnects     int
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	DialTimeout       time.Duration
	AckTimeout        time.Duration
	// FallbackFetchAfter fetches the board over HTTP if the push channel has
	// not connected by then. Negative disables it.
	FallbackFetchAfter time.Duration

	// Seed initializes an empty leaderboard on first load.
	Seed []types.TeamInput

	OnChange      func(teams []types.Team, updated *types.Team)
	OnStateChange func(State)

	Clock      clockwork.Clock
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxReconnects == 0 {
		o.MaxReconnects = 5
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.MaxReconnectDelay <= 0 {
		o.MaxReconnectDelay = 5 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = 5 * time.Second
	}
	if o.FallbackFetchAfter == 0 {
		o.FallbackFetchAfter = 5 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Client keeps a Board in sync with the server over the push channel and
// sends mutations through it, falling back to the HTTP API whenever the
// channel is down.
type Client struct {
	opts   Options
	api    *API
	board  *Board
	wsURL  string
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	pending map[string]chan types.Ack
}

func New(opts Options) *Client {
	opts = opts.withDefaults()
	base := strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		opts:    opts,
		api:     NewAPI(base, opts.HTTPClient),
		board:   NewBoard(opts.Clock),
		wsURL:   wsURL(base),
		logger:  opts.Logger,
		state:   StateConnecting,
		pending: make(map[string]chan types.Ack),
	}
}

func (c *Client) Board() *Board { return c.board }
func (c *Client) API() *API     { return c.api }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run connects and keeps the board current until ctx is done or the
// reconnect budget is spent (ErrGaveUp). Mutations keep working over HTTP
// after Run returns.
func (c *Client) Run(ctx context.Context) error {
	var fallback clockwork.Timer
	if c.opts.FallbackFetchAfter > 0 {
		fallback = c.opts.Clock.AfterFunc(c.opts.FallbackFetchAfter, func() {
			if !c.board.Loaded() {
				c.logger.Info("push channel not connected yet, fetching board directly")
				c.refresh(ctx)
			}
		})
		defer fallback.Stop()
	}
	stopFallback := func() {
		if fallback != nil {
			fallback.Stop()
		}
	}

	attempts := 0
	c.setState(StateConnecting)
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return ctx.Err()
			}
			c.logger.Warn("push channel connect failed", zap.Int("attempt", attempts), zap.Error(err))
			if !c.board.Loaded() {
				stopFallback()
				c.refresh(ctx)
			}
		} else {
			attempts = 0
			stopFallback()
			c.setConn(conn)
			c.setState(StateConnected)
			c.logger.Info("push channel connected")

			// whatever we missed while away is in this snapshot
			c.refresh(ctx)

			err = c.readLoop(ctx, conn)
			c.setConn(nil)
			conn.CloseNow()
			c.failPending()
			c.setState(StateDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("push channel lost", zap.Error(err))
		}

		if attempts >= c.opts.MaxReconnects {
			c.setState(StatePermanentlyDisconnected)
			c.logger.Warn("giving up on push channel, using HTTP only", zap.Int("attempts", attempts))
			return ErrGaveUp
		}
		delay := c.backoff(attempts)
		attempts++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.opts.Clock.After(delay):
		}
		c.setState(StateConnecting)
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.ReconnectDelay << attempt
	if d <= 0 || d > c.opts.MaxReconnectDelay {
		return c.opts.MaxReconnectDelay
	}
	return d
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, c.wsURL, nil)
	if err != nil {
		return nil, err
	}
	// a full leaderboard can outgrow the default frame limit
	conn.SetReadLimit(16 << 20)
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Debug("ignoring malformed frame", zap.Error(err))
			continue
		}
		c.route(env)
	}
}

func (c *Client) route(env types.Envelope) {
	switch env.Event {
	case types.EventScoreUpdate:
		var p types.ScoreUpdate
		if err := json.Unmarshal(env.Data, &p); err == nil {
			c.apply(p.Teams, p.UpdatedTeam)
		}
	case types.EventTeamUpdated:
		var p types.TeamUpdated
		if err := json.Unmarshal(env.Data, &p); err == nil {
			c.apply(p.Teams, &p.UpdatedTeam)
		}
	case types.EventTeamDeleted:
		var p types.TeamDeleted
		if err := json.Unmarshal(env.Data, &p); err == nil {
			c.apply(p.Teams, nil)
		}
	case types.EventAck:
		var a types.Ack
		if err := json.Unmarshal(env.Data, &a); err == nil {
			c.resolve(a)
		}
	default:
		c.logger.Debug("ignoring unknown event", zap.String("event", env.Event))
	}
}

func (c *Client) apply(teams []types.Team, updated *types.Team) {
	c.board.Replace(teams, updated)
	if c.opts.OnChange != nil {
		c.opts.OnChange(c.board.Teams(), updated)
	}
}

// refresh replaces the board with the server's current list, seeding an
// empty leaderboard when Seed is set.
func (c *Client) refresh(ctx context.Context) {
	teams, err := c.api.ListTeams(ctx)
	if err != nil {
		c.logger.Warn("failed to fetch teams", zap.Error(err))
		return
	}
	if len(teams) == 0 && len(c.opts.Seed) > 0 {
		res, err := c.api.Initialize(ctx, c.opts.Seed)
		if err != nil {
			c.logger.Warn("failed to initialize teams", zap.Error(err))
			return
		}
		teams = res.Teams
	}
	c.apply(teams, nil)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// send writes one command and waits for its ack.
func (c *Client) send(ctx context.Context, event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	reqID, err := gonanoid.New()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	frame, err := json.Marshal(types.Envelope{Event: event, Data: payload, RequestID: reqID})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	reply := make(chan types.Ack, 1)
	c.mu.Lock()
	c.pending[reqID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		// treat as not connected so the caller falls back
		return fmt.Errorf("%w: %v", errNotConnected, err)
	}

	select {
	case a := <-reply:
		return ackError(a)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.opts.Clock.After(c.opts.AckTimeout):
		return ErrAckTimeout
	}
}

func (c *Client) resolve(a types.Ack) {
	c.mu.Lock()
	reply, ok := c.pending[a.RequestID]
	c.mu.Unlock()
	if ok {
		select {
		case reply <- a:
		default:
		}
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, reply := range c.pending {
		select {
		case reply <- types.Ack{Kind: kindDisconnected}:
		default:
		}
	}
}

const kindDisconnected = "disconnected"

func ackError(a types.Ack) error {
	if a.OK {
		return nil
	}
	switch a.Kind {
	case "not_found":
		return fmt.Errorf("%w: %s", ErrNotFound, a.Error)
	case "validation", "duplicate_name":
		return fmt.Errorf("%w: %s", ErrBadRequest, a.Error)
	case kindDisconnected:
		return ErrDisconnected
	default:
		return fmt.Errorf("%w: %s", ErrServer, a.Error)
	}
}

// UpdateScore adds points to teamName, or subtracts them when deduction is
// set. points is passed through as typed so the server coerces it.
func (c *Client) UpdateScore(ctx context.Context, teamName, points string, deduction bool) error {
	if deduction {
		points = "-" + points
	}
	err := c.send(ctx, types.EventUpdateScore, types.UpdateScoreRequest{TeamName: teamName, Points: points})
	if !errors.Is(err, errNotConnected) {
		return err
	}
	c.logger.Debug("push channel not connected, falling back to HTTP")
	res, err := c.api.UpdateScore(ctx, teamName, points)
	if err != nil {
		return err
	}
	c.apply(res.Leaderboard, &res.Team)
	return nil
}

func (c *Client) AddTeam(ctx context.Context, in types.TeamInput) error {
	err := c.send(ctx, types.EventAddTeam, types.AddTeamRequest{Name: in.Name, CompanyName: in.CompanyName, Score: in.Score})
	if !errors.Is(err, errNotConnected) {
		return err
	}
	res, err := c.api.AddTeam(ctx, in)
	if err != nil {
		return err
	}
	c.apply(res.Leaderboard, &res.Team)
	return nil
}

func (c *Client) UpdateTeam(ctx context.Context, id string, req types.UpdateTeamRequest) error {
	req.TeamID = id
	err := c.send(ctx, types.EventUpdateTeam, req)
	if !errors.Is(err, errNotConnected) {
		return err
	}
	res, err := c.api.UpdateTeam(ctx, id, req)
	if err != nil {
		return err
	}
	c.apply(res.Leaderboard, &res.Team)
	return nil
}

func (c *Client) DeleteTeam(ctx context.Context, id string) error {
	err := c.send(ctx, types.EventDeleteTeam, types.DeleteTeamRequest{TeamID: id})
	if !errors.Is(err, errNotConnected) {
		return err
	}
	res, err := c.api.DeleteTeam(ctx, id)
	if err != nil {
		return err
	}
	c.apply(res.Leaderboard, nil)
	return nil
}

// ResetScores has no push command; it always goes over HTTP and the
// server broadcasts the result.
func (c *Client) ResetScores(ctx context.Context) error {
	res, err := c.api.ResetScores(ctx)
	if err != nil {
		return err
	}
	if c.State() != StateConnected {
		c.apply(res.Teams, nil)
	}
	return nil
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return base + "/ws"
	}
}
