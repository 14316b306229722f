package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"go.uber.org/zap"
)

var ErrNotStarted = errors.New("hub not started")
var ErrStopped = errors.New("hub stopped")

type State string

const (
	StateUninitialized State = "uninitialized"
	StateActive        State = "active"
)

type HubMsg interface{ isHubMsg() }

// Join registers a push channel. Frames for the member are written to
// Outbox; the hub owns it from here on and closes it on Leave, when the
// member falls behind, or on shutdown.
type Join struct {
	ClientID string
	Outbox   chan []byte
}

type Leave struct{ ClientID string }

// Broadcast is a pre-encoded envelope for every member.
type Broadcast struct {
	Event string
	Frame []byte
}

// Direct is a pre-encoded envelope for a single member.
type Direct struct {
	ClientID string
	Frame    []byte
}

type GetStats struct {
	Reply chan Stats
}

type Stats struct {
	State     State  `json:"state"`
	Clients   int    `json:"clients"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

func (Join) isHubMsg()      {}
func (Leave) isHubMsg()     {}
func (Broadcast) isHubMsg() {}
func (Direct) isHubMsg()    {}
func (GetStats) isHubMsg()  {}

// Hub is the process-wide set of connected push channels. A single
// goroutine owns the member map, so broadcasts go out in the order they
// were submitted.
type Hub struct {
	inbox   chan HubMsg
	clients map[string]chan []byte
	logger  *zap.Logger

	published uint64
	dropped   uint64

	active atomic.Bool
	once   sync.Once
	ctx    context.Context
	done   chan struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		inbox:   make(chan HubMsg, 64),
		clients: make(map[string]chan []byte),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start attaches the hub and moves it to StateActive. Later calls are
// no-ops. The loop runs until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	h.once.Do(func() {
		h.ctx = ctx
		h.active.Store(true)
		go h.loop()
		h.logger.Info("hub active")
	})
}

func (h *Hub) State() State {
	if h.active.Load() {
		return StateActive
	}
	return StateUninitialized
}

// Done is closed once the loop has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				if old, ok := h.clients[msg.ClientID]; ok {
					close(old)
				}
				h.clients[msg.ClientID] = msg.Outbox
				h.logger.Debug("client joined", zap.String("client_id", msg.ClientID), zap.Int("clients", len(h.clients)))

			case Leave:
				if ch, ok := h.clients[msg.ClientID]; ok {
					close(ch)
					delete(h.clients, msg.ClientID)
				}
				h.logger.Debug("client left", zap.String("client_id", msg.ClientID), zap.Int("clients", len(h.clients)))

			case Broadcast:
				h.published++
				h.broadcast(msg.Frame)
				h.logger.Debug("event broadcast", zap.String("event", msg.Event), zap.Int("clients", len(h.clients)))

			case Direct:
				if ch, ok := h.clients[msg.ClientID]; ok {
					h.deliver(msg.ClientID, ch, msg.Frame)
				}

			case GetStats:
				msg.Reply <- Stats{
					State:     StateActive,
					Clients:   len(h.clients),
					Published: h.published,
					Dropped:   h.dropped,
				}
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.clients {
		close(ch) // no more frames for this member
		delete(h.clients, id)
	}
	h.logger.Info("hub stopped")
}

func (h *Hub) broadcast(frame []byte) {
	for id, ch := range h.clients {
		h.deliver(id, ch, frame)
	}
}

func (h *Hub) deliver(id string, ch chan []byte, frame []byte) {
	select {
	case ch <- frame:
	default:
		// Member is slow/full - drop it, it resyncs on reconnect.
		close(ch)
		delete(h.clients, id)
		h.dropped++
		h.logger.Warn("dropping slow client", zap.String("client_id", id))
	}
}

func (h *Hub) submit(ctx context.Context, m HubMsg) error {
	if !h.active.Load() {
		return ErrNotStarted
	}
	select {
	case <-h.done:
		return ErrStopped
	default:
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Join(ctx context.Context, clientID string, outbox chan []byte) error {
	return h.submit(ctx, Join{ClientID: clientID, Outbox: outbox})
}

func (h *Hub) Leave(ctx context.Context, clientID string) error {
	return h.submit(ctx, Leave{ClientID: clientID})
}

// Publish sends payload under event to every member connected right now.
// Members that join later never see it. Publishing before Start is a
// no-op, there is nobody to tell.
func (h *Hub) Publish(ctx context.Context, event string, payload any) error {
	if !h.active.Load() {
		h.logger.Debug("hub not attached, dropping event", zap.String("event", event))
		return nil
	}
	frame, err := Encode(event, "", payload)
	if err != nil {
		return err
	}
	return h.submit(ctx, Broadcast{Event: event, Frame: frame})
}

// Send delivers payload to one member only.
func (h *Hub) Send(ctx context.Context, clientID, event, requestID string, payload any) error {
	frame, err := Encode(event, requestID, payload)
	if err != nil {
		return err
	}
	return h.submit(ctx, Direct{ClientID: clientID, Frame: frame})
}

func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	if !h.active.Load() {
		return Stats{State: StateUninitialized}, nil
	}
	reply := make(chan Stats, 1)
	if err := h.submit(ctx, GetStats{Reply: reply}); err != nil {
		return Stats{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-h.done:
		return Stats{}, ErrStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Encode builds a wire envelope around payload.
func Encode(event, requestID string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	frame, err := json.Marshal(types.Envelope{Event: event, Data: data, RequestID: requestID})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", event, err)
	}
	return frame, nil
}
