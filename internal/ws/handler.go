package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/live-leaderboard/internal/hub"
	"github.com/DoyleJ11/live-leaderboard/internal/leaderboard"
	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"github.com/coder/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

type Options struct {
	OriginPatterns []string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	OutboxSize     int
	ReadLimit      int64
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 16
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	return o
}

// Handler upgrades to a push channel. Every connection is a hub member for
// its whole life; commands it sends are run through the service and
// answered with an ack to this connection only.
func Handler(h *hub.Hub, svc *leaderboard.Service, opts Options, logger *zap.Logger) http.HandlerFunc {
	opts = opts.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(opts.ReadLimit)

		clientID, err := gonanoid.New()
		if err != nil {
			conn.Close(websocket.StatusInternalError, "failed to assign client id")
			return
		}
		log := logger.With(zap.String("client_id", clientID))

		out := make(chan []byte, opts.OutboxSize)
		if err := h.Join(r.Context(), clientID, out); err != nil {
			log.Warn("hub rejected client", zap.Error(err))
			conn.Close(websocket.StatusTryAgainLater, "leaderboard unavailable")
			return
		}
		defer func() { _ = h.Leave(context.Background(), clientID) }()
		log.Info("client connected", zap.String("remote_addr", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		go func() {
			defer cancel()
			writeLoop(ctx, conn, out, opts, log)
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Info("client disconnected")
				default:
					log.Info("client connection lost", zap.Error(err))
				}
				return
			}
			handleFrame(ctx, h, svc, clientID, data, log)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan []byte, opts Options, log *zap.Logger) {
	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-out:
			if !ok {
				// the hub let go of us: too slow, or shutting down
				conn.Close(websocket.StatusGoingAway, "dropped by server, reconnect to resync")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, frame)
			wcancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func handleFrame(ctx context.Context, h *hub.Hub, svc *leaderboard.Service, clientID string, data []byte, log *zap.Logger) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ack := types.Ack{Error: "bad json", Kind: string(leaderboard.KindValidation)}
		if err := h.Send(ctx, clientID, types.EventAck, "", ack); err != nil {
			log.Debug("ack not delivered", zap.Error(err))
		}
		return
	}

	cmd, err := toCommand(env)
	if err == nil {
		_, err = svc.Apply(ctx, cmd)
	}

	ack := types.Ack{RequestID: env.RequestID, Event: env.Event, OK: err == nil}
	if err != nil {
		ack.Error = leaderboard.Message(err)
		ack.Kind = string(leaderboard.KindOf(err))
		log.Warn("command failed",
			zap.String("event", env.Event),
			zap.String("request_id", env.RequestID),
			zap.String("kind", ack.Kind),
			zap.Error(err))
	}

	// queued behind the broadcast the service just published
	if err := h.Send(ctx, clientID, types.EventAck, env.RequestID, ack); err != nil {
		log.Debug("ack not delivered", zap.Error(err))
	}
}

func toCommand(env types.Envelope) (leaderboard.Command, error) {
	switch env.Event {
	case types.EventUpdateScore:
		var req types.UpdateScoreRequest
		if err := decodeData(env.Data, &req); err != nil {
			return leaderboard.Command{}, err
		}
		return leaderboard.Command{Type: leaderboard.CmdUpdateScore, TeamName: req.TeamName, Points: req.Points}, nil

	case types.EventAddTeam:
		var req types.AddTeamRequest
		if err := decodeData(env.Data, &req); err != nil {
			return leaderboard.Command{}, err
		}
		return leaderboard.Command{
			Type: leaderboard.CmdAddTeam,
			Team: types.TeamInput{Name: req.Name, CompanyName: req.CompanyName, Score: req.Score},
		}, nil

	case types.EventDeleteTeam:
		var req types.DeleteTeamRequest
		if err := decodeData(env.Data, &req); err != nil {
			return leaderboard.Command{}, err
		}
		return leaderboard.Command{Type: leaderboard.CmdDeleteTeam, TeamID: req.TeamID}, nil

	case types.EventUpdateTeam:
		var req types.UpdateTeamRequest
		if err := decodeData(env.Data, &req); err != nil {
			return leaderboard.Command{}, err
		}
		return leaderboard.Command{Type: leaderboard.CmdUpdateTeam, TeamID: req.TeamID, Patch: leaderboard.PatchFromRequest(req)}, nil

	default:
		return leaderboard.Command{}, leaderboard.ErrUnsupportedCommand
	}
}

// decodeData keeps numbers as json.Number so large scores survive coercion.
func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return &leaderboard.ValidationError{Field: "data", Message: "Missing event data"}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) {
			return &leaderboard.ValidationError{Field: ute.Field, Message: "Invalid value for " + ute.Field}
		}
		return &leaderboard.ValidationError{Field: "data", Message: "Malformed event data"}
	}
	return nil
}
