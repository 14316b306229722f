package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/DoyleJ11/live-leaderboard/internal/config"
	"github.com/DoyleJ11/live-leaderboard/internal/httpapi"
	"github.com/DoyleJ11/live-leaderboard/internal/hub"
	"github.com/DoyleJ11/live-leaderboard/internal/leaderboard"
	"github.com/DoyleJ11/live-leaderboard/internal/logger"
	"github.com/DoyleJ11/live-leaderboard/internal/store"
	"github.com/DoyleJ11/live-leaderboard/internal/ws"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Module wires the leaderboard server. Config is expected to be supplied
// by the caller (fx.Supply or fx.Provide(config.Load)).
var Module = fx.Options(
	fx.Provide(NewLogger),
	fx.Provide(NewStore),
	fx.Provide(NewHub),
	fx.Provide(NewService),
	fx.Provide(NewRouter),
	fx.Provide(NewHTTPServer),
	fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: l.Named("fx")}
	}),
)

// New builds the full server application from the environment.
func New(opts ...fx.Option) *fx.App {
	return fx.New(
		fx.Provide(config.Load),
		Module,
		fx.Options(opts...),
		fx.Invoke(func(*http.Server) {}),
	)
}

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	l, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	l.Info("configuration loaded", cfg.Fields()...)
	return l, nil
}

func NewStore(lc fx.Lifecycle, cfg *config.Config, l *zap.Logger) (leaderboard.Store, error) {
	log := l.Named("store")
	backend, err := store.Open(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := backend.Close(ctx); err != nil {
				log.Warn("error closing store", zap.Error(err))
			}
			return nil
		},
	})
	return backend, nil
}

// NewHub returns an attached hub. Its loop lives until OnStop.
func NewHub(lc fx.Lifecycle, l *zap.Logger) *hub.Hub {
	h := hub.NewHub(l.Named("hub"))
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			h.Start(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-h.Done():
			case <-stopCtx.Done():
			}
			return nil
		},
	})
	return h
}

func NewService(s leaderboard.Store, h *hub.Hub, l *zap.Logger) *leaderboard.Service {
	return leaderboard.NewService(s, h, l.Named("leaderboard"))
}

func NewRouter(cfg *config.Config, h *hub.Hub, svc *leaderboard.Service, l *zap.Logger) http.Handler {
	return httpapi.SetupRoutes(h, svc, httpapi.Options{
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		WS: ws.Options{
			OriginPatterns: originPatterns(cfg.CORSOrigins),
			PingInterval:   cfg.WSPingInterval,
			WriteTimeout:   cfg.WSWriteTimeout,
			OutboxSize:     cfg.WSOutboxSize,
		},
	}, l)
}

func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, handler http.Handler, l *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: handler,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			go func() {
				l.Info("server starting", zap.String("addr", ln.Addr().String()))
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					l.Error("server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			l.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				l.Error("server shutdown failed", zap.Error(err))
				return err
			}
			l.Info("server stopped gracefully")
			return nil
		},
	})
	return srv
}

// originPatterns turns CORS origins into websocket host patterns
// ("http://localhost:3000" -> "localhost:3000").
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		out = append(out, o)
	}
	return out
}
