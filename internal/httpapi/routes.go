package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/live-leaderboard/internal/hub"
	"github.com/DoyleJ11/live-leaderboard/internal/leaderboard"
	"github.com/DoyleJ11/live-leaderboard/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	WS             ws.Options
}

func SetupRoutes(h *hub.Hub, svc *leaderboard.Service, opts Options, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}).Handler)

	r.Mount("/teams", teamRoutes(svc, opts, logger.Named("teams")))
	r.Mount("/api/teams", teamRoutes(svc, opts, logger.Named("teams")))

	r.Get("/healthz", Healthz(h))
	r.Get("/health", Healthz(h))

	// Push channel
	r.Get("/ws", ws.Handler(h, svc, opts.WS, logger.Named("ws")))
	return r
}

func teamRoutes(svc *leaderboard.Service, opts Options, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/", ListTeams(svc, logger))
	r.Post("/", InitializeTeams(svc, logger))
	r.Post("/add", AddTeam(svc, logger))
	r.Put("/score", UpdateScore(svc, logger))
	r.Put("/reset", ResetScores(svc, logger))
	r.Put("/{teamId}", UpdateTeam(svc, logger))
	r.Delete("/{teamId}", DeleteTeam(svc, logger))
	return r
}
