package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/DoyleJ11/live-leaderboard/internal/hub"
	"github.com/DoyleJ11/live-leaderboard/internal/leaderboard"
	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const msgBadBody = "Invalid JSON body"

var errBadBody = errors.New("invalid JSON body")

func ListTeams(svc *leaderboard.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teams, err := svc.ListRanked(r.Context())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		_ = writeJSON(w, http.StatusOK, teams)
	}
}

func InitializeTeams(svc *leaderboard.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.InitializeRequest
		if decodeBody(r, &req) != nil {
			writeError(w, http.StatusBadRequest, msgBadBody)
			return
		}
		var inputs []types.TeamInput
		if !isJSONArray(req.Teams) || decodeNumbers(req.Teams, &inputs) != nil {
			writeError(w, http.StatusBadRequest, "Invalid request. Teams array is required.")
			return
		}

		res, err := svc.Initialize(r.Context(), inputs)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		_ = writeJSON(w, status, types.TeamsResponse{Message: res.Message, Teams: res.Teams})
	}
}

func AddTeam(svc *leaderboard.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.AddTeamRequest
		if decodeBody(r, &req) != nil {
			writeError(w, http.StatusBadRequest, msgBadBody)
			return
		}

		res, err := svc.AddTeam(r.Context(), types.TeamInput{Name: req.Name, CompanyName: req.CompanyName, Score: req.Score})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		_ = writeJSON(w, http.StatusCreated, types.TeamResponse{Message: res.Message, Team: res.Team, Leaderboard: res.Teams})
	}
}

func UpdateScore(svc *leaderboard.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.UpdateScoreRequest
		if decodeBody(r, &req) != nil {
			writeError(w, http.StatusBadRequest, msgBadBody)
			return
		}

		res, err := svc.UpdateScore(r.Context(), req.TeamName, req.Points)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		_ = writeJSON(w, http.StatusOK, types.TeamResponse{Message: res.Message, Team: res.Team, Leaderboard: res.Teams})
	}
}

func ResetScores(svc *leaderboard.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.ResetAll(r.Context())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		_ = writeJSON(w, http.StatusOK, types.TeamsResponse{Message: res.Message, Teams: res.Teams})
	}
}

func UpdateTeam(svc *leaderboard.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.UpdateTeamRequest
		if decodeBody(r, &req) != nil {
			writeError(w, http.StatusBadRequest, msgBadBody)
			return
		}
		id := chi.URLParam(r, "teamId")

		res, err := svc.UpdateDetails(r.Context(), id, leaderboard.PatchFromRequest(req))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		_ = writeJSON(w, http.StatusOK, types.TeamResponse{Message: res.Message, Team: res.Team, Leaderboard: res.Teams})
	}
}

func DeleteTeam(svc *leaderboard.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "teamId")

		res, err := svc.DeleteTeam(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		_ = writeJSON(w, http.StatusOK, types.DeleteResponse{Message: res.Message, TeamID: res.Team.ID, Leaderboard: res.Teams})
	}
}

type healthResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Hub     hub.Stats `json:"hub"`
}

func Healthz(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := h.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "Broadcast hub unavailable")
			return
		}
		_ = writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Message: "Server is running", Hub: stats})
	}
}

// decodeBody reads an optional JSON object. An empty body decodes as {}.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errBadBody
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := decodeNumbers(body, v); err != nil {
		return errBadBody
	}
	return nil
}

// decodeNumbers keeps numeric fields as json.Number for coercion.
func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
