package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/DoyleJ11/live-leaderboard/internal/leaderboard"
	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if err := writeJSON(w, status, types.ErrorResponse{Message: message}); err != nil {
		http.Error(w, message, status)
	}
}

// writeServiceError maps a service error to its status and {message} body.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	kind := leaderboard.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.String("kind", string(kind)), zap.Error(err))
	}
	writeError(w, status, leaderboard.Message(err))
}

func statusFor(kind leaderboard.Kind) int {
	switch kind {
	case leaderboard.KindValidation, leaderboard.KindDuplicateName:
		return http.StatusBadRequest
	case leaderboard.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
