package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/breakdesk/breakdesk/internal/auth"
	"github.com/breakdesk/breakdesk/internal/pause"
	"github.com/breakdesk/breakdesk/internal/storage"
)

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

// writeDomainError maps core errors onto HTTP statuses. Conflicts and
// admission rejections are expected outcomes, not server failures.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pause.ErrInvalidCategory):
		writeError(w, http.StatusBadRequest, "Invalid category")
	case errors.Is(err, pause.ErrNoTeam):
		writeError(w, http.StatusBadRequest, "No team assigned")
	case errors.Is(err, pause.ErrAlreadyActive):
		writeError(w, http.StatusConflict, "Already on pause")
	case errors.Is(err, pause.ErrTeamAtCapacity):
		writeError(w, http.StatusConflict, "Team pause limit reached")
	case errors.Is(err, pause.ErrNoActiveSession):
		writeError(w, http.StatusNotFound, "No active pause session")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Invalid token")
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
