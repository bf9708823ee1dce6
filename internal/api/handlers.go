package api

import (
	"net/http"
	"time"

	"github.com/breakdesk/breakdesk/internal/auth"
	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type startPauseRequest struct {
	Category storage.Category `json:"category"`
}

type authResponse struct {
	User  *storage.User `json:"user"`
	Token string        `json:"token"`
}

// handleRegister creates a new user account. The very first account becomes
// an administrator so a fresh deployment can be managed without seed data.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" || req.FirstName == "" {
		writeError(w, http.StatusBadRequest, "Email, password and first name are required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	if _, err := s.store.Users().GetByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	existing, err := s.store.Users().List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	user := storage.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		IsAdmin:      len(existing) == 0,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Users().Upsert(r.Context(), user); err != nil {
		writeDomainError(w, err)
		return
	}

	token, err := s.auth.IssueToken(&user)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User registered")
	writeJSON(w, http.StatusCreated, authResponse{User: &user, Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, token, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, requestUser(r))
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	user := requestUser(r)
	if err := s.auth.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.store.Teams().List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

// handleMyTeam returns the caller's team together with its live pauses.
func (s *Server) handleMyTeam(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	if user.TeamID == "" {
		writeError(w, http.StatusNotFound, "No team assigned")
		return
	}

	team, err := s.store.Teams().Get(r.Context(), user.TeamID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	users, err := s.store.Users().List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	members := make([]storage.User, 0)
	for _, u := range users {
		if u.TeamID == team.ID {
			members = append(members, u)
		}
	}

	active, err := s.manager.TeamActiveSessions(r.Context(), team.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"team":            team,
		"members":         members,
		"active_sessions": active,
	})
}

func (s *Server) handleTeamSessions(w http.ResponseWriter, r *http.Request) {
	teamID := mux.Vars(r)["id"]

	user := requestUser(r)
	if !user.IsAdmin && user.TeamID != teamID {
		writeError(w, http.StatusForbidden, "Not a member of this team")
		return
	}

	if _, err := s.store.Teams().Get(r.Context(), teamID); err != nil {
		writeDomainError(w, err)
		return
	}

	active, err := s.manager.TeamActiveSessions(r.Context(), teamID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, active)
}

func (s *Server) handleStartPause(w http.ResponseWriter, r *http.Request) {
	var req startPauseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := s.manager.StartPause(r.Context(), requestUser(r).ID, req.Category)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleEndPause(w http.ResponseWriter, r *http.Request) {
	session, report, err := s.manager.EndPause(r.Context(), requestUser(r).ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": session,
		"usage":   report,
	})
}

// handleMyStatus reports whether the caller is on pause right now.
func (s *Server) handleMyStatus(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.ActiveSession(r.Context(), requestUser(r).ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"on_pause": session != nil,
		"session":  session,
	})
}

func (s *Server) handleMyUsage(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.UsageToday(r.Context(), requestUser(r).ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
