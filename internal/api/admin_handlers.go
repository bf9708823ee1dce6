package api

import (
	"net/http"
	"time"

	"github.com/breakdesk/breakdesk/internal/auth"
	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type createUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	TeamID    string `json:"team_id"`
	IsAdmin   bool   `json:"is_admin"`
}

type createTeamRequest struct {
	Name                string `json:"name"`
	MaxConcurrentPauses int    `json:"max_concurrent_pauses"`
}

type assignTeamRequest struct {
	TeamID string `json:"team_id"`
}

type setPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type adminStats struct {
	TotalUsers   int `json:"total_users"`
	TotalTeams   int `json:"total_teams"`
	ActivePauses int `json:"active_pauses"`
	FlaggedUsers int `json:"flagged_users"`
}

// handleAdminStats summarizes the deployment for the admin dashboard.
func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.Users().List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	teams, err := s.store.Teams().List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stats := adminStats{
		TotalUsers: len(users),
		TotalTeams: len(teams),
	}
	for _, user := range users {
		if user.BreakLimitExceeded {
			stats.FlaggedUsers++
		}
	}
	for _, team := range teams {
		count, err := s.store.Sessions().CountActiveByTeam(r.Context(), team.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		stats.ActivePauses += count
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.Users().List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handleAdminCreateUser provisions an account directly, optionally attached
// to a team and with the admin role.
func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
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

	if req.TeamID != "" {
		if _, err := s.store.Teams().Get(r.Context(), req.TeamID); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user := storage.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		IsAdmin:      req.IsAdmin,
		TeamID:       req.TeamID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Users().Upsert(r.Context(), user); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User created by admin")
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	if userID == requestUser(r).ID {
		writeError(w, http.StatusBadRequest, "Cannot delete your own account")
		return
	}

	if err := s.store.Users().Delete(r.Context(), userID); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info().Str("user_id", userID).Msg("User deleted")
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

// handleAdminAssignTeam moves a user between teams. An empty team_id removes
// the user from their team.
func (s *Server) handleAdminAssignTeam(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	var req assignTeamRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.TeamID != "" {
		if _, err := s.store.Teams().Get(r.Context(), req.TeamID); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	if err := s.store.Users().SetTeam(r.Context(), userID, req.TeamID); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info().Str("user_id", userID).Str("team_id", req.TeamID).Msg("User team assignment changed")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Team assignment updated"})
}

func (s *Server) handleAdminSetPassword(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	var req setPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	user, err := s.store.Users().Get(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user.PasswordHash = hash
	if err := s.store.Users().Upsert(r.Context(), *user); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info().Str("user_id", userID).Msg("Password reset by admin")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// handleAdminClearBreakFlag clears a user's exceeded flag. Clearing a clear
// flag succeeds.
func (s *Server) handleAdminClearBreakFlag(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	if _, err := s.store.Users().Get(r.Context(), userID); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.manager.ClearExceededFlag(r.Context(), userID); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info().Str("user_id", userID).Msg("Break limit flag cleared")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Break limit flag cleared"})
}

func (s *Server) handleAdminCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Team name is required")
		return
	}

	limit := req.MaxConcurrentPauses
	if limit <= 0 {
		limit = s.defaultTeamLimit
	}

	team := storage.Team{
		ID:                  uuid.NewString(),
		Name:                req.Name,
		MaxConcurrentPauses: limit,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.store.Teams().Upsert(r.Context(), team); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info().Str("team_id", team.ID).Str("name", team.Name).Msg("Team created")
	writeJSON(w, http.StatusCreated, team)
}

func (s *Server) handleAdminUpdateTeam(w http.ResponseWriter, r *http.Request) {
	teamID := mux.Vars(r)["id"]

	team, err := s.store.Teams().Get(r.Context(), teamID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req createTeamRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Name != "" {
		team.Name = req.Name
	}
	if req.MaxConcurrentPauses > 0 {
		team.MaxConcurrentPauses = req.MaxConcurrentPauses
	}

	if err := s.store.Teams().Upsert(r.Context(), *team); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleAdminDeleteTeam(w http.ResponseWriter, r *http.Request) {
	teamID := mux.Vars(r)["id"]

	if _, err := s.store.Teams().Get(r.Context(), teamID); err != nil {
		writeDomainError(w, err)
		return
	}

	// Detach members first so no user points at a missing team.
	users, err := s.store.Users().List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	for _, user := range users {
		if user.TeamID != teamID {
			continue
		}
		if err := s.store.Users().SetTeam(r.Context(), user.ID, ""); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	if err := s.store.Teams().Delete(r.Context(), teamID); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info().Str("team_id", teamID).Msg("Team deleted")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Team deleted"})
}
