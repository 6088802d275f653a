package http

import (
	"log/slog"
	"net/http"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type profileResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}

	if err := s.startSession(w, r, userID); err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusCreated, profileResponse{ID: userID, Username: req.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}

	if err := s.startSession(w, r, userID); err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}
	slog.InfoContext(r.Context(), "User logged in", "user_id", userID)
	respondJSON(r.Context(), w, http.StatusOK, profileResponse{ID: userID, Username: req.Username})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if err := s.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			slog.WarnContext(r.Context(), "Failed destroying session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, ownerID int64) {
	username, err := s.auth.Username(r.Context(), ownerID)
	if err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, profileResponse{ID: ownerID, Username: username})
}

// startSession mints a session token and sets the cookie on the response.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	token, err := s.sessions.Create(r.Context(), userID, s.sessionTTL)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
