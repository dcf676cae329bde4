// Package server exposes the auth service HTTP API: the login page a
// user clicks through, session start/status endpoints for that page,
// and the credential read API consumed by resolvers in other
// processes.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/parentsync/parentsync/pkg/auth"
	"github.com/parentsync/parentsync/pkg/credentials"
	"github.com/parentsync/parentsync/pkg/credentials/store"
	"github.com/parentsync/parentsync/pkg/logging"
)

// Version reported by the health endpoint.
const Version = "1.0.0"

// CookieStore is the slice of the credential store the API serves.
type CookieStore interface {
	Load() (credentials.Bundle, error)
	Clear() error
	Exists() bool
}

// AuthManager is the slice of the browser session manager the API
// drives.
type AuthManager interface {
	StartSession() (string, error)
	SessionStatus(sessionID string) auth.StatusRecord
}

// Server routes auth service requests.
type Server struct {
	store CookieStore
	auth  AuthManager
	log   *logging.Logger
}

// New creates a server over the given store and session manager.
func New(cookieStore CookieStore, authManager AuthManager, log *logging.Logger) *Server {
	return &Server{store: cookieStore, auth: authManager, log: log}
}

// Handler returns the HTTP handler for the auth service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/start", s.handleAuthStart)
	mux.HandleFunc("GET /api/auth/status/{id}", s.handleAuthStatus)
	mux.HandleFunc("GET /api/cookies", s.handleGetCookies)
	mux.HandleFunc("GET /api/cookies/check", s.handleCheckCookies)
	mux.HandleFunc("DELETE /api/cookies", s.handleDeleteCookies)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "parentsync-auth",
		"version": Version,
	})
}

func (s *Server) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	sessionID, err := s.auth.StartSession()
	if err != nil {
		s.log.Errorf("failed to start auth session: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	s.log.Infof("started auth session %s", sessionID)
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"status":     "started",
		"message":    "Authentication session started",
	})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	record := s.auth.SessionStatus(r.PathValue("id"))
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleGetCookies(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.store.Load()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "No cookies found"})
			return
		}
		s.log.Errorf("failed to load cookies: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cookies": bundle.Cookies,
		"status":  "success",
		"count":   bundle.Len(),
	})
}

func (s *Server) handleCheckCookies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"exists": s.store.Exists()})
}

func (s *Server) handleDeleteCookies(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(); err != nil {
		s.log.Errorf("failed to delete cookies: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Cookies deleted"})
}
