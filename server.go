package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"i4.energy/across/espat/modem"
)

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger *slog.Logger
	Modem  *modem.Modem
	// Token, when set, is required as a bearer token on every request
	Token string
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /heartbeat", s.handleHeartbeat)
	mux.HandleFunc("POST /wifi/join", s.handleJoin)
	mux.HandleFunc("POST /http/get", s.handleHTTPGet)
	mux.HandleFunc("POST /http/post", s.handleHTTPPost)
	mux.ServeHTTP(w, r)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.Token == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) == 1
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	s.sendJSON(w, resp, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// sendModemError maps a failed modem operation to an HTTP status.
func (s *Server) sendModemError(w http.ResponseWriter, err error) {
	var joinErr *modem.JoinError
	switch {
	case errors.As(err, &joinErr):
		s.sendError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, modem.ErrResponseTimeout), errors.Is(err, modem.ErrNoPrompt):
		s.sendError(w, err.Error(), http.StatusGatewayTimeout)
	case errors.Is(err, modem.ErrResponse):
		s.sendError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, modem.ErrAlreadyClosed), errors.Is(err, modem.ErrNotInitialized):
		s.sendError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.sendError(w, err.Error(), http.StatusInternalServerError)
	}
}

// StatusResponse is the JSON form of the modem's status, shared by the
// API and the MQTT monitor.
type StatusResponse struct {
	Modem      string `json:"modem"`
	WiFi       string `json:"wifi"`
	Connection string `json:"connection"`
	Alive      *bool  `json:"alive,omitempty"`
}

func newStatusResponse(st modem.Status) StatusResponse {
	return StatusResponse{
		Modem:      st.Modem.String(),
		WiFi:       st.WiFi.String(),
		Connection: st.Connection.String(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, newStatusResponse(s.Modem.Status()), http.StatusOK)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	alive, err := s.Modem.Heartbeat(r.Context())
	if err != nil {
		s.Logger.Error("Heartbeat failed", "error", err)
		s.sendModemError(w, err)
		return
	}

	resp := newStatusResponse(s.Modem.Status())
	resp.Alive = &alive
	s.sendJSON(w, resp, http.StatusOK)
}

// handleJoin connects the modem's station to an access point
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	type JoinRequest struct {
		SSID     string `json:"ssid"`
		Password string `json:"password"`
	}

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.SSID == "" {
		s.sendError(w, "'ssid' field is required", http.StatusBadRequest)
		return
	}

	if err := s.Modem.JoinAP(r.Context(), req.SSID, req.Password); err != nil {
		s.Logger.Error("Failed to join access point", "error", err, "ssid", req.SSID)
		s.sendModemError(w, err)
		return
	}

	s.Logger.Info("Joined access point", "ssid", req.SSID)
	s.sendJSON(w, newStatusResponse(s.Modem.Status()), http.StatusOK)
}

// handleHTTPGet fetches a URL through the modem and relays the body
func (s *Server) handleHTTPGet(w http.ResponseWriter, r *http.Request) {
	type GetRequest struct {
		URL string `json:"url"`
	}

	var req GetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.URL == "" {
		s.sendError(w, "'url' field is required", http.StatusBadRequest)
		return
	}

	body, err := s.Modem.HTTPGet(r.Context(), req.URL)
	if err != nil {
		s.Logger.Error("HTTP GET through modem failed", "error", err, "url", req.URL)
		s.sendModemError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// handleHTTPPost sends a payload to a URL through the modem
func (s *Server) handleHTTPPost(w http.ResponseWriter, r *http.Request) {
	type PostRequest struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
		Body        string `json:"body"`
	}

	var req PostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.URL == "" || req.Body == "" {
		s.sendError(w, "both 'url' and 'body' fields are required", http.StatusBadRequest)
		return
	}

	var headers []string
	if req.ContentType != "" {
		headers = append(headers, "Content-Type: "+req.ContentType)
	}

	if err := s.Modem.HTTPPost(r.Context(), req.URL, []byte(req.Body), headers...); err != nil {
		s.Logger.Error("HTTP POST through modem failed", "error", err, "url", req.URL)
		s.sendModemError(w, err)
		return
	}

	s.Logger.Info("HTTP POST sent", "url", req.URL, "body_length", len(req.Body))
	w.WriteHeader(http.StatusOK)
}
