// Package api serves the guide's JSON endpoints: chat, recognition, the
// feature catalog and per-client recording control.
//
//	POST   /v1/chat                          answer a typed or spoken message
//	POST   /v1/recognize                     resolve image classifier output
//	GET    /v1/features                      list the catalog in order
//	POST   /v1/clients/{id}/recording/start  begin recording the client
//	POST   /v1/clients/{id}/recording/stop   end the recording, return status
//	GET    /v1/clients/{id}/recording        recording status
//	DELETE /v1/clients/{id}/recording        discard the active recording
//
// Errors are reported as {"error": "..."} with an appropriate status code.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/museguide/internal/chat"
	"github.com/MrWong99/museguide/internal/exhibit"
	"github.com/MrWong99/museguide/internal/ingest"
	"github.com/MrWong99/museguide/internal/observe"
	"github.com/MrWong99/museguide/internal/recorder"
	"github.com/MrWong99/museguide/internal/resilience"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Chatter answers chat messages and recognition results.
type Chatter interface {
	Respond(ctx context.Context, message string) (chat.Reply, error)
	Recognize(ctx context.Context, results []chat.Classification) (chat.Recognition, error)
}

// Recorders starts recordings and hands out the controllers of clients that
// have one. A failed Start must not leave a controller behind for a client
// that never recorded.
type Recorders interface {
	Start(clientID string) error
	Lookup(clientID string) (*recorder.Controller, bool)
}

// Server implements the HTTP endpoints. Create one with [New].
type Server struct {
	chat      Chatter
	features  chat.FeatureLister
	recorders Recorders
}

// New creates a Server.
func New(c Chatter, features chat.FeatureLister, recorders Recorders) *Server {
	return &Server{chat: c, features: features, recorders: recorders}
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("POST /v1/recognize", s.handleRecognize)
	mux.HandleFunc("GET /v1/features", s.handleFeatures)
	mux.HandleFunc("POST /v1/clients/{id}/recording/start", s.handleStart)
	mux.HandleFunc("POST /v1/clients/{id}/recording/stop", s.handleStop)
	mux.HandleFunc("GET /v1/clients/{id}/recording", s.handleStatus)
	mux.HandleFunc("DELETE /v1/clients/{id}/recording", s.handleRelease)
}

// Handler returns a standalone handler serving only the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// chatRequest is the JSON body for POST /v1/chat.
type chatRequest struct {
	Message string `json:"message"`
}

// recognizeRequest is the JSON body for POST /v1/recognize.
type recognizeRequest struct {
	Results []chat.Classification `json:"results"`
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	reply, err := s.chat.Respond(r.Context(), req.Message)
	if err != nil {
		s.internal(w, r, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	var req recognizeRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.chat.Recognize(r.Context(), req.Results)
	if err != nil {
		s.internal(w, r, "recognize", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	features, err := s.features.List(r.Context())
	if err != nil {
		s.internal(w, r, "list features", err)
		return
	}
	if features == nil {
		features = []exhibit.Feature{}
	}
	writeJSON(w, http.StatusOK, features)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.recorders.Start(id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, recorder.ErrNotIdle):
		writeError(w, http.StatusConflict, "a recording is already in progress")
	case errors.Is(err, ingest.ErrNoStream):
		writeError(w, http.StatusConflict, fmt.Sprintf("client %q is not streaming audio", id))
	case errors.Is(err, resilience.ErrCircuitOpen):
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, "recording is temporarily unavailable")
	default:
		s.internal(w, r, "start recording", err)
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	c, ok := s.recorders.Lookup(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusOK, recorder.Status{})
		return
	}
	c.Stop()
	writeJSON(w, http.StatusOK, c.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := s.recorders.Lookup(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusOK, recorder.Status{})
		return
	}
	writeJSON(w, http.StatusOK, c.Status())
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	if c, ok := s.recorders.Lookup(r.PathValue("id")); ok {
		c.Release()
	}
	w.WriteHeader(http.StatusNoContent)
}

// internal logs err and replies 500 without leaking the cause.
func (s *Server) internal(w http.ResponseWriter, r *http.Request, op string, err error) {
	observe.Logger(r.Context()).Error("api: "+op+" failed", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, op+" failed")
}

// decode reads a JSON body into v, replying 400 or 413 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+strings.TrimPrefix(err.Error(), "json: "))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
