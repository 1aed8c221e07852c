package server

import (
	"encoding/json"
	"net/http"

	"github.com/hyperjump/menurag/internal/models"
	"github.com/hyperjump/menurag/pkg/utils"
	"go.uber.org/zap"
)

const (
	responseRestaurants = 2
	responseMenuItems   = 3
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	s.logger.Debug("restaurant query", zap.String("question", utils.Truncate(req.Question, 80)))

	resp := models.QueryResponse{
		Answer:         s.answerer.Answer(ctx, req.Question),
		TopRestaurants: []string{},
		TopMenuItems:   []string{},
	}
	for _, rr := range s.searcher.SearchRestaurants(ctx, req.Question, responseRestaurants) {
		resp.TopRestaurants = append(resp.TopRestaurants, rr.Label())
	}
	for _, it := range s.searcher.SearchMenuItems(ctx, req.Question, responseMenuItems) {
		resp.TopMenuItems = append(resp.TopMenuItems, it.Label())
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Restaurant RAG API is running",
		"usage":   "Send POST requests to /api/restaurant-query with a JSON body containing 'question'",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		s.respondError(w, http.StatusNotImplemented, "status not available")
		return
	}
	st, err := s.status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
