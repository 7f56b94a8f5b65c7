package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"booksearcher/internal/history"
	"booksearcher/internal/logging"
	"booksearcher/internal/searcher"
	"booksearcher/internal/services"
	"booksearcher/internal/services/prowlarr"
	"booksearcher/internal/sessioncache"
)

const maxRequestBody = 1 << 20

type searchRequest struct {
	Query     string `json:"query"`
	MediaType string `json:"media_type"`
	Protocol  string `json:"protocol"`
}

type resultView struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Size      int64  `json:"size"`
	Protocol  string `json:"protocol"`
	Indexer   string `json:"indexer"`
	GUID      string `json:"guid"`
	IndexerID int    `json:"indexer_id"`
}

type searchResponse struct {
	SessionID int          `json:"session_id"`
	Query     string       `json:"query"`
	Kind      string       `json:"media_type"`
	Results   []resultView `json:"results"`
	SaveError string       `json:"save_error,omitempty"`
}

type grabRequest struct {
	SessionID int    `json:"session_id"`
	Position  int    `json:"position"`
	GUID      string `json:"guid"`
	IndexerID int    `json:"indexer_id"`
}

type sessionsResponse struct {
	Sessions []sessioncache.Summary `json:"sessions"`
}

type searcherStats struct {
	searcher.Stats
	HitRatio float64 `json:"hit_ratio"`
}

type statsResponse struct {
	Searcher searcherStats      `json:"searcher"`
	Cache    sessioncache.Stats `json:"cache"`
	Client   *prowlarr.Stats    `json:"client,omitempty"`
	History  *history.Totals    `json:"history,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Hint      string `json:"hint,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	kind, err := searcher.ParseKind(req.MediaType)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	run, err := s.deps.Searcher.Search(r.Context(), searcher.Request{
		Query:    req.Query,
		Kind:     kind,
		Protocol: req.Protocol,
		Mode:     sessioncache.ModeHeadless,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	resp := searchResponse{
		SessionID: run.SessionID,
		Query:     run.Request.Query,
		Kind:      string(run.Request.Kind),
		Results:   make([]resultView, 0, len(run.Results)),
	}
	for i, result := range run.Results {
		resp.Results = append(resp.Results, resultView{
			ID:        i + 1,
			Title:     result.Title,
			Size:      result.Size,
			Protocol:  result.Protocol,
			Indexer:   result.Indexer,
			GUID:      result.GUID,
			IndexerID: result.IndexerID,
		})
	}
	if run.SaveErr != nil {
		resp.SaveError = run.SaveErr.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGrab(w http.ResponseWriter, r *http.Request) {
	var req grabRequest
	if !s.decode(w, r, &req) {
		return
	}
	var (
		outcome searcher.GrabOutcome
		err     error
	)
	switch {
	case req.SessionID > 0:
		outcome, err = s.deps.Searcher.Grab(r.Context(), req.SessionID, req.Position)
	case strings.TrimSpace(req.GUID) != "":
		outcome, err = s.deps.Searcher.GrabRelease(r.Context(), req.GUID, req.IndexerID)
	default:
		err = services.Wrap(services.ErrValidation, "api", "grab", "provide session_id and position, or guid and indexer_id", nil)
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.deps.Sessions.List()
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionsResponse{Sessions: summaries})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		s.writeFailure(w, r, services.Wrap(services.ErrValidation, "api", "session", "invalid session id", nil))
		return
	}
	session, err := s.deps.Searcher.Load(id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Searcher.Stats()
	resp := statsResponse{Searcher: searcherStats{Stats: stats, HitRatio: stats.HitRatio()}}
	cacheStats, err := s.deps.Sessions.Stats(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	resp.Cache = cacheStats
	if s.deps.ClientStats != nil {
		client := s.deps.ClientStats()
		resp.Client = &client
	}
	if s.deps.History != nil {
		totals, err := s.deps.History.Totals(r.Context())
		if err != nil {
			logging.WithContext(r.Context(), s.logger).Warn("history totals unavailable", logging.Error(err))
		} else {
			resp.History = &totals
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		s.writeFailure(w, r, services.Wrap(services.ErrValidation, "api", "decode", "request body must be a JSON object", err))
		return false
	}
	return true
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var rejected *prowlarr.GrabRejectedError
	switch {
	case errors.As(err, &rejected), errors.Is(err, prowlarr.ErrNoIndexers):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConfiguration),
		errors.Is(err, services.ErrTransient),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	requestID, _ := services.RequestIDFromContext(r.Context())
	logger := logging.WithContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Warn("api request failed", logging.Int("status", status), logging.Error(err))
	} else {
		logger.Debug("api request rejected", logging.Int("status", status), logging.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Hint: services.Hint(err), RequestID: requestID})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}
