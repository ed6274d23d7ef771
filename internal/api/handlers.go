package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/coindle/internal/calendar"
	"github.com/MJE43/coindle/internal/feed"
	"github.com/MJE43/coindle/internal/scoretoken"
	"github.com/MJE43/coindle/internal/stats"
)

const maxSubmitBody = 4 << 10

// handleSubmit verifies and records a finished score.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	var req SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody))
	if err := dec.Decode(&req); err != nil {
		s.rejectSubmit(w, r, http.StatusBadRequest,
			s.errorHandler.ValidationError(r, ErrTypeInvalidBody, "body", "request body must be a JSON object"))
		return
	}

	switch {
	case req.Score == nil:
		s.rejectSubmit(w, r, http.StatusBadRequest,
			s.errorHandler.ValidationError(r, ErrTypeInvalidScore, "score", "score is required"))
		return
	case *req.Score < 0:
		s.rejectSubmit(w, r, http.StatusBadRequest,
			s.errorHandler.ValidationError(r, ErrTypeInvalidScore, "score", "score must be non-negative"))
		return
	case strings.TrimSpace(req.Token) == "":
		s.rejectSubmit(w, r, http.StatusBadRequest,
			s.errorHandler.ValidationError(r, ErrTypeValidation, "token", "token is required"))
		return
	}

	day, err := calendar.Parse(req.Date)
	if err != nil {
		s.rejectSubmit(w, r, http.StatusBadRequest,
			s.errorHandler.ValidationError(r, ErrTypeInvalidDate, "date", "date must be YYYY-M-D"))
		return
	}

	sub := scoretoken.Submission{Score: *req.Score, Date: day, Token: req.Token}
	snap, err := s.agg.Submit(r.Context(), sub)
	switch {
	case err == nil:
		s.securityLogger.LogSubmission(requestID, sub.Score, day.String(), sub.Token, "accepted", r.RemoteAddr)
		s.writeJSON(w, http.StatusOK, SubmitResponse{Success: true, Stats: &snap})

	case errors.Is(err, stats.ErrInvalidToken):
		s.securityLogger.LogSubmission(requestID, sub.Score, day.String(), sub.Token, "invalid_token", r.RemoteAddr)
		apiErr := NewError(ErrTypeInvalidToken, "score token does not match").
			WithRequestID(requestID).
			WithContext("date", day.String()).
			Build()
		s.rejectSubmit(w, r, http.StatusForbidden, apiErr)

	case errors.Is(err, stats.ErrDateOutOfRange):
		s.securityLogger.LogSubmission(requestID, sub.Score, day.String(), sub.Token, "date_out_of_window", r.RemoteAddr)
		apiErr := NewError(ErrTypeDateOutOfWindow, "submission date is no longer accepted").
			WithRequestID(requestID).
			WithContext("date", day.String()).
			WithContext("today", s.agg.Today().String()).
			Build()
		s.rejectSubmit(w, r, http.StatusUnprocessableEntity, apiErr)

	case errors.Is(err, stats.ErrInvalidScore):
		s.rejectSubmit(w, r, http.StatusBadRequest,
			s.errorHandler.ValidationError(r, ErrTypeInvalidScore, "score", "score must be non-negative"))

	default:
		apiErr := NewError(ErrTypeInternal, "could not record score").
			WithRequestID(requestID).
			WithCause(err).
			Build()
		s.rejectSubmit(w, r, http.StatusInternalServerError, apiErr)
	}
}

// rejectSubmit writes the submission envelope for a refused score.
func (s *Server) rejectSubmit(w http.ResponseWriter, r *http.Request, status int, apiErr APIError) {
	s.errorHandler.logError(r, apiErr, status)

	details := apiErr
	if status >= http.StatusInternalServerError {
		// Causes stay in the log.
		details.Context = nil
	}
	w.Header().Set("X-Error-Type", apiErr.Type)
	s.writeJSON(w, status, SubmitResponse{
		Success: false,
		Error:   apiErr.Message,
		Details: &details,
	})
}

// handleStats ranks the score in the path against today's distribution.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeStats(w, r, chi.URLParam(r, "score"))
}

// handleStatsQuery is the ?score=N form of handleStats.
func (s *Server) handleStatsQuery(w http.ResponseWriter, r *http.Request) {
	s.writeStats(w, r, r.URL.Query().Get("score"))
}

func (s *Server) writeStats(w http.ResponseWriter, r *http.Request, raw string) {
	score, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || score < 0 {
		s.errorHandler.HandleValidationError(w, r, "score", "score must be a non-negative integer")
		return
	}

	snap, err := s.agg.Query(r.Context(), score)
	if err != nil {
		s.errorHandler.HandleError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// handleVersion returns build information.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

// handleFeed upgrades to a websocket and greets the subscriber with today's summary.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	var greeting *feed.Message
	if summary, err := s.agg.Summary(r.Context()); err == nil {
		msg := feed.NewStatsMessage(s.agg.Today(), summary)
		greeting = &msg
	} else {
		s.logger.Printf("feed_greeting_failed request_id=%s error=%q", middleware.GetReqID(r.Context()), err)
	}
	s.hub.ServeWS(w, r, greeting)
}
