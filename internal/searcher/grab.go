package searcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"booksearcher/internal/history"
	"booksearcher/internal/logging"
	"booksearcher/internal/services"
	"booksearcher/internal/services/prowlarr"
	"booksearcher/internal/sessioncache"
)

// ErrInvalidPosition reports a result number outside the session's results.
var ErrInvalidPosition = fmt.Errorf("invalid result position: %w", services.ErrValidation)

// GrabOutcome describes a release sent to the download client.
type GrabOutcome struct {
	SessionID    int                       `json:"session_id,omitempty"`
	Position     int                       `json:"position,omitempty"`
	Result       sessioncache.Result       `json:"result"`
	Confirmation prowlarr.GrabConfirmation `json:"confirmation"`
}

// Load reads a session and counts the cache hit or miss.
func (s *Searcher) Load(id int) (sessioncache.Session, error) {
	session, err := s.cache.Load(id)
	switch {
	case err == nil:
		s.stats.hits.Add(1)
	case errors.Is(err, sessioncache.ErrNotFound), errors.Is(err, sessioncache.ErrCorruptEntry):
		s.stats.misses.Add(1)
	}
	return session, err
}

// Grab sends the result at the 1-based position of a saved session to the
// download client.
func (s *Searcher) Grab(ctx context.Context, sessionID, position int) (GrabOutcome, error) {
	ctx = services.WithSessionID(ctx, sessionID)
	session, err := s.Load(sessionID)
	if err != nil {
		return GrabOutcome{}, err
	}
	if position < 1 || position > len(session.Results) {
		return GrabOutcome{}, fmt.Errorf("searcher: session %d has %d results, got %d: %w",
			sessionID, len(session.Results), position, ErrInvalidPosition)
	}
	result := session.Results[position-1]
	confirmation, err := s.client.Grab(ctx, result.GUID, result.IndexerID)
	if err != nil {
		return GrabOutcome{}, err
	}
	outcome := GrabOutcome{SessionID: sessionID, Position: position, Result: result, Confirmation: confirmation}
	s.grabbed(ctx, outcome)
	return outcome, nil
}

// GrabLatest grabs from the most recently saved session.
func (s *Searcher) GrabLatest(ctx context.Context, position int) (GrabOutcome, error) {
	id, err := s.cache.Latest()
	if err != nil {
		return GrabOutcome{}, fmt.Errorf("searcher: no previous search to grab from: %w", err)
	}
	return s.Grab(ctx, id, position)
}

// GrabRelease grabs a release by its upstream identity, bypassing the cache.
func (s *Searcher) GrabRelease(ctx context.Context, guid string, indexerID int) (GrabOutcome, error) {
	guid = strings.TrimSpace(guid)
	if guid == "" || indexerID <= 0 {
		return GrabOutcome{}, services.Wrap(services.ErrValidation, "searcher", "grab", "guid and indexer id are required", nil)
	}
	confirmation, err := s.client.Grab(ctx, guid, indexerID)
	if err != nil {
		return GrabOutcome{}, err
	}
	outcome := GrabOutcome{
		Result: sessioncache.Result{
			GUID:      guid,
			IndexerID: indexerID,
			Title:     confirmation.Title,
			Indexer:   confirmation.Indexer,
		},
		Confirmation: confirmation,
	}
	s.grabbed(ctx, outcome)
	return outcome, nil
}

func (s *Searcher) grabbed(ctx context.Context, outcome GrabOutcome) {
	s.stats.grabs.Add(1)
	logger := logging.WithContext(ctx, s.logger)
	logger.Info("release grabbed",
		logging.Int("position", outcome.Position),
		logging.String("title", outcome.Result.Title),
		logging.String("indexer", outcome.Result.Indexer),
	)
	if s.recorder == nil {
		return
	}
	correlationID, _ := services.RequestIDFromContext(ctx)
	err := s.recorder.RecordGrab(ctx, history.GrabEvent{
		At:            s.now(),
		SessionID:     outcome.SessionID,
		Position:      outcome.Position,
		GUID:          outcome.Result.GUID,
		IndexerID:     outcome.Result.IndexerID,
		Indexer:       outcome.Result.Indexer,
		Title:         outcome.Result.Title,
		Size:          outcome.Result.Size,
		Protocol:      outcome.Result.Protocol,
		CorrelationID: correlationID,
	})
	if err != nil {
		logging.WarnWithContext(logger, "history write failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "grab is missing from the history ledger"),
		)
	}
}
