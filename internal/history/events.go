package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// EventType distinguishes ledger rows.
type EventType string

const (
	EventSearch EventType = "search"
	EventGrab   EventType = "grab"
)

// SearchEvent records one completed search. SessionID is zero when the
// search returned nothing and no session was saved.
type SearchEvent struct {
	At            time.Time
	SessionID     int
	Query         string
	Kind          string
	Protocol      string
	Mode          string
	Results       int
	CorrelationID string
}

// GrabEvent records one release handed to the download client.
type GrabEvent struct {
	At            time.Time
	SessionID     int
	Position      int
	GUID          string
	IndexerID     int
	Indexer       string
	Title         string
	Size          int64
	Protocol      string
	CorrelationID string
}

// Event is one ledger row as returned by Recent. Text holds the query for a
// search and the release title for a grab.
type Event struct {
	Type      EventType `json:"type"`
	At        time.Time `json:"at"`
	SessionID int       `json:"session_id,omitempty"`
	Text      string    `json:"text"`
	Kind      string    `json:"kind,omitempty"`
	Protocol  string    `json:"protocol,omitempty"`
	Results   int       `json:"results,omitempty"`
	Position  int       `json:"position,omitempty"`
	Indexer   string    `json:"indexer,omitempty"`
	Size      int64     `json:"size,omitempty"`
}

// Totals aggregates the whole ledger.
type Totals struct {
	Searches     int64     `json:"searches"`
	Grabs        int64     `json:"grabs"`
	GrabbedBytes int64     `json:"grabbed_bytes"`
	LastSearch   time.Time `json:"last_search,omitzero"`
	LastGrab     time.Time `json:"last_grab,omitzero"`
}

// RecordSearch appends a search to the ledger.
func (s *Store) RecordSearch(ctx context.Context, ev SearchEvent) error {
	query := strings.TrimSpace(ev.Query)
	if query == "" {
		return fmt.Errorf("record search: query is empty")
	}
	if err := s.exec(ctx,
		`INSERT INTO searches (session_id, query, kind, protocol, mode, result_count, correlation_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableInt(ev.SessionID),
		query,
		ev.Kind,
		nullableString(ev.Protocol),
		ev.Mode,
		ev.Results,
		nullableString(ev.CorrelationID),
		s.stamp(ev.At),
	); err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

// RecordGrab appends a grab to the ledger.
func (s *Store) RecordGrab(ctx context.Context, ev GrabEvent) error {
	guid := strings.TrimSpace(ev.GUID)
	if guid == "" {
		return fmt.Errorf("record grab: guid is empty")
	}
	if err := s.exec(ctx,
		`INSERT INTO grabs (session_id, position, guid, indexer_id, indexer, title, size, protocol, correlation_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableInt(ev.SessionID),
		nullableInt(ev.Position),
		guid,
		ev.IndexerID,
		nullableString(ev.Indexer),
		nullableString(ev.Title),
		ev.Size,
		nullableString(ev.Protocol),
		nullableString(ev.CorrelationID),
		s.stamp(ev.At),
	); err != nil {
		return fmt.Errorf("record grab: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. A limit <= 0 means 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, created_at, session_id, text, kind, protocol, results, position, indexer, size FROM (
            SELECT 'search' AS type, created_at, session_id, query AS text, kind, protocol,
                   result_count AS results, NULL AS position, NULL AS indexer, 0 AS size, id
            FROM searches
            UNION ALL
            SELECT 'grab' AS type, created_at, session_id, COALESCE(title, guid) AS text, NULL AS kind, protocol,
                   0 AS results, position, indexer, size, id
            FROM grabs
        )
        ORDER BY created_at DESC, id DESC
        LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			typ       string
			createdAt string
			sessionID sql.NullInt64
			text      string
			kind      sql.NullString
			protocol  sql.NullString
			results   int
			position  sql.NullInt64
			indexer   sql.NullString
			size      int64
		)
		if err := rows.Scan(&typ, &createdAt, &sessionID, &text, &kind, &protocol, &results, &position, &indexer, &size); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, Event{
			Type:      EventType(typ),
			At:        parseStamp(createdAt),
			SessionID: int(sessionID.Int64),
			Text:      text,
			Kind:      kind.String,
			Protocol:  protocol.String,
			Results:   results,
			Position:  int(position.Int64),
			Indexer:   indexer.String,
			Size:      size,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Totals summarizes the ledger.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	ctx = ensureContext(ctx)
	var (
		totals     Totals
		lastSearch sql.NullString
		lastGrab   sql.NullString
	)
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), MAX(created_at) FROM searches`,
	).Scan(&totals.Searches, &lastSearch); err != nil {
		return Totals{}, fmt.Errorf("count searches: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(size), 0), MAX(created_at) FROM grabs`,
	).Scan(&totals.Grabs, &totals.GrabbedBytes, &lastGrab); err != nil {
		return Totals{}, fmt.Errorf("count grabs: %w", err)
	}
	if lastSearch.Valid {
		totals.LastSearch = parseStamp(lastSearch.String)
	}
	if lastGrab.Valid {
		totals.LastGrab = parseStamp(lastGrab.String)
	}
	return totals, nil
}
