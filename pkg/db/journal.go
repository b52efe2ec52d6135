package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alonegg/scip-client/pkg/events"
)

const (
	journalLogPrefix = "db:journal"
	journalTable     = "operation_journal"
	journalColumns   = `id, operation, phase, correlation_identifier, endpoint, target,
	                    error_kind, error_code, error_message, occurred, recorded`
)

// JournalEntry represents a row in the operation_journal table.
type JournalEntry struct {
	ID                    string    `json:"id"`
	Operation             string    `json:"operation"`
	Phase                 string    `json:"phase"`
	CorrelationIdentifier *string   `json:"correlation_identifier,omitempty"`
	Endpoint              string    `json:"endpoint"`
	Target                *string   `json:"target,omitempty"`
	ErrorKind             *string   `json:"error_kind,omitempty"`
	ErrorCode             *int      `json:"error_code,omitempty"`
	ErrorMessage          *string   `json:"error_message,omitempty"`
	Occurred              time.Time `json:"occurred"`
	Recorded              time.Time `json:"recorded"`
}

// Journal appends operation lifecycle events to PostgreSQL and reads them back.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal creates a new Journal with the given connection pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// Append stores one event and returns the generated row id.
func (j *Journal) Append(ctx context.Context, event *events.OperationEvent) (string, error) {
	occurred, err := time.Parse(time.RFC3339Nano, event.Timestamp)
	if err != nil {
		occurred = time.Now().UTC()
	}
	id := uuid.NewString()

	slog.Debug(fmt.Sprintf("%s - Append %s.%s correlationId=%s", journalLogPrefix, event.Operation, event.Phase, event.CorrelationIdentifier))
	_, err = j.pool.Exec(ctx,
		`INSERT INTO operation_journal
		   (id, operation, phase, correlation_identifier, endpoint, target, error_kind, error_code, error_message, occurred)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, string(event.Operation), string(event.Phase),
		nullable(event.CorrelationIdentifier), event.Endpoint, nullable(event.Target),
		nullable(event.ErrorKind), event.ErrorCode, nullable(event.ErrorMessage), occurred)
	if err != nil {
		return "", fmt.Errorf("%s - insert failed: %w", journalLogPrefix, err)
	}
	return id, nil
}

// ListByCorrelation returns every entry for a correlation identifier, oldest first.
func (j *Journal) ListByCorrelation(ctx context.Context, correlationID string) ([]JournalEntry, error) {
	rows, err := j.pool.Query(ctx,
		`SELECT `+journalColumns+`
		 FROM operation_journal
		 WHERE correlation_identifier = $1
		 ORDER BY occurred ASC, recorded ASC`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("%s - list by correlation failed: %w", journalLogPrefix, err)
	}
	return scanEntries(rows)
}

// ListRecentParams holds parameters for ListRecent.
type ListRecentParams struct {
	// Operation filters by operation when non-empty.
	Operation string
	// Limit defaults to 50.
	Limit int
}

// ListRecent returns the newest entries first.
func (j *Journal) ListRecent(ctx context.Context, params ListRecentParams) ([]JournalEntry, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.pool.Query(ctx,
		`SELECT `+journalColumns+`
		 FROM operation_journal
		 WHERE ($1 = '' OR operation = $1)
		 ORDER BY occurred DESC
		 LIMIT $2`, params.Operation, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - list recent failed: %w", journalLogPrefix, err)
	}
	return scanEntries(rows)
}

// Ping verifies database connectivity.
func (j *Journal) Ping(ctx context.Context) error {
	return j.pool.Ping(ctx)
}

func scanEntries(rows pgx.Rows) ([]JournalEntry, error) {
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(
			&e.ID, &e.Operation, &e.Phase, &e.CorrelationIdentifier, &e.Endpoint, &e.Target,
			&e.ErrorKind, &e.ErrorCode, &e.ErrorMessage, &e.Occurred, &e.Recorded,
		); err != nil {
			return nil, fmt.Errorf("%s - scan entry failed: %w", journalLogPrefix, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - rows failed: %w", journalLogPrefix, err)
	}
	return entries, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// JournalPublisher is an EventPublisher that records every event in a Journal.
type JournalPublisher struct {
	journal *Journal
}

// NewJournalPublisher creates a new JournalPublisher.
func NewJournalPublisher(journal *Journal) *JournalPublisher {
	return &JournalPublisher{journal: journal}
}

// PublishOperation appends the event to the journal.
func (p *JournalPublisher) PublishOperation(ctx context.Context, event *events.OperationEvent) error {
	_, err := p.journal.Append(ctx, event)
	return err
}
