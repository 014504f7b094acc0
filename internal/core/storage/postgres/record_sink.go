package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xyproto/mouselog/internal/core/storage"
)

// RecordSink implements storage.RecordSink on the bucket_records table.
// Every row carries the session id, so several collection sessions can share
// one table while each keeps its own key space.
type RecordSink struct {
	db         *sql.DB
	sessionID  uuid.UUID
	stmtInsert *sql.Stmt
	stmtRead   *sql.Stmt
	now        func() time.Time
}

// NewRecordSink validates the schema and prepares the insert and read statements.
func NewRecordSink(ctx context.Context, db *sql.DB, sessionID uuid.UUID) (*RecordSink, error) {
	if err := validateSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("schema validation failed - did you run migrations?: %w", err)
	}

	stmtInsert, err := db.PrepareContext(ctx, queryInsertRecord)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insertRecord statement: %w", err)
	}

	stmtRead, err := db.PrepareContext(ctx, queryReadRecords)
	if err != nil {
		stmtInsert.Close()
		return nil, fmt.Errorf("failed to prepare readRecords statement: %w", err)
	}

	slog.Info("[Postgres] Record sink initialized", "session_id", sessionID)

	return &RecordSink{
		db:         db,
		sessionID:  sessionID,
		stmtInsert: stmtInsert,
		stmtRead:   stmtRead,
		now:        time.Now,
	}, nil
}

// Append inserts one bucket record. A row that already exists for the same
// session and key counts as written: the first write is kept unchanged.
func (s *RecordSink) Append(ctx context.Context, rec storage.Record) error {
	res, err := s.stmtInsert.ExecContext(ctx,
		s.sessionID,
		rec.Key,
		toNumeric(rec.Value),
		toNumeric(rec.Total),
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert bucket %d: %w", rec.Key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for bucket %d: %w", rec.Key, err)
	}
	if n == 0 {
		slog.Warn("[Postgres] Bucket already stored, keeping first write",
			"session_id", s.sessionID,
			"bucket_key", rec.Key)
		return nil
	}

	slog.Debug("[Postgres] Stored bucket",
		"session_id", s.sessionID,
		"bucket_key", rec.Key,
		"distance", rec.Value)
	return nil
}

// ReadRecords returns this session's records in key order.
func (s *RecordSink) ReadRecords(ctx context.Context) ([]storage.Record, error) {
	rows, err := s.stmtRead.QueryContext(ctx, s.sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		rec, err := scanRecordRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return out, nil
}

// SessionID returns the id stamped on every row.
func (s *RecordSink) SessionID() uuid.UUID { return s.sessionID }

// Close closes the prepared statements and the database connection.
func (s *RecordSink) Close() error {
	var firstErr error

	if err := s.stmtInsert.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close insertRecord statement: %w", err)
	}
	if err := s.stmtRead.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close readRecords statement: %w", err)
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close database: %w", err)
	}

	if firstErr != nil {
		return firstErr
	}

	slog.Info("[Postgres] Record sink closed gracefully")
	return nil
}
