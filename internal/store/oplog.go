package store

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const operationsTable = "operations_log"

// Operation statuses written by the CLI
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusDenied  = "denied"
)

// OperationRecord is one entry of the operations log
type OperationRecord struct {
	ID        int64
	SessionID string
	Operation string
	Path      string
	Status    string
	Timestamp time.Time
	Details   string
}

type operationRow struct {
	ID        int64  `db:"id"`
	SessionID string `db:"session_id"`
	Operation string `db:"operation"`
	Path      string `db:"path"`
	Status    string `db:"status"`
	Timestamp int64  `db:"timestamp"`
	Details   string `db:"details"`
}

func (r operationRow) record() OperationRecord {
	return OperationRecord{
		ID:        r.ID,
		SessionID: r.SessionID,
		Operation: r.Operation,
		Path:      r.Path,
		Status:    r.Status,
		Timestamp: fromMillis(r.Timestamp),
		Details:   r.Details,
	}
}

var operationColumns = []string{"id", "session_id", "operation", "path", "status", "timestamp", "details"}

// OperationLog is append-only: records are never updated or deleted
// except by Store.Reset.
type OperationLog struct {
	s *Store
}

// Append writes rec and returns its id. A zero Timestamp means now.
func (l *OperationLog) Append(ctx context.Context, rec OperationRecord) (int64, error) {
	if rec.Operation == "" {
		return 0, fail("oplog.append", errors.New("operation is required"))
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = l.s.now()
	}

	res, err := l.s.exec(ctx, l.s.sql.
		Insert(operationsTable).
		Columns("session_id", "operation", "path", "status", "timestamp", "details").
		Values(rec.SessionID, rec.Operation, rec.Path, rec.Status, toMillis(ts), rec.Details))
	if err != nil {
		return 0, fail("oplog.append", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fail("oplog.append", err)
	}
	return id, nil
}

// List returns the most recent limit records in insertion order. A limit
// of zero or less returns everything.
func (l *OperationLog) List(ctx context.Context, limit int) ([]OperationRecord, error) {
	q := l.s.sql.Select(operationColumns...).From(operationsTable).OrderBy("id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	var rows []operationRow
	if err := l.s.selectAll(ctx, &rows, q); err != nil {
		return nil, fail("oplog.list", err)
	}

	records := make([]OperationRecord, len(rows))
	for i, row := range rows {
		records[len(rows)-1-i] = row.record()
	}
	return records, nil
}

// ListSession returns every record of one session in insertion order
func (l *OperationLog) ListSession(ctx context.Context, sessionID string) ([]OperationRecord, error) {
	var rows []operationRow
	err := l.s.selectAll(ctx, &rows, l.s.sql.
		Select(operationColumns...).
		From(operationsTable).
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("id ASC"))
	if err != nil {
		return nil, fail("oplog.list_session", err)
	}

	records := make([]OperationRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}
