package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/your-org/faceid/internal/fault"
)

// auditPayload is a loose old/new value snapshot serialized to JSONB.
type auditPayload map[string]any

// AuditEntry is one append-only record of a mutating operation.
type AuditEntry struct {
	ID        int64           `json:"id"`
	Operation string          `json:"operation"`
	TableName string          `json:"table_name"`
	RecordID  string          `json:"record_id"`
	OldData   json.RawMessage `json:"old_data,omitempty"`
	NewData   json.RawMessage `json:"new_data,omitempty"`
	Actor     string          `json:"actor"`
	Origin    string          `json:"origin"`
	CreatedAt time.Time       `json:"created_at"`
}

// auditInsert appends an audit row inside the caller's transaction so the
// entry commits or rolls back with the mutation it describes.
func (s *Store) auditInsert(ctx context.Context, tx pgx.Tx, op, table, recordID string, oldData, newData auditPayload) error {
	oldJSON, err := marshalPayload(oldData)
	if err != nil {
		return fault.Wrap(fault.Database, "marshal audit old data", err)
	}
	newJSON, err := marshalPayload(newData)
	if err != nil {
		return fault.Wrap(fault.Database, "marshal audit new data", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO audit_log (operation, table_name, record_id, old_data, new_data, actor, origin)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		op, table, recordID, oldJSON, newJSON, s.auditActor, "local")
	if err != nil {
		return fault.Wrap(fault.Database, "insert audit entry", err)
	}
	return nil
}

func marshalPayload(p auditPayload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// AuditTrail returns the most recent audit entries, newest first.
func (s *Store) AuditTrail(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, operation, table_name, record_id, old_data, new_data, actor, origin, created_at
		 FROM audit_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fault.Wrap(fault.Database, "query audit trail", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Operation, &e.TableName, &e.RecordID,
			&e.OldData, &e.NewData, &e.Actor, &e.Origin, &e.CreatedAt); err != nil {
			return nil, fault.Wrap(fault.Database, "scan audit entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.Database, "iterate audit trail", err)
	}
	return entries, nil
}
