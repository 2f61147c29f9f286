package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"reconciliation-engine/internal/storage"
)

// AuditEvent is one row of the audit_log table.
type AuditEvent struct {
	ID        string
	Action    storage.AuditAction
	Entry     storage.AuditEntry
	CreatedAt time.Time
}

func (s *Store) LogCreate(ctx context.Context, entry storage.AuditEntry) error {
	return s.insertAudit(ctx, storage.AuditCreate, entry)
}

func (s *Store) LogUpdate(ctx context.Context, entry storage.AuditEntry) error {
	return s.insertAudit(ctx, storage.AuditUpdate, entry)
}

func (s *Store) LogDelete(ctx context.Context, entry storage.AuditEntry) error {
	return s.insertAudit(ctx, storage.AuditDelete, entry)
}

func (s *Store) insertAudit(ctx context.Context, action storage.AuditAction, entry storage.AuditEntry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	before, err := marshalNullable(entry.Before)
	if err != nil {
		return fmt.Errorf("encode audit before: %w", err)
	}
	after, err := marshalNullable(entry.After)
	if err != nil {
		return fmt.Errorf("encode audit after: %w", err)
	}
	var changed any
	if len(entry.ChangedFields) > 0 {
		raw, err := json.Marshal(entry.ChangedFields)
		if err != nil {
			return fmt.Errorf("encode audit fields: %w", err)
		}
		changed = string(raw)
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO audit_log (id, company_id, user_id, action, entity_type, entity_id,
		   before_values, after_values, changed_fields, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ulid.Make().String(),
		entry.CompanyID,
		entry.UserID,
		string(action),
		entry.EntityType,
		entry.EntityID,
		before,
		after,
		changed,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the audit trail of one entity, oldest first.
func (s *Store) ListAuditEvents(ctx context.Context, entityType, entityID string) ([]AuditEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, company_id, user_id, action, entity_type, entity_id, before_values, after_values, changed_fields, created_at
		 FROM audit_log WHERE entity_type = ? AND entity_id = ? ORDER BY id`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var (
			event                  AuditEvent
			before, after, changed *string
			createdAt              int64
		)
		if err := rows.Scan(
			&event.ID,
			&event.Entry.CompanyID,
			&event.Entry.UserID,
			&event.Action,
			&event.Entry.EntityType,
			&event.Entry.EntityID,
			&before,
			&after,
			&changed,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if before != nil {
			if err := json.Unmarshal([]byte(*before), &event.Entry.Before); err != nil {
				return nil, fmt.Errorf("decode audit before: %w", err)
			}
		}
		if after != nil {
			if err := json.Unmarshal([]byte(*after), &event.Entry.After); err != nil {
				return nil, fmt.Errorf("decode audit after: %w", err)
			}
		}
		if changed != nil {
			if err := json.Unmarshal([]byte(*changed), &event.Entry.ChangedFields); err != nil {
				return nil, fmt.Errorf("decode audit fields: %w", err)
			}
		}
		event.CreatedAt = fromMillis(createdAt)
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}

func marshalNullable(values map[string]interface{}) (any, error) {
	if values == nil {
		return nil, nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

var _ storage.AuditLogger = (*Store)(nil)
