package storage

import (
	"context"

	"reconciliation-engine/pkg/logger"
)

// AuditEntry describes one change to an audited entity
type AuditEntry struct {
	CompanyID     string                 `json:"company_id"`
	UserID        string                 `json:"user_id"`
	EntityType    string                 `json:"entity_type"`
	EntityID      string                 `json:"entity_id"`
	Before        map[string]interface{} `json:"before,omitempty"`
	After         map[string]interface{} `json:"after,omitempty"`
	ChangedFields []string               `json:"changed_fields,omitempty"`
}

// AuditLogger records entity changes
type AuditLogger interface {
	LogCreate(ctx context.Context, entry AuditEntry) error
	LogUpdate(ctx context.Context, entry AuditEntry) error
	LogDelete(ctx context.Context, entry AuditEntry) error
}

// AuditAction selects the AuditLogger method
type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

// RecordAudit writes an audit entry and swallows any failure. Audit is
// secondary; the primary operation has already committed.
func RecordAudit(ctx context.Context, auditor AuditLogger, log logger.Logger, action AuditAction, entry AuditEntry) {
	if auditor == nil {
		return
	}

	var err error
	switch action {
	case AuditCreate:
		err = auditor.LogCreate(ctx, entry)
	case AuditUpdate:
		err = auditor.LogUpdate(ctx, entry)
	case AuditDelete:
		err = auditor.LogDelete(ctx, entry)
	}
	if err != nil && log != nil {
		log.WithError(err).WithFields(logger.Fields{
			"action":      action,
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityID,
		}).Warn("Audit log write failed")
	}
}

// LoggingAuditor writes audit entries to the structured log. It is the default
// when no audit table is configured.
type LoggingAuditor struct {
	logger logger.Logger
}

// NewLoggingAuditor creates a LoggingAuditor on the global logger
func NewLoggingAuditor() *LoggingAuditor {
	return &LoggingAuditor{logger: logger.GetGlobalLogger().WithComponent("audit")}
}

func (a *LoggingAuditor) write(action AuditAction, entry AuditEntry) error {
	a.logger.WithFields(logger.Fields{
		"action":         action,
		"company_id":     entry.CompanyID,
		"user_id":        entry.UserID,
		"entity_type":    entry.EntityType,
		"entity_id":      entry.EntityID,
		"changed_fields": entry.ChangedFields,
	}).Info("audit")
	return nil
}

func (a *LoggingAuditor) LogCreate(_ context.Context, entry AuditEntry) error {
	return a.write(AuditCreate, entry)
}

func (a *LoggingAuditor) LogUpdate(_ context.Context, entry AuditEntry) error {
	return a.write(AuditUpdate, entry)
}

func (a *LoggingAuditor) LogDelete(_ context.Context, entry AuditEntry) error {
	return a.write(AuditDelete, entry)
}

var _ AuditLogger = (*LoggingAuditor)(nil)
