package patterns

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/storage"
	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

const entityPattern = "reconciliation_pattern"

// Service manages learned patterns on top of a PatternStore
type Service struct {
	store   storage.PatternStore
	auditor storage.AuditLogger
	logger  logger.Logger
	now     func() time.Time
}

// NewService creates a pattern service. auditor may be nil.
func NewService(store storage.PatternStore, auditor storage.AuditLogger) *Service {
	return &Service{
		store:   store,
		auditor: auditor,
		logger:  logger.GetGlobalLogger().WithComponent("patterns"),
		now:     time.Now,
	}
}

// WithClock overrides the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreatePattern creates a pattern for (companyID, vendor). If one already
// exists it is returned together with a constraint violation so callers that
// only want fetch-or-create can ignore the error.
func (s *Service) CreatePattern(ctx context.Context, companyID, vendorName, userID string) (*models.ReconciliationPattern, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "company_id", companyID, nil)
	}
	vendor := NormalizeVendor(vendorName)
	if vendor == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "vendor_name", vendorName, nil)
	}

	if existing, err := s.store.GetPatternByVendor(ctx, companyID, vendor); err == nil {
		return existing, duplicateError(vendor)
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.InternalError(errors.CodeStorageFailure, "get pattern by vendor", err)
	}

	pattern := NewPattern(companyID, vendor, s.now().UTC())
	if err := s.store.CreatePattern(ctx, pattern); err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			// Lost a race with another writer.
			existing, getErr := s.store.GetPatternByVendor(ctx, companyID, vendor)
			if getErr != nil {
				return nil, errors.InternalError(errors.CodeStorageFailure, "get pattern by vendor", getErr)
			}
			return existing, duplicateError(vendor)
		}
		return nil, errors.InternalError(errors.CodeStorageFailure, "create pattern", err)
	}

	storage.RecordAudit(ctx, s.auditor, s.logger, storage.AuditCreate, storage.AuditEntry{
		CompanyID:  companyID,
		UserID:     userID,
		EntityType: entityPattern,
		EntityID:   pattern.ID,
		After:      patternValues(pattern),
	})

	s.logger.WithFields(logger.Fields{
		"pattern_id": pattern.ID,
		"vendor":     vendor,
	}).Debug("Created pattern")
	return pattern, nil
}

func duplicateError(vendor string) *errors.ReconcilerError {
	return errors.ConstraintError(errors.CodeDuplicate, "A pattern for this vendor already exists").
		WithContext("vendor_name", vendor)
}

// GetPattern returns a live pattern by id
func (s *Service) GetPattern(ctx context.Context, id string) (*models.ReconciliationPattern, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "pattern_id", id, nil)
	}
	pattern, err := s.store.GetPattern(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFoundError("pattern", id)
		}
		return nil, errors.InternalError(errors.CodeStorageFailure, "get pattern", err)
	}
	return pattern, nil
}

// ListPatterns returns a company's live patterns
func (s *Service) ListPatterns(ctx context.Context, companyID string) ([]*models.ReconciliationPattern, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "company_id", companyID, nil)
	}
	list, err := s.store.ListPatterns(ctx, companyID)
	if err != nil {
		return nil, errors.InternalError(errors.CodeStorageFailure, "list patterns", err)
	}
	return list, nil
}

// LearnFromMatch records feedback about one pairing. A description with no
// recognizable vendor is a validation error and nothing is learned.
func (s *Service) LearnFromMatch(ctx context.Context, companyID string, stmt models.StatementTransaction, system models.JournalEntry, successful bool, userID string) (*models.ReconciliationPattern, error) {
	vendor, ok := ExtractVendor(stmt.Description)
	if !ok {
		return nil, errors.ValidationError(errors.CodeInvalidValue, "description", stmt.Description, nil).
			WithSuggestion("the description has no vendor name to learn from")
	}

	pattern, err := s.CreatePattern(ctx, companyID, vendor, userID)
	if err != nil && !errors.IsCategory(err, errors.CategoryConstraint) {
		return nil, err
	}

	updated := Apply(pattern, Observation{
		Statement:  stmt,
		System:     system,
		Successful: successful,
		At:         s.now().UTC(),
	})
	if err := s.store.UpdatePattern(ctx, updated); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFoundError("pattern", updated.ID)
		}
		return nil, errors.InternalError(errors.CodeStorageFailure, "update pattern", err)
	}

	storage.RecordAudit(ctx, s.auditor, s.logger, storage.AuditUpdate, storage.AuditEntry{
		CompanyID:     companyID,
		UserID:        userID,
		EntityType:    entityPattern,
		EntityID:      updated.ID,
		Before:        patternValues(pattern),
		After:         patternValues(updated),
		ChangedFields: []string{"confidence", "match_count", "typical_amount_range", "typical_day_of_month", "description_patterns"},
	})

	s.logger.WithFields(logger.Fields{
		"vendor":     updated.VendorName,
		"successful": successful,
		"confidence": updated.Confidence,
	}).Debug("Learned from match")
	return updated, nil
}

// LearnFromSession records every confirmed 1:1 pairing in a session as a
// successful observation. Multi-way matches are skipped since they do not
// pair one description with one book entry.
func (s *Service) LearnFromSession(ctx context.Context, session *models.ReconciliationSession, system []models.JournalEntry, userID string) (int, error) {
	byID := make(map[string]models.JournalEntry, len(system))
	for _, tx := range system {
		byID[tx.ID] = tx
	}

	learned := 0
	for _, stmt := range session.Statement.Transactions {
		if err := ctx.Err(); err != nil {
			return learned, errors.InternalError(errors.CodeCancelled, "learn from session", err)
		}
		ids := stmt.SystemIDs()
		if !stmt.Matched || len(ids) != 1 {
			continue
		}
		sys, ok := byID[ids[0]]
		if !ok {
			continue
		}
		if _, err := s.LearnFromMatch(ctx, session.CompanyID, stmt, sys, true, userID); err != nil {
			if errors.IsCategory(err, errors.CategoryValidation) {
				s.logger.WithField("statement_id", stmt.ID).Debug("No vendor in description, skipping")
				continue
			}
			return learned, err
		}
		learned++
	}
	return learned, nil
}

// DeletePattern soft-deletes a pattern
func (s *Service) DeletePattern(ctx context.Context, id, userID string) error {
	pattern, err := s.GetPattern(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SoftDeletePattern(ctx, id, s.now().UTC()); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFoundError("pattern", id)
		}
		return errors.InternalError(errors.CodeStorageFailure, "delete pattern", err)
	}

	storage.RecordAudit(ctx, s.auditor, s.logger, storage.AuditDelete, storage.AuditEntry{
		CompanyID:  pattern.CompanyID,
		UserID:     userID,
		EntityType: entityPattern,
		EntityID:   id,
		Before:     patternValues(pattern),
	})
	return nil
}

func patternValues(p *models.ReconciliationPattern) map[string]interface{} {
	return map[string]interface{}{
		"vendor_name":          p.VendorName,
		"confidence":           p.Confidence,
		"match_count":          p.MatchCount,
		"typical_day_of_month": p.TypicalDayOfMonth,
		"description_patterns": p.DescriptionPatterns,
	}
}
