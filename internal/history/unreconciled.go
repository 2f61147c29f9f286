package history

import (
	"context"
	"sort"
	"strings"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/storage"
	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

// FlagForAge bands an age in days: up to 30 NONE, 60 WARNING, 90 ATTENTION,
// then URGENT.
func FlagForAge(days int) models.AgeFlag {
	switch {
	case days <= 30:
		return models.FlagNone
	case days <= 60:
		return models.FlagWarning
	case days <= 90:
		return models.FlagAttention
	default:
		return models.FlagUrgent
	}
}

// GetUnreconciledTransactions returns the account's unreconciled ledger
// entries that are old enough to flag, oldest first.
func (s *Service) GetUnreconciledTransactions(ctx context.Context, companyID, accountID string) ([]models.UnreconciledTransaction, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "company_id", companyID, nil)
	}
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "account_id", accountID, nil)
	}

	entries, err := s.store.QueryTransactions(ctx, storage.TransactionFilter{
		CompanyID:       companyID,
		AccountID:       accountID,
		ExcludeStatuses: []models.JournalStatus{models.JournalStatusReconciled, models.JournalStatusVoided},
	})
	if err != nil {
		return nil, errors.InternalError(errors.CodeStorageFailure, "query unreconciled transactions", err).
			WithContext("account_id", accountID)
	}

	today := models.DateOnly(s.now().UTC())
	out := make([]models.UnreconciledTransaction, 0)
	for i := range entries {
		e := &entries[i]
		date := models.DateOnly(e.Date)
		if date.After(today) {
			continue
		}
		age := models.DaysBetween(date, today)
		flag := FlagForAge(age)
		if flag == models.FlagNone {
			continue
		}
		out = append(out, models.UnreconciledTransaction{
			TransactionID: e.ID,
			AccountID:     accountID,
			Date:          e.Date,
			AgeDays:       age,
			Flag:          flag,
			Amount:        e.NetAmount(accountID),
			Description:   e.Memo,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AgeDays != out[j].AgeDays {
			return out[i].AgeDays > out[j].AgeDays
		}
		return out[i].TransactionID < out[j].TransactionID
	})
	return out, nil
}

// GetUnreconciledDashboard aggregates flagged transactions across the
// company's active asset accounts. Accounts with nothing flagged are left out.
func (s *Service) GetUnreconciledDashboard(ctx context.Context, companyID string) (*models.UnreconciledDashboard, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "company_id", companyID, nil)
	}

	accounts, err := s.store.ListAccounts(ctx, companyID)
	if err != nil {
		return nil, errors.InternalError(errors.CodeStorageFailure, "list accounts", err)
	}

	dashboard := &models.UnreconciledDashboard{
		CompanyID: companyID,
		Counts:    emptyCounts(),
		Accounts:  []models.AccountAttention{},
	}
	for _, account := range accounts {
		if !account.Active || account.Type != models.AccountTypeAsset {
			continue
		}

		flagged, err := s.GetUnreconciledTransactions(ctx, companyID, account.ID)
		if err != nil {
			return nil, err
		}
		if len(flagged) == 0 {
			continue
		}

		attention := models.AccountAttention{
			AccountID:   account.ID,
			AccountName: account.Name,
			Counts:      emptyCounts(),
		}
		for _, tx := range flagged {
			attention.Counts[tx.Flag]++
			dashboard.Counts[tx.Flag]++
			dashboard.Total++
			if tx.AgeDays > attention.OldestAgeDays {
				attention.OldestAgeDays = tx.AgeDays
			}
		}
		if attention.OldestAgeDays > dashboard.OldestAgeDays {
			dashboard.OldestAgeDays = attention.OldestAgeDays
		}
		dashboard.Accounts = append(dashboard.Accounts, attention)
	}

	sort.SliceStable(dashboard.Accounts, func(i, j int) bool {
		return dashboard.Accounts[i].OldestAgeDays > dashboard.Accounts[j].OldestAgeDays
	})

	s.logger.WithFields(logger.Fields{
		"company_id": companyID,
		"flagged":    dashboard.Total,
		"accounts":   len(dashboard.Accounts),
	}).Debug("Built unreconciled dashboard")

	return dashboard, nil
}

func emptyCounts() map[models.AgeFlag]int {
	return map[models.AgeFlag]int{
		models.FlagWarning:   0,
		models.FlagAttention: 0,
		models.FlagUrgent:    0,
	}
}
