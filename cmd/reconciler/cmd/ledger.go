package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reconciliation-engine/internal/models"
	"reconciliation-engine/internal/parsers"
	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

var ledgerFile string

var importLedgerCmd = &cobra.Command{
	Use:   "import-ledger",
	Short: "Import journal entries from a CSV export",
	Long: `Import-ledger loads journal lines into the local database. Each row is one
journal line; rows sharing an entry id form one entry.

Expected columns (header names are matched case-insensitively):
  entry_id, date, memo, account_id, debit, credit, status

Re-importing an entry replaces it.

Example:
  reconciler import-ledger --file journal.csv`,
	RunE: runImportLedger,
}

var (
	accountID       string
	accountName     string
	accountType     string
	accountInactive bool
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage ledger accounts",
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update an account",
	Example: `  reconciler accounts add --id checking --name "Business Checking"
  reconciler accounts add --id card --name "Company Card" --type liability`,
	RunE: runAccountsAdd,
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE:  runAccountsList,
}

func init() {
	rootCmd.AddCommand(importLedgerCmd)
	importLedgerCmd.Flags().StringVar(&ledgerFile, "file", "", "path to the journal CSV export (required)")
	importLedgerCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsAddCmd, accountsListCmd)
	accountsAddCmd.Flags().StringVar(&accountID, "id", "", "account id (required)")
	accountsAddCmd.Flags().StringVar(&accountName, "name", "", "display name (defaults to the id)")
	accountsAddCmd.Flags().StringVar(&accountType, "type", string(models.AccountTypeAsset), "asset, liability, equity, income or expense")
	accountsAddCmd.Flags().BoolVar(&accountInactive, "inactive", false, "mark the account inactive")
	accountsAddCmd.MarkFlagRequired("id")
}

func runImportLedger(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := validateFileExists(ledgerFile, "ledger file"); err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entries, stats, err := parsers.NewLedgerParser(nil).ParseFile(ctx, ledgerFile, appConfig.Company)
	if err != nil {
		return err
	}
	if err := a.store.PutJournalEntries(ctx, entries); err != nil {
		return errors.InternalError(errors.CodeStorageFailure, "store journal entries", err).
			WithContext("file", ledgerFile)
	}

	a.logger.WithFields(logger.Fields{
		"file":    ledgerFile,
		"entries": len(entries),
		"skipped": stats.Skipped(),
	}).Info("Imported ledger")

	out, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	message := fmt.Sprintf("Imported %d journal entries from %s", len(entries), ledgerFile)
	if stats.Skipped() > 0 {
		message += fmt.Sprintf(" (%d rows skipped)", stats.Skipped())
	}
	return a.report.GenerateMessage(out, message, map[string]interface{}{
		"file":         ledgerFile,
		"entries":      len(entries),
		"rows_read":    stats.RecordsParsed,
		"rows_skipped": stats.Skipped(),
	})
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	account, err := buildAccount(appConfig.Company, accountID, accountName, accountType, !accountInactive)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.PutAccount(context.Background(), account); err != nil {
		return errors.InternalError(errors.CodeStorageFailure, "store account", err).
			WithContext("account_id", account.ID)
	}

	out, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	return a.report.GenerateMessage(out, fmt.Sprintf("Saved %s account %s (%s)", account.Type, account.ID, account.Name), account)
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := a.store.ListAccounts(context.Background(), appConfig.Company)
	if err != nil {
		return errors.InternalError(errors.CodeStorageFailure, "list accounts", err)
	}

	out, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	return a.report.GenerateAccountReport(accounts, out)
}

func buildAccount(companyID, id, name, kind string, active bool) (models.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Account{}, errors.ValidationError(errors.CodeMissingField, "id", id, nil)
	}
	if strings.TrimSpace(name) == "" {
		name = id
	}

	accountType := models.AccountType(strings.ToLower(strings.TrimSpace(kind)))
	switch accountType {
	case models.AccountTypeAsset, models.AccountTypeLiability, models.AccountTypeEquity,
		models.AccountTypeIncome, models.AccountTypeExpense:
	default:
		return models.Account{}, errors.ValidationError(errors.CodeInvalidValue, "type", kind, nil).
			WithSuggestion("Use asset, liability, equity, income or expense")
	}

	return models.Account{
		ID:        id,
		CompanyID: companyID,
		Name:      strings.TrimSpace(name),
		Type:      accountType,
		Active:    active,
	}, nil
}
