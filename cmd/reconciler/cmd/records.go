package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"reconciliation-engine/pkg/errors"
)

var (
	recordsAccount string
	recordID       string
	reopenReason   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List an account's reconciliations, newest first",
	Example: `  reconciler history --account checking
  reconciler history --account checking -f csv -o history.csv`,
	RunE: runHistory,
}

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show the monthly reconciliation streak of an account",
	RunE:  runStreak,
}

var unreconciledCmd = &cobra.Command{
	Use:   "unreconciled",
	Short: "List ledger entries waiting too long to be reconciled",
	Long: `Unreconciled flags ledger entries older than 30 days that are not yet
reconciled: WARNING after 30 days, ATTENTION after 60 and URGENT after 90.

Without --account it shows the dashboard across all active bank accounts.`,
	RunE: runUnreconciled,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show one stored reconciliation",
	RunE:  runShow,
}

var reopenCmd = &cobra.Command{
	Use:   "reopen",
	Short: "Reopen a completed reconciliation",
	Long: `Reopen moves a completed reconciliation to REOPENED and releases its ledger
entries so a new reconciliation can match them again. A reason is required.`,
	Example: `  reconciler reopen --record 01HV7M2X9K3Q --reason "bank corrected a deposit"`,
	RunE:    runReopen,
}

func init() {
	rootCmd.AddCommand(historyCmd, streakCmd, unreconciledCmd, showCmd, reopenCmd)

	for _, c := range []*cobra.Command{historyCmd, streakCmd} {
		c.Flags().StringVarP(&recordsAccount, "account", "a", "", "ledger account id (required)")
		c.MarkFlagRequired("account")
	}
	unreconciledCmd.Flags().StringVarP(&recordsAccount, "account", "a", "", "limit to one account")

	showCmd.Flags().StringVar(&recordID, "record", "", "reconciliation record id (required)")
	showCmd.MarkFlagRequired("record")

	reopenCmd.Flags().StringVar(&recordID, "record", "", "reconciliation record id (required)")
	reopenCmd.Flags().StringVar(&reopenReason, "reason", "", "why the reconciliation is reopened (required)")
	reopenCmd.MarkFlagRequired("record")
	reopenCmd.MarkFlagRequired("reason")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.history.GetAccountReconciliationHistory(context.Background(), appConfig.Company, recordsAccount)
	if err != nil {
		return err
	}

	out, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	return a.report.GenerateHistoryReport(recordsAccount, records, out)
}

func runStreak(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	streak, err := a.history.GetReconciliationStreak(context.Background(), appConfig.Company, recordsAccount)
	if err != nil {
		return err
	}

	out, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	return a.report.GenerateStreakReport(recordsAccount, streak, out)
}

func runUnreconciled(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	if strings.TrimSpace(recordsAccount) == "" {
		dashboard, err := a.history.GetUnreconciledDashboard(ctx, appConfig.Company)
		if err != nil {
			return err
		}
		return a.report.GenerateDashboardReport(dashboard, out)
	}

	items, err := a.history.GetUnreconciledTransactions(ctx, appConfig.Company, recordsAccount)
	if err != nil {
		return err
	}
	return a.report.GenerateUnreconciledReport(recordsAccount, items, out)
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	record, err := a.history.GetReconciliationRecord(context.Background(), recordID)
	if err != nil {
		return err
	}

	out, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	return a.report.GenerateRecordReport(record, out)
}

func runReopen(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(reopenReason) == "" {
		return errors.ValidationError(errors.CodeMissingField, "reason", reopenReason, nil).
			WithSuggestion("Explain why the reconciliation is reopened with --reason")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	record, err := a.history.ReopenReconciliation(context.Background(), recordID, reopenReason, appConfig.User)
	if err != nil {
		return err
	}

	out, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	return a.report.GenerateRecordReport(record, out)
}
