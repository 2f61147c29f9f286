package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	patternVendor string
	patternID     string
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and manage learned vendor patterns",
	Long: `Vendor patterns are learned from every completed reconciliation and boost
the confidence of future matches with the same vendor. Without a subcommand
the patterns are listed, most confident first.`,
	RunE: runPatternsList,
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned patterns",
	RunE:  runPatternsList,
}

var patternsAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Seed a pattern for a vendor",
	Example: `  reconciler patterns add --vendor "Acme Supplies"`,
	RunE:    runPatternsAdd,
}

var patternsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Forget a pattern",
	RunE:  runPatternsDelete,
}

func init() {
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.AddCommand(patternsListCmd, patternsAddCmd, patternsDeleteCmd)

	patternsAddCmd.Flags().StringVar(&patternVendor, "vendor", "", "vendor name (required)")
	patternsAddCmd.MarkFlagRequired("vendor")

	patternsDeleteCmd.Flags().StringVar(&patternID, "id", "", "pattern id (required)")
	patternsDeleteCmd.MarkFlagRequired("id")
}

func runPatternsList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.patterns.ListPatterns(context.Background(), appConfig.Company)
	if err != nil {
		return err
	}

	out, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	return a.report.GeneratePatternReport(list, out)
}

func runPatternsAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	pattern, err := a.patterns.CreatePattern(context.Background(), appConfig.Company, patternVendor, appConfig.User)
	if err != nil {
		return err
	}

	out, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	return a.report.GenerateMessage(out, fmt.Sprintf("Created pattern %s for %s", pattern.ID, pattern.VendorName), pattern)
}

func runPatternsDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.patterns.DeletePattern(context.Background(), patternID, appConfig.User); err != nil {
		return err
	}

	out, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	return a.report.GenerateMessage(out, fmt.Sprintf("Deleted pattern %s", patternID), map[string]string{"deleted": patternID})
}
