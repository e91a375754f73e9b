package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ztoken-ledger/internal/config"
	"ztoken-ledger/internal/reporting"
)

var reportConf = &config.ReportConfig{}

func init() {
	config.SetupLogFlags(&reportConf.Log, reportCmd)
	config.SetupStorageFlags(&reportConf.Storage, reportCmd)
	config.SetupPostgresFlags(&reportConf.Postgres, reportCmd)
	config.SetupReportSpecificFlags(reportConf, reportCmd)

	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Writes a token supply report.",
	Long: `Writes, per token, the live supply, the issued total and every holder's balance as
Markdown or CSV.`,
	PreRunE: setupReport,
	RunE:    report,
	PostRun: closeLogger,
}

func setupReport(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd, viperConf)

	if err := reportConf.Validate(); err != nil {
		return err
	}
	_, err := setupLogger(reportConf.Log)
	return err
}

func report(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	logger := cmdLogger("report")

	stores, err := openStores(ctx, reportConf.Storage, reportConf.Postgres, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	gen := reporting.NewGenerator(stores.tokens, stores.accounts, stores.holdings)
	r, err := gen.Generate(ctx, reportConf.Base.Symbols...)
	if err != nil {
		return err
	}

	var out string
	switch reportConf.Base.Format {
	case config.FormatCSV:
		out, err = reporting.RenderCSV(r)
		if err != nil {
			return err
		}
	default:
		out = reporting.RenderMarkdown(r)
	}

	if reportConf.Base.Output == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	}
	if err := os.WriteFile(reportConf.Base.Output, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info().Str("path", reportConf.Base.Output).Int("tokens", len(r.Tokens)).Msg("report written")
	return nil
}
