package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ztoken-ledger/internal/config"
	"ztoken-ledger/internal/storage"
	"ztoken-ledger/internal/verification"
)

var verifyConf = &config.VerifyConfig{}

func init() {
	config.SetupLogFlags(&verifyConf.Log, verifyCmd)
	config.SetupStorageFlags(&verifyConf.Storage, verifyCmd)
	config.SetupPostgresFlags(&verifyConf.Postgres, verifyCmd)
	config.SetupClickHouseFlags(&verifyConf.ClickHouse, verifyCmd)
	config.SetupVerifySpecificFlags(verifyConf, verifyCmd)

	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Replays the commit log and audits the ledger.",
	Long: `Rebuilds every holding from the commit log and checks conservation of supply,
single consumption of every holding and per-account balances. With --journal the
clickhouse commit journal is compared with the ledger as well. Exits non-zero on
any violation.`,
	PreRunE: setupVerify,
	RunE:    verify,
	PostRun: closeLogger,
}

func setupVerify(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd, viperConf)

	if err := verifyConf.Validate(); err != nil {
		return err
	}
	_, err := setupLogger(verifyConf.Log)
	return err
}

func verify(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	logger := cmdLogger("verify")

	stores, err := openStores(ctx, verifyConf.Storage, verifyConf.Postgres, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	var journal storage.CommitJournal
	if verifyConf.Base.Journal {
		j, closeJournal, err := openJournal(ctx, verifyConf.ClickHouse)
		if err != nil {
			return err
		}
		defer closeJournal()
		journal = j
	}

	v := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		TokenStore: stores.tokens,
		Ledger:     stores.holdings,
		Journal:    journal,
	})
	report, err := v.VerifyAll(ctx, verifyConf.Base.Symbols...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, res := range report.Results {
		status := "OK"
		if !res.OK() {
			status = "FAIL"
		}
		fmt.Fprintf(out, "%-4s %s commits=%d supply=%s issued=%s burned=%s\n",
			status, res.Symbol, res.Commits, res.Supply, res.Issued, res.Burned)
		for _, viol := range res.Violations {
			fmt.Fprintf(out, "     %s\n", viol)
		}
	}

	logger.Info().
		Int("tokens", len(report.Results)).
		Int("commits", report.TotalCommits).
		Int("violations", report.TotalViolations).
		Msg("verification complete")

	if !report.OK() {
		return fmt.Errorf("ledger verification failed with %d violations", report.TotalViolations)
	}
	return nil
}
