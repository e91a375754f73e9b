package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

type ServeConfig struct {
	Log        Log
	Storage    Storage
	Postgres   Postgres
	ClickHouse ClickHouse
	Ledger     Ledger
	Server     Server
}

func (conf *ServeConfig) Validate() error {
	if err := validateLogConf(conf.Log); err != nil {
		return err
	}
	if err := validateStorageConf(conf.Storage, conf.Postgres); err != nil {
		return err
	}
	if err := validateClickHouseConf(conf.ClickHouse); err != nil {
		return err
	}
	if err := validateLedgerConf(conf.Ledger); err != nil {
		return err
	}
	return validateServerConf(conf.Server)
}

func (conf *ServeConfig) CheckSuperfluousKeys(keys []string) []string {
	return checkSuperfluousKeys(keys, Log{}, Storage{}, Postgres{}, ClickHouse{}, Ledger{}, Server{})
}

type MigrateConfig struct {
	Log        Log
	Postgres   Postgres
	ClickHouse ClickHouse
	Base       migrateBase
}

type migrateBase struct {
	Status bool `mapstructure:"status"`
}

func SetupMigrateSpecificFlags(conf *MigrateConfig, cmd *cobra.Command) {
	cmd.Flags().BoolVar(&conf.Base.Status, "status", false, "list applied and pending postgres migrations without applying")
}

func (conf *MigrateConfig) Validate() error {
	if err := validateLogConf(conf.Log); err != nil {
		return err
	}
	if conf.Postgres.DSN == "" && conf.ClickHouse.DSN == "" {
		return errors.New("at least one of postgres.dsn or clickhouse.dsn must be set")
	}
	return validateClickHouseConf(conf.ClickHouse)
}

type WatchConfig struct {
	Log  Log
	Base watchBase
}

type watchBase struct {
	URL    string `mapstructure:"url"`
	Symbol string `mapstructure:"symbol"`
}

func SetupWatchSpecificFlags(conf *WatchConfig, cmd *cobra.Command) {
	cmd.Flags().StringVar(&conf.Base.URL, "url", "ws://localhost:8080/ws/commits", "commit feed websocket URL")
	cmd.Flags().StringVar(&conf.Base.Symbol, "symbol", "", "only stream commits of this token symbol")
}

func (conf *WatchConfig) Validate() error {
	if err := validateLogConf(conf.Log); err != nil {
		return err
	}
	u, err := url.Parse(conf.Base.URL)
	if err != nil {
		return fmt.Errorf("invalid feed url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("feed url scheme must be ws or wss, got %q", u.Scheme)
	}
	return nil
}

// Report formats.
const (
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
)

type ReportConfig struct {
	Log      Log
	Storage  Storage
	Postgres Postgres
	Base     reportBase
}

type reportBase struct {
	Symbols []string `mapstructure:"symbols"`
	Format  string   `mapstructure:"format"`
	Output  string   `mapstructure:"output"`
}

func SetupReportSpecificFlags(conf *ReportConfig, cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&conf.Base.Symbols, "symbol", nil, "token symbols to report (default all)")
	cmd.Flags().StringVar(&conf.Base.Format, "format", FormatMarkdown, "output format (markdown|csv)")
	cmd.Flags().StringVar(&conf.Base.Output, "output", "", "write the report to this file instead of stdout")
}

func (conf *ReportConfig) Validate() error {
	if err := validateLogConf(conf.Log); err != nil {
		return err
	}
	if err := validateStorageConf(conf.Storage, conf.Postgres); err != nil {
		return err
	}
	switch conf.Base.Format {
	case FormatMarkdown, FormatCSV:
	default:
		return fmt.Errorf("invalid format %s, valid formats are [%s %s]", conf.Base.Format, FormatMarkdown, FormatCSV)
	}
	for _, s := range conf.Base.Symbols {
		if strings.ContainsAny(s, ", ") {
			return fmt.Errorf("invalid symbol '%v'", s)
		}
	}
	return nil
}

type VerifyConfig struct {
	Log        Log
	Storage    Storage
	Postgres   Postgres
	ClickHouse ClickHouse
	Base       verifyBase
}

type verifyBase struct {
	Symbols []string `mapstructure:"symbols"`
	Journal bool     `mapstructure:"journal"`
}

func SetupVerifySpecificFlags(conf *VerifyConfig, cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&conf.Base.Symbols, "symbol", nil, "token symbols to verify (default all)")
	cmd.Flags().BoolVar(&conf.Base.Journal, "journal", false, "also compare the clickhouse commit journal with the ledger")
}

func (conf *VerifyConfig) Validate() error {
	if err := validateLogConf(conf.Log); err != nil {
		return err
	}
	if err := validateStorageConf(conf.Storage, conf.Postgres); err != nil {
		return err
	}
	if conf.Base.Journal && conf.ClickHouse.DSN == "" {
		return errors.New("--journal requires clickhouse.dsn")
	}
	return validateClickHouseConf(conf.ClickHouse)
}
