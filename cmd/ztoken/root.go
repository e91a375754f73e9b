package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ztoken-ledger/internal/config"
)

var (
	cfgFile string // config file location to load
	rootCmd = &cobra.Command{
		Use:          "ztoken",
		Short:        "A permissioned ledger for fiat-pegged tokens",
		SilenceUsage: true,
		Long: `ztoken keeps a ledger of fungible tokens issued by a single central issuer and
moved between accounts hosted by participating organisations.`,
	}
	viperConf = viper.New()
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(getViperConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file location (default is <CWD>/config.toml)")
}

func getViperConfig() {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("toml")
	} else {
		// Check in current working dir
		pwd, err := os.Getwd()
		if err != nil {
			zlog.Fatal().Err(err).Msg("could not determine current working dir")
		}
		if _, err := os.Stat(fmt.Sprintf("%v/config.toml", pwd)); err == nil {
			cfgFile = pwd
		} else {
			// file not in current working dir. Check home dir instead
			home, err := os.UserHomeDir()
			if err != nil {
				zlog.Fatal().Err(err).Msg("failed to find user home dir")
			}
			cfgFile = fmt.Sprintf("%s/.ztoken", home)
		}
		v.AddConfigPath(cfgFile)
		v.SetConfigType("toml")
		v.SetConfigName("config")
	}

	var noConfig bool
	err := v.ReadInConfig()
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "Config File \"config\" Not Found"):
			noConfig = true
		case strings.Contains(err.Error(), "incomplete number"):
			zlog.Fatal().Err(err).Msg("failed to read config file, a string is probably missing its quotes")
		default:
			zlog.Fatal().Err(err).Msg("failed to read config file")
		}
	}

	if !noConfig {
		zlog.Debug().Str("path", v.ConfigFileUsed()).Msg("config loaded")
	}

	viperConf = v
}

// bindFlags sets flags from the config file when not given on the command line.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		configName := f.Name

		if !f.Changed && v.IsSet(configName) {
			val := v.Get(configName)
			if list, ok := val.([]interface{}); ok {
				parts := make([]string, len(list))
				for i, p := range list {
					parts[i] = fmt.Sprintf("%v", p)
				}
				val = strings.Join(parts, ",")
			}
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				zlog.Fatal().Err(err).Str("key", configName).Msg("failed to bind config file value")
			}
		}
	})
}

// logCloser is released by the command's PostRun.
var logCloser io.Closer

func setupLogger(conf config.Log) (zerolog.Logger, error) {
	logger, closer, err := config.ConfigureLogger(conf.Path, conf.Level, conf.Pretty)
	if err != nil {
		return zerolog.Nop(), err
	}
	logCloser = closer
	return logger, nil
}

func closeLogger(*cobra.Command, []string) {
	if logCloser != nil {
		logCloser.Close()
	}
}

// warnIgnoredKeys logs config file keys the command does not recognise.
func warnIgnoredKeys(logger zerolog.Logger, ignored []string) {
	if len(ignored) > 0 {
		logger.Warn().Strs("keys", ignored).Msg("ignoring unknown config keys")
	}
}

// cmdLogger returns the global logger tagged with the command name.
func cmdLogger(name string) zerolog.Logger {
	return zlog.Logger.With().Str("cmd", name).Logger()
}
