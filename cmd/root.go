package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "squidflags",
	Short: "Feature flag and session gateway for the squidstack storefront",
	Long: `squidflags evaluates the storefront's feature flags against the signed-in
user and serves them, along with the login session, over HTTP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(viper.GetString("log.level"))
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		log.SetLevel(level)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.squidflags.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level e.g. debug, info, warn, error")
	rootCmd.PersistentFlags().StringP("flag-provider", "y", "file", "Set a flag provider e.g. file or http")
	rootCmd.PersistentFlags().StringP("flag-key", "f", "", "Flag source key: a file path for file, an environment key for http")
	rootCmd.PersistentFlags().String("flag-url", "", "Base URL of the http flag provider")

	for key, flag := range map[string]string{
		"log.level":      "log-level",
		"flags.provider": "flag-provider",
		"flags.key":      "flag-key",
		"flags.url":      "flag-url",
	} {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("unable to load .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".squidflags")
	}

	viper.SetEnvPrefix("SQUIDFLAGS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}
