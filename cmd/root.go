package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/catalog-engine/internal/config"
	"github.com/zjrosen/catalog-engine/internal/log"
)

const localConfigPath = ".catalog-engine/config.yaml"

var (
	version   = "dev"
	cfgFile   string
	cfg       config.Config
	debugFlag bool

	closeLog = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "catalog-engine",
	Short: "Keeps a schema module catalog consistent",
	Long: `catalog-engine derives semantic versions, tree types, dependents and
draft expiration for the modules of a catalog and writes the differences
back to the catalog datastore.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(*cobra.Command, []string) { closeLog() },
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./.catalog-engine/config.yaml, then ~/.config/catalog-engine/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"log at debug level")
}

func initConfig() {
	config.RegisterDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .catalog-engine/config.yaml (current directory)
		// 2. ~/.config/catalog-engine/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			viper.AddConfigPath(config.BaseDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file anywhere: create the default one locally.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if writeErr := config.WriteDefaultConfig(localConfigPath); writeErr == nil {
				viper.SetConfigFile(localConfigPath)
				_ = viper.ReadInConfig()
			}
		}
	}

	_ = viper.Unmarshal(&cfg)
}

func setupLogging(_ *cobra.Command, _ []string) error {
	level := log.ParseLevel(cfg.Log.Level)
	if debugFlag {
		level = log.LevelDebug
	}

	if cfg.Log.File == "" {
		log.InitWriter(os.Stderr, level)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o750); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	cleanup, err := log.Init(cfg.Log.File)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	log.SetMinLevel(level)
	closeLog = cleanup
	log.Debug(log.CatConfig, "config loaded", "file", viper.ConfigFileUsed())
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
