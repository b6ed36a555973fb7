package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"Bt1Deck/config"
	"Bt1Deck/logger"
)

var rootCmd = &cobra.Command{
	Use:   "bt1deck",
	Short: "Bt1Deck is a local music deck with content-aware track naming.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd, "")
	},
}

// loadConfig reads .env and the environment and starts the logger.
func loadConfig() *config.Config {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		Format:     cfg.LogFormat,
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	})
	return cfg
}

// Execute executes the root command.
func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
