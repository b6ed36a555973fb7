package cmd

import (
	"github.com/spf13/cobra"

	"Bt1Deck/server"
)

var (
	libraryDir string
	listenAddr string
)

var serverCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "启动 Bt1Deck 服务",
	Long:    `启动 HTTP/WebSocket 服务，可选加载并监听一个本地音乐目录`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd, libraryDir)
	},
}

func runServer(cmd *cobra.Command, dir string) error {
	cfg := loadConfig()
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	cmd.SilenceUsage = true
	return server.Start(cfg, dir)
}

func init() {
	serverCmd.Flags().StringVarP(&libraryDir, "dir", "d", "", "music folder to load and watch (overrides WATCH_DIR)")
	serverCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (overrides LISTEN_ADDR)")
	rootCmd.AddCommand(serverCmd)
}
