package cmd

import (
	"github.com/zg04ckpt/listenE-sub002/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动listenE服务器",
	Long:  `启动listenE听写练习系统的HTTP服务器，提供API服务`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
