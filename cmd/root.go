package cmd

import (
	"fmt"
	"os"

	"github.com/zg04ckpt/listenE-sub002/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "listene",
	Short: "listenE is a dictation practice platform.",
	Run: func(cmd *cobra.Command, args []string) {
		// 默认直接启动服务器
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
