package cmd

import (
	"fmt"
	"os"

	"github.com/zg04ckpt/listenE-sub002/config"
	"github.com/zg04ckpt/listenE-sub002/storage"

	"github.com/spf13/cobra"
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理工具",
}

var minioStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "查看音频存储桶状态",
	Long:  `列出存储桶中的音频对象，并打印数量和总大小统计`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		if err := storage.InitMinio(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "初始化 MinIO 失败: %v\n", err)
			os.Exit(1)
		}
		prefix, _ := cmd.Flags().GetString("prefix")
		if err := storage.PrintBucketStatus(cfg, prefix); err != nil {
			fmt.Fprintf(os.Stderr, "获取存储桶状态失败: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	minioStatusCmd.Flags().String("prefix", "audio/", "对象前缀过滤")
	minioCmd.AddCommand(minioStatusCmd)
	rootCmd.AddCommand(minioCmd)
}
