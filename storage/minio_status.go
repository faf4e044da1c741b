package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/zg04ckpt/listenE-sub002/config"

	"github.com/minio/minio-go/v7"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// ListBucketObjects 列出存储桶中指定前缀的所有对象
func ListBucketObjects(cfg *config.Config, prefix string) ([]ObjectInfo, *BucketStats, error) {
	client := GetMinioClient()
	if client == nil {
		return nil, nil, fmt.Errorf("MinIO 客户端未初始化")
	}

	ctx := context.Background()
	stats := &BucketStats{}
	var objects []ObjectInfo

	objectCh := client.ListObjects(ctx, cfg.MinioBucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}

		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}

		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
		})
	}

	return objects, stats, nil
}

// PrintBucketStatus 打印存储桶状态
func PrintBucketStatus(cfg *config.Config, prefix string) error {
	objects, stats, err := ListBucketObjects(cfg, prefix)
	if err != nil {
		return err
	}

	fmt.Printf("存储桶状态报告: %s\n", cfg.MinioBucket)
	fmt.Printf("前缀过滤: %s\n", prefix)
	fmt.Printf("总文件数: %d\n", stats.TotalObjects)
	fmt.Printf("总存储大小: %s\n", formatSize(stats.TotalSize))
	if !stats.LastModified.IsZero() {
		fmt.Printf("最后更新时间: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
	}
	fmt.Println("\n文件列表:")

	for _, obj := range objects {
		fmt.Printf("  %s  %s  %s\n", obj.Key, formatSize(obj.Size),
			obj.LastModified.Format("2006-01-02 15:04:05"))
	}

	return nil
}

// formatSize 格式化文件大小
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
