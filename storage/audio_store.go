package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/zg04ckpt/listenE-sub002/config"
	"github.com/zg04ckpt/listenE-sub002/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// URLPrefix 音频对象对外暴露的URL前缀，由服务器的对象代理路由提供服务
const URLPrefix = "/static/"

// AudioStore 音频二进制对象存储。
// SaveAudio 成功时返回可持久引用的URL；RemoveAudio 返回是否删除成功，
// 删除失败不抛错，由调用方决定策略。
type AudioStore interface {
	SaveAudio(ctx context.Context, data []byte) (string, error)
	LoadAudio(ctx context.Context, url string) ([]byte, error)
	RemoveAudio(ctx context.Context, url string) bool
}

// minioAudioStore 基于 MinIO 的实现
type minioAudioStore struct {
	bucket string
}

// NewMinioAudioStore 创建 MinIO 音频存储，需先调用 InitMinio
func NewMinioAudioStore(cfg *config.Config) AudioStore {
	return &minioAudioStore{bucket: cfg.MinioBucket}
}

// SaveAudio 上传一段MP3音频，对象名使用uuid避免冲突
func (s *minioAudioStore) SaveAudio(ctx context.Context, data []byte) (string, error) {
	client := GetMinioClient()
	if client == nil {
		return "", fmt.Errorf("MinIO 客户端未初始化")
	}

	objectName := fmt.Sprintf("audio/%s.mp3", uuid.New().String())
	opts := minio.PutObjectOptions{
		ContentType: "audio/mpeg",
	}

	_, err := client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return "", fmt.Errorf("上传音频对象 %s 失败: %w", objectName, err)
	}

	return URLPrefix + objectName, nil
}

// LoadAudio 读取已保存的音频对象完整内容
func (s *minioAudioStore) LoadAudio(ctx context.Context, url string) ([]byte, error) {
	client := GetMinioClient()
	if client == nil {
		return nil, fmt.Errorf("MinIO 客户端未初始化")
	}

	if !strings.HasPrefix(url, URLPrefix) {
		return nil, fmt.Errorf("无法识别的音频URL: %s", url)
	}
	objectName := strings.TrimPrefix(url, URLPrefix)

	object, err := client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取音频对象 %s 失败: %w", objectName, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("读取音频对象 %s 内容失败: %w", objectName, err)
	}
	return data, nil
}

// RemoveAudio 删除音频对象，失败时仅记录日志并返回false
func (s *minioAudioStore) RemoveAudio(ctx context.Context, url string) bool {
	client := GetMinioClient()
	if client == nil {
		logger.Warn("MinIO 客户端未初始化，跳过对象删除", logger.String("url", url))
		return false
	}

	if !strings.HasPrefix(url, URLPrefix) {
		// 非本存储生成的URL
		logger.Warn("无法识别的音频URL，跳过删除", logger.String("url", url))
		return false
	}
	objectName := strings.TrimPrefix(url, URLPrefix)

	if err := client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		logger.Warn("删除音频对象失败",
			logger.String("object", objectName),
			logger.ErrorField(err))
		return false
	}

	return true
}
