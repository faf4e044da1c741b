package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zg04ckpt/listenE-sub002/logger"
	"github.com/zg04ckpt/listenE-sub002/model"

	"github.com/go-redis/redis/v8"
)

const (
	trackContentKeyFmt = "listene:track:content:%d"
	trackContentTTL    = 30 * time.Minute
)

// TrackCache 音轨完整内容的Redis读缓存。
// 客户端为nil时所有操作都退化为未命中，方便在无Redis环境下运行和测试。
type TrackCache struct {
	client *redis.Client
}

// NewTrackCache 创建音轨内容缓存
func NewTrackCache(client *redis.Client) *TrackCache {
	return &TrackCache{client: client}
}

// GetContent 读取缓存的音轨内容，未命中返回 (nil, nil)
func (c *TrackCache) GetContent(ctx context.Context, trackID int64) (*model.TrackContent, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	key := fmt.Sprintf(trackContentKeyFmt, trackID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get track content from cache: %w", err)
	}

	var content model.TrackContent
	if err := json.Unmarshal(data, &content); err != nil {
		// 缓存内容损坏时当作未命中处理，同时清掉坏数据
		logger.Warn("缓存内容反序列化失败，已丢弃",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		c.client.Del(ctx, key)
		return nil, nil
	}

	return &content, nil
}

// SetContent 写入音轨内容缓存
func (c *TrackCache) SetContent(ctx context.Context, content *model.TrackContent) error {
	if c == nil || c.client == nil || content == nil {
		return nil
	}

	data, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal track content: %w", err)
	}

	key := fmt.Sprintf(trackContentKeyFmt, content.ID)
	return c.client.Set(ctx, key, data, trackContentTTL).Err()
}

// Invalidate 使指定音轨的缓存失效，更新和删除后必须调用
func (c *TrackCache) Invalidate(ctx context.Context, trackID int64) {
	if c == nil || c.client == nil {
		return
	}

	key := fmt.Sprintf(trackContentKeyFmt, trackID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		logger.Warn("音轨缓存失效操作失败",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
	}
}
