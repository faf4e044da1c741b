package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zg04ckpt/listenE-sub002/logger"
)

var (
	// ErrDecode 源字节流不是可解码的音频
	ErrDecode = errors.New("audio: source is not decodable")
	// ErrInvalidRange 请求的切片时间范围非法
	ErrInvalidRange = errors.New("audio: invalid clip range")
)

// FFmpegClipper 基于ffmpeg的切片引擎
type FFmpegClipper struct {
	processor *FFmpegProcessor
}

// NewFFmpegClipper 创建切片引擎
func NewFFmpegClipper(processor *FFmpegProcessor) *FFmpegClipper {
	return &FFmpegClipper{processor: processor}
}

// clipSession 单个源音频的解码会话。
// 源字节流落到私有临时目录中的一个文件，每次Cut都是对该只读文件
// 启动一个独立的ffmpeg进程，因此同一会话内的并发切片是安全的。
type clipSession struct {
	processor  *FFmpegProcessor
	tempDir    string
	sourcePath string
	duration   float64
	closeOnce  sync.Once
	closeErr   error
}

// Open 解码给定的音频字节流并建立会话。
// 任何失败路径都会清理已创建的临时目录，不会泄漏资源。
func (c *FFmpegClipper) Open(ctx context.Context, source []byte) (Session, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("%w: empty source", ErrDecode)
	}

	tempDir, err := os.MkdirTemp("", "listene-clip-*")
	if err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %w", err)
	}

	sourcePath := filepath.Join(tempDir, "source")
	if err := os.WriteFile(sourcePath, source, 0600); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("写入源音频失败: %w", err)
	}

	codec, duration, err := c.processor.Probe(ctx, sourcePath)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	logger.Debug("音频解码会话已打开",
		logger.String("codec", codec),
		logger.Float64("duration", duration),
		logger.String("tempDir", tempDir))

	return &clipSession{
		processor:  c.processor,
		tempDir:    tempDir,
		sourcePath: sourcePath,
		duration:   duration,
	}, nil
}

// Duration 返回源音频总时长（秒）
func (s *clipSession) Duration() float64 {
	return s.duration
}

// Cut 把 [startSec, endSec] 窗口重编码为独立可播放的MP3字节流
func (s *clipSession) Cut(ctx context.Context, startSec, endSec float64) ([]byte, error) {
	if startSec < 0 || endSec <= startSec || endSec > s.duration {
		return nil, fmt.Errorf("%w: [%.3f, %.3f] with duration %.3f", ErrInvalidRange, startSec, endSec, s.duration)
	}

	data, err := s.processor.Encode(ctx, s.sourcePath, startSec, endSec-startSec)
	if err != nil {
		return nil, fmt.Errorf("切片 [%.3f, %.3f] 失败: %w", startSec, endSec, err)
	}
	return data, nil
}

// EncodeDelivery 把完整源音频重编码为统一交付格式
func (s *clipSession) EncodeDelivery(ctx context.Context) ([]byte, error) {
	data, err := s.processor.Encode(ctx, s.sourcePath, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("完整音频转码失败: %w", err)
	}
	return data, nil
}

// Close 释放临时资源，幂等
func (s *clipSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = os.RemoveAll(s.tempDir)
		if s.closeErr != nil {
			logger.Warn("清理切片会话临时目录失败",
				logger.String("tempDir", s.tempDir),
				logger.ErrorField(s.closeErr))
		}
	})
	return s.closeErr
}
