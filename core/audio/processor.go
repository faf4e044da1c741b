package audio

import "context"

// Session 一个已打开的、可随机按时间读取的解码会话。
// Close 必须且只需调用一次，重复调用是安全的。
type Session interface {
	// Duration 返回源音频总时长（秒）
	Duration() float64
	// Cut 把 [startSec, endSec] 时间窗口重编码为可独立播放的MP3字节流
	Cut(ctx context.Context, startSec, endSec float64) ([]byte, error)
	// EncodeDelivery 把完整源音频重编码为统一交付格式
	EncodeDelivery(ctx context.Context) ([]byte, error)
	// Close 释放会话占用的全部临时资源
	Close() error
}

// Clipper 音频切片引擎入口
type Clipper interface {
	Open(ctx context.Context, source []byte) (Session, error)
}
