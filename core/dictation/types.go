package dictation

// SegmentRequest 一个期望的分段时间范围。
// ID 为 nil 表示新建分段；更新请求中省略某个已有分段的 ID
// 即隐式删除该分段，这是对调用方公开的契约。
type SegmentRequest struct {
	ID         *int64  `json:"id"`
	Transcript string  `json:"transcript"`
	StartSec   float64 `json:"startSec"`
	EndSec     float64 `json:"endSec"`
	Position   int     `json:"position"`
}

// CreateTrackRequest 创建音轨的完整请求
type CreateTrackRequest struct {
	Name           string
	FullTranscript string
	FullAudio      []byte
	Segments       []SegmentRequest
}

// UpdateTrackRequest 更新音轨的完整请求。
// 重切分段时以已持久化的完整音频为源，不需要重新上传音频。
type UpdateTrackRequest struct {
	TrackID        int64
	FullTranscript string
	Segments       []SegmentRequest
}
