package model

import "time"

// Track 一条完整的听写音频及其原文，被切分为若干分段
type Track struct {
	ID             int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name           string    `json:"name" gorm:"size:200;not null;uniqueIndex"`
	FullAudioURL   string    `json:"fullAudioUrl" gorm:"size:500"`
	FullTranscript string    `json:"fullTranscript" gorm:"type:text"`
	Duration       float64   `json:"duration"` // 总时长（秒）
	Position       int       `json:"position" gorm:"not null;index"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	Segments []Segment `json:"segments,omitempty" gorm:"foreignKey:TrackID;constraint:OnDelete:CASCADE"`
}

// TableName 指定表名
func (Track) TableName() string {
	return "tracks"
}

// Segment 音轨的一个时间范围子片段，带有独立的原文和音频文件
type Segment struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	TrackID    int64     `json:"trackId" gorm:"index;not null"`
	Transcript string    `json:"transcript" gorm:"type:text"`
	AudioURL   string    `json:"audioUrl" gorm:"size:500"`
	StartSec   float64   `json:"startSec"`
	EndSec     float64   `json:"endSec"`
	Position   int       `json:"position" gorm:"not null"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Segment) TableName() string {
	return "segments"
}

// TrackSummary 创建/更新操作返回的摘要（API 响应用）
type TrackSummary struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Duration     float64 `json:"duration"`
	Position     int     `json:"position"`
	SegmentCount int     `json:"segmentCount"`
}

// TrackContent 音轨完整内容（API 响应用）
type TrackContent struct {
	Track
	Segments []Segment `json:"segments"`
}
