package model

// Verdict 单词判定结果
type Verdict string

const (
	VerdictCorrect        Verdict = "correct"
	VerdictMissingOrWrong Verdict = "missing_or_wrong"
)

// WordVerdict 参考原文中一个单词的判定，Order 从 1 开始
type WordVerdict struct {
	Order   int     `json:"order"`
	Word    string  `json:"word"`
	Verdict Verdict `json:"verdict"`
}

// ScoringResult 一次听写判分的结果，不落库，每次请求重新计算
type ScoringResult struct {
	SegmentID      int64         `json:"segmentId,omitempty"`
	Verdicts       []WordVerdict `json:"verdicts"`
	Redundancy     int           `json:"redundancy"`
	RedundancyRate float64       `json:"redundancyRate"` // 百分比，保留两位小数
	CorrectRate    float64       `json:"correctRate"`    // 百分比，保留两位小数
	Score          int           `json:"score"`          // 0-100
	Transcript     string        `json:"transcript"`     // 原始参考原文，未经归一化
}
