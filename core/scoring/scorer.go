// Package scoring 实现听写文本与参考原文之间保序单词对齐判分。
//
// 算法流程：缩写展开 → 归一化分词 → 单词级最长公共子序列（LCS）→
// 按参考原文顺序逐词判定 → 计算正确率/冗余率/最终得分。
package scoring

import (
	"math"
	"regexp"
	"strings"

	"github.com/zg04ckpt/listenE-sub002/model"
)

// 去掉所有非单词、非空白字符
var nonWordChars = regexp.MustCompile(`[^\w\s]`)

// normalizeWords 缩写展开后归一化：去标点、转小写、按空白切词
func normalizeWords(s string) []string {
	s = expandContractions(s)
	s = nonWordChars.ReplaceAllString(s, "")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Fields(s)
}

// lcsWords 计算两个单词序列的最长公共子序列。
// 标准动态规划，回溯时固定优先走参考序列方向，保证平局时
// 对齐结果确定且取最早出现的位置。
func lcsWords(a, b []string) []string {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return nil
	}

	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	// 回溯重建子序列
	lcs := make([]string, 0, dp[n][m])
	for i, j := n, m; i > 0 && j > 0; {
		switch {
		case a[i-1] == b[j-1]:
			lcs = append(lcs, a[i-1])
			i--
			j--
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}

	// 反转为正序
	for i, j := 0, len(lcs)-1; i < j; i, j = i+1, j-1 {
		lcs[i], lcs[j] = lcs[j], lcs[i]
	}
	return lcs
}

// round2 四舍五入保留两位小数
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Score 对学习者键入的文本和参考原文判分。
//
// 每个参考单词恰好得到一个判定；Transcript 字段返回未经归一化的
// 原始参考原文用于展示。空输入约定：参考为空且键入为空时正确率为100，
// 参考为空而键入非空时为0；键入为空时冗余率为0。任何情况下都不会出现NaN。
func Score(typedText, referenceText string) *model.ScoringResult {
	typedWords := normalizeWords(typedText)
	referenceWords := normalizeWords(referenceText)

	lcs := lcsWords(typedWords, referenceWords)

	// 按参考原文顺序逐词判定，游标指向下一个未消费的LCS单词
	verdicts := make([]model.WordVerdict, 0, len(referenceWords))
	matched := 0
	cursor := 0
	for i, word := range referenceWords {
		verdict := model.VerdictMissingOrWrong
		if cursor < len(lcs) && word == lcs[cursor] {
			verdict = model.VerdictCorrect
			matched++
			cursor++
		}
		verdicts = append(verdicts, model.WordVerdict{
			Order:   i + 1,
			Word:    word,
			Verdict: verdict,
		})
	}

	var correctRate float64
	if len(referenceWords) > 0 {
		correctRate = round2(float64(matched) / float64(len(referenceWords)) * 100)
	} else if len(typedWords) == 0 {
		correctRate = 100
	}

	redundancy := len(typedWords) - len(referenceWords)
	if redundancy < 0 {
		redundancy = 0
	}

	var redundancyRate float64
	if len(typedWords) > 0 {
		redundancyRate = round2(float64(redundancy) / float64(len(typedWords)) * 100)
	}

	score := int(math.Floor(correctRate - redundancyRate))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &model.ScoringResult{
		Verdicts:       verdicts,
		Redundancy:     redundancy,
		RedundancyRate: redundancyRate,
		CorrectRate:    correctRate,
		Score:          score,
		Transcript:     referenceText,
	}
}
