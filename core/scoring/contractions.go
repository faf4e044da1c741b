package scoring

import (
	"regexp"
	"strings"
)

// contractions 固定的缩写查找表，左侧为缩写形式（小写），右侧为展开形式。
// 展开必须发生在去标点之前，因为缩写本身带撇号。
var contractions = map[string]string{
	"ain't":     "am not",
	"aren't":    "are not",
	"can't":     "cannot",
	"couldn't":  "could not",
	"didn't":    "did not",
	"doesn't":   "does not",
	"don't":     "do not",
	"hadn't":    "had not",
	"hasn't":    "has not",
	"haven't":   "have not",
	"he'd":      "he would",
	"he'll":     "he will",
	"he's":      "he is",
	"i'd":       "i would",
	"i'll":      "i will",
	"i'm":       "i am",
	"i've":      "i have",
	"isn't":     "is not",
	"it'll":     "it will",
	"it's":      "it is",
	"let's":     "let us",
	"mightn't":  "might not",
	"mustn't":   "must not",
	"needn't":   "need not",
	"she'd":     "she would",
	"she'll":    "she will",
	"she's":     "she is",
	"shouldn't": "should not",
	"that's":    "that is",
	"there's":   "there is",
	"they'd":    "they would",
	"they'll":   "they will",
	"they're":   "they are",
	"they've":   "they have",
	"wasn't":    "was not",
	"we'd":      "we would",
	"we'll":     "we will",
	"we're":     "we are",
	"we've":     "we have",
	"weren't":   "were not",
	"what's":    "what is",
	"who's":     "who is",
	"won't":     "will not",
	"wouldn't":  "would not",
	"you'd":     "you would",
	"you'll":    "you will",
	"you're":    "you are",
	"you've":    "you have",
}

// 匹配带撇号的候选缩写词，支持直撇号和弯撇号
var contractionPattern = regexp.MustCompile(`[A-Za-z]+['’][A-Za-z]+`)

// expandContractions 把文本中已知的缩写替换为展开形式，大小写不敏感
func expandContractions(s string) string {
	return contractionPattern.ReplaceAllStringFunc(s, func(m string) string {
		key := strings.ToLower(strings.ReplaceAll(m, "’", "'"))
		if expanded, ok := contractions[key]; ok {
			return expanded
		}
		return m
	})
}
