package knowledge

import (
	"strings"
	"unicode"
)

// EstimateTokens 粗略估算文本token数，用于调用前的上下文预算检查
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	var cjk, letters, digits, punct, other, total int
	for _, r := range text {
		total++
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r):
			cjk++
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		case unicode.IsSpace(r):
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			punct++
		default:
			other++
		}
	}

	words := len(strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) || unicode.Is(unicode.Han, r)
	}))

	// 经验系数：英文约1.3 token/词，中文约1.6 token/字
	estimated := float64(cjk)*1.6 +
		float64(words)*1.3 +
		float64(digits)*0.8 +
		float64(punct)*0.5 +
		float64(other) +
		2

	// 下限：字符数的1/4
	if floor := float64(total) / 4; estimated < floor {
		estimated = floor
	}
	return int(estimated + 0.5)
}
