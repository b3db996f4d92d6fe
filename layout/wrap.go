package layout

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Wrap 以字符数为宽度做贪心折行：只在空白处断开，连续空白折叠为一个空格，
// 行首行尾不保留空白。超过 width 的单词独占一行，不在词内拆分。
func Wrap(text string, width int) []string {
	if width < 1 {
		width = 1
	}
	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	var builder strings.Builder
	current := 0
	for _, word := range words {
		n := utf8.RuneCountInString(word)
		if current > 0 && current+1+n > width {
			lines = append(lines, builder.String())
			builder.Reset()
			current = 0
		}
		if current > 0 {
			builder.WriteByte(' ')
			current++
		}
		builder.WriteString(word)
		current += n
	}
	if builder.Len() > 0 {
		lines = append(lines, builder.String())
	}
	return lines
}

// wrapChars 按未折行文本的实测宽度估算每行可容纳的字符数，假设字形宽度大致均匀。
func wrapChars(message string, budget, measured float64) int {
	if measured <= 0 {
		return utf8.RuneCountInString(message)
	}
	n := int(float64(utf8.RuneCountInString(message)) * budget / measured)
	if n < 1 {
		n = 1
	}
	return n
}
