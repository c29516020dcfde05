package services

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// partialStringField 从可能尚未闭合的 JSON 文本中取出字符串字段当前已到达的部分。
// 只取第一次出现的 key；转义序列不完整时在其之前截断。
func partialStringField(buf, key string) string {
	needle := `"` + key + `"`
	idx := strings.Index(buf, needle)
	if idx < 0 {
		return ""
	}
	i := skipSpace(buf, idx+len(needle))
	if i >= len(buf) || buf[i] != ':' {
		return ""
	}
	i = skipSpace(buf, i+1)
	if i >= len(buf) || buf[i] != '"' {
		return ""
	}
	i++

	var b strings.Builder
	for i < len(buf) {
		c := buf[i]
		switch {
		case c == '"':
			return b.String()
		case c != '\\':
			b.WriteByte(c)
			i++
			continue
		}
		// 转义
		if i+1 >= len(buf) {
			return b.String()
		}
		switch buf[i+1] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case '"', '\\', '/':
			b.WriteByte(buf[i+1])
		case 'u':
			r, width, ok := decodeUnicodeEscape(buf[i:])
			if !ok {
				return b.String()
			}
			b.WriteRune(r)
			i += width
			continue
		default:
			b.WriteByte(buf[i+1])
		}
		i += 2
	}
	return b.String()
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\n' || s[i] == '\t' || s[i] == '\r') {
		i++
	}
	return i
}

// decodeUnicodeEscape 解析 \uXXXX（含代理对），返回字符与消耗的字节数
func decodeUnicodeEscape(s string) (rune, int, bool) {
	if len(s) < 6 {
		return 0, 0, false
	}
	hi, err := strconv.ParseUint(s[2:6], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	r := rune(hi)
	if !utf16.IsSurrogate(r) {
		return r, 6, true
	}
	if len(s) < 12 || s[6] != '\\' || s[7] != 'u' {
		return 0, 0, false
	}
	lo, err := strconv.ParseUint(s[8:12], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return utf16.DecodeRune(r, rune(lo)), 12, true
}
