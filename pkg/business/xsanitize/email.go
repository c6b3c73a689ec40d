package xsanitize

import (
	"strings"
	"unicode/utf8"
)

// SanitizeEmail 规范化邮箱：去首尾空白、转小写，
// 删除 ASCII 字母数字和 . _ + - @ 以外的所有字符。
//
// 不校验格式，结果可能为空串。
func SanitizeEmail(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.Map(func(r rune) rune {
		if allowedEmailRune(r) {
			return r
		}
		return -1
	}, s)
}

func allowedEmailRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '+', r == '-', r == '@':
		return true
	}
	return false
}

// Redact 对邮箱脱敏，只保留本地部分首字符和域名，例如 u***@example.com。
// 没有 @ 时整体替换为 ***。
func Redact(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	r, _ := utf8.DecodeRuneInString(local)
	return string(r) + "***@" + domain
}
