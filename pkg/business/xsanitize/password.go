package xsanitize

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxPasswordLength 密码最大长度，按 Unicode 码点计数。
const MaxPasswordLength = 512

var (
	// ErrEmptyPassword 密码为空或只有空白。
	ErrEmptyPassword = errors.New("xsanitize: password is empty")

	// ErrPasswordTooLong 密码超过 MaxPasswordLength。
	ErrPasswordTooLong = errors.New("xsanitize: password too long")
)

// Result 密码校验结果。Valid 为 false 时 Err 说明原因。
type Result struct {
	Valid bool
	Err   error
}

// ValidatePassword 校验密码。密码原样交给提供方，这里不做任何修改。
func ValidatePassword(raw string) Result {
	if strings.TrimSpace(raw) == "" {
		return Result{Err: ErrEmptyPassword}
	}
	if utf8.RuneCountInString(raw) > MaxPasswordLength {
		return Result{Err: ErrPasswordTooLong}
	}
	return Result{Valid: true}
}
