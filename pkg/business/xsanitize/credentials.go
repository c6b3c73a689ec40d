package xsanitize

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrInvalidEmail 规范化后的邮箱为空或不是 local@domain 形式。
var ErrInvalidEmail = errors.New("xsanitize: invalid email")

// Credentials 已规范化、可以入队的登录凭据。
type Credentials struct {
	Email    string
	Password string
}

// String 不输出密码，避免凭据被意外打印。
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Email: %s, Password: [REDACTED]}", Redact(c.Email))
}

// LogValue 实现 slog.LogValuer，日志中只出现脱敏后的邮箱。
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("email", Redact(c.Email)))
}

// Prepare 规范化邮箱并校验密码，是凭据入队前的唯一入口。
func Prepare(email, password string) (Credentials, error) {
	clean := SanitizeEmail(email)
	if err := checkEmail(clean); err != nil {
		return Credentials{}, err
	}
	if res := ValidatePassword(password); !res.Valid {
		return Credentials{}, res.Err
	}
	return Credentials{Email: clean, Password: password}, nil
}

func checkEmail(clean string) error {
	if clean == "" {
		return fmt.Errorf("%w: empty after sanitizing", ErrInvalidEmail)
	}
	if strings.Count(clean, "@") != 1 {
		return fmt.Errorf("%w: want exactly one '@'", ErrInvalidEmail)
	}
	local, domain, _ := strings.Cut(clean, "@")
	if local == "" || domain == "" {
		return fmt.Errorf("%w: empty local part or domain", ErrInvalidEmail)
	}
	return nil
}
