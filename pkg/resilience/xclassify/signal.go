package xclassify

import "strings"

type signalKind uint8

const (
	kindValue signalKind = iota
	kindText
	kindErr
)

// Signal 失败信号：原始文本、结构化错误或不透明值三者之一。
//
// 零值等价于 Value(nil)，分类结果为 Unknown。
type Signal struct {
	kind  signalKind
	text  string
	err   error
	value any
}

// Text 以原始错误消息构造信号。
func Text(s string) Signal {
	return Signal{kind: kindText, text: s}
}

// Err 以 error 构造信号。nil error 分类为 Unknown。
func Err(err error) Signal {
	return Signal{kind: kindErr, err: err}
}

// Value 以任意值构造信号。Value 信号永远分类为 Unknown。
func Value(v any) Signal {
	return Signal{kind: kindValue, value: v}
}

// Of 根据 v 的动态类型选择信号变体：string → Text，error → Err，其余 → Value。
func Of(v any) Signal {
	switch x := v.(type) {
	case Signal:
		return x
	case string:
		return Text(x)
	case error:
		return Err(x)
	default:
		return Value(v)
	}
}

// Error 返回信号携带的 error（仅 Err 变体）。
func (s Signal) Error() error {
	if s.kind == kindErr {
		return s.err
	}
	return nil
}

// view 返回用于模式匹配的小写字符串视图，ok=false 表示该信号不参与文本匹配。
func (s Signal) view() (string, bool) {
	switch s.kind {
	case kindText:
		return strings.ToLower(s.text), true
	case kindErr:
		if s.err == nil {
			return "", false
		}
		return strings.ToLower(s.err.Error()), true
	default:
		return "", false
	}
}
