package xclassify

import "errors"

var (
	// ErrUnknownCategory 类别名称无法解析。
	ErrUnknownCategory = errors.New("xclassify: unknown category")

	// ErrEmptyPatterns WithRule 未提供任何匹配模式。
	ErrEmptyPatterns = errors.New("xclassify: rule needs at least one pattern")
)

// Categorized 可由调用方错误类型实现，直接声明自身类别。
//
// 提供方适配层如果已经知道失败原因（例如解析出了 HTTP 状态码），
// 实现此接口即可绕过文本匹配。
type Categorized interface {
	error
	FetchCategory() Category
}

// categorizedError 是 WithCategory 的返回类型。
type categorizedError struct {
	err      error
	category Category
}

func (e *categorizedError) Error() string           { return e.err.Error() }
func (e *categorizedError) Unwrap() error           { return e.err }
func (e *categorizedError) FetchCategory() Category { return e.category }

// WithCategory 给 err 打上明确的类别标记。err 为 nil 时返回 nil。
func WithCategory(err error, c Category) error {
	if err == nil {
		return nil
	}
	if !c.Valid() {
		c = Unknown
	}
	return &categorizedError{err: err, category: c}
}
