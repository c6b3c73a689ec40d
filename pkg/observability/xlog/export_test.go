package xlog

// ErrorCount 返回 logger 内部写入失败次数（仅用于测试）。
func ErrorCount(l Logger) uint64 {
	if xl, ok := l.(*xlogger); ok {
		return xl.errorCount.Load()
	}
	return 0
}
