package xlog

import "context"

type jobIDKey struct{}

// ContextWithJobID 把任务 ID 写入 context，EnrichHandler 会将其输出为 job_id。
func ContextWithJobID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, jobIDKey{}, id)
}

// JobIDFromContext 读取任务 ID，不存在时返回空串。
func JobIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}
