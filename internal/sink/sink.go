package sink

import (
	"context"

	"mail-summary-service/internal/model"
)

// Sink 接收任务的终态快照。返回的错误只记录日志，不影响任务记录本身
type Sink interface {
	Name() string
	JobFinished(ctx context.Context, job model.Job) error
}
