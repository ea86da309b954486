package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"mail-summary-service/internal/jobstore"
	"mail-summary-service/internal/model"
	"mail-summary-service/internal/prompt"
	"mail-summary-service/internal/sink"
	"mail-summary-service/internal/summarizer"
	"mail-summary-service/pkg/logger"
	"mail-summary-service/pkg/metrics"
	"mail-summary-service/pkg/util"
)

// Progress 进度检查点。完成/失败固定为 100
type Progress struct {
	Started     int           `yaml:"started"`
	WarmedUp    int           `yaml:"warmed_up"`
	Responded   int           `yaml:"responded"`
	WarmupDelay time.Duration `yaml:"warmup_delay"`
}

func DefaultProgress() Progress {
	return Progress{
		Started:     10,
		WarmedUp:    30,
		Responded:   75,
		WarmupDelay: time.Second,
	}
}

// PanicError 任务执行过程中 panic 被 recover 后转换成的错误
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("internal error: job runner panicked: %v", e.Value)
}

func (e *PanicError) ErrorType() string { return "panic" }

// Runner 每个任务启动一个 goroutine，按检查点推进进度，最终写入终态
type Runner struct {
	store    jobstore.Store
	client   summarizer.Client
	progress Progress
	sinks    []sink.Sink
	logger   *zap.Logger

	wg  sync.WaitGroup
	now func() time.Time
}

func New(store jobstore.Store, client summarizer.Client, progress Progress, logger *zap.Logger, sinks ...sink.Sink) *Runner {
	return &Runner{
		store:    store,
		client:   client,
		progress: progress,
		sinks:    sinks,
		logger:   logger,
		now:      time.Now,
	}
}

// Launch 先同步写入 started 检查点，然后在后台执行任务并立即返回。
// 后台任务不随请求取消，但保留 ctx 中的 trace_id。
func (r *Runner) Launch(ctx context.Context, id, emails string) {
	ctx = context.WithoutCancel(ctx)
	start := r.now()
	log := logger.WithTrace(ctx, r.logger).With(zap.String("job_id", id))

	metrics.IncrementJobSubmitted()
	metrics.JobsInFlight.Inc()
	r.checkpoint(ctx, log, id, r.progress.Started)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer metrics.JobsInFlight.Dec()
		r.run(ctx, log, id, emails, start)
	}()
}

// Wait blocks until every launched job has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(ctx context.Context, log *zap.Logger, id, emails string, start time.Time) {
	finished := false
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		perr := &PanicError{Value: rec, Stack: debug.Stack()}
		log.Error("Job runner panicked",
			zap.Any("panic", rec),
			zap.ByteString("stack", perr.Stack),
		)
		// 终态已经写入（例如 sink 里 panic），不再覆盖
		if !finished {
			r.finish(ctx, log, id, nil, perr, start)
		}
	}()

	count := prompt.CountEmails(emails)
	log.Info("Job started", zap.Int("emails", count))
	metrics.ObserveEmailsPerJob(count)

	if r.progress.WarmupDelay > 0 {
		time.Sleep(r.progress.WarmupDelay)
	}
	r.checkpoint(ctx, log, id, r.progress.WarmedUp)

	raw, err := r.client.Generate(ctx, prompt.Build(emails))
	if err != nil {
		finished = true
		r.finish(ctx, log, id, nil, err, start)
		return
	}
	r.checkpoint(ctx, log, id, r.progress.Responded)

	results, err := summarizer.Parse(raw)
	finished = true
	r.finish(ctx, log, id, results, err, start)
}

// checkpoint 只在 processing 状态下把进度往前推，不会回退
func (r *Runner) checkpoint(ctx context.Context, log *zap.Logger, id string, progress int) {
	now := r.now()
	found, err := r.store.Update(ctx, id, func(j *model.Job) {
		if j.Status != model.JobStatusProcessing || j.Progress >= progress {
			return
		}
		j.Progress = progress
		j.UpdatedAt = now
	})
	if err != nil {
		log.Error("Failed to update job progress", zap.Int("progress", progress), zap.Error(err))
		return
	}
	if !found {
		log.Warn("Job record missing at progress checkpoint", zap.Int("progress", progress))
	}
}

func (r *Runner) finish(ctx context.Context, log *zap.Logger, id string, results []model.SummaryEntry, jobErr error, start time.Time) {
	now := r.now()

	var snapshot model.Job
	found, err := r.store.Update(ctx, id, func(j *model.Job) {
		if jobErr != nil {
			j.Fail(jobErr.Error(), now)
		} else {
			j.Complete(results, now)
		}
		snapshot = j.Clone()
	})

	status, errorType := string(model.JobStatusCompleted), ""
	if jobErr != nil {
		status, errorType = string(model.JobStatusFailed), util.ClassifyError(jobErr)
	}
	metrics.RecordJobFinished(status, errorType, now.Sub(start))

	if err != nil {
		log.Error("Failed to write job result",
			zap.String("status", status),
			zap.NamedError("job_error", jobErr),
			zap.Error(err),
		)
		return
	}
	if !found {
		log.Warn("Job record missing at completion, result dropped",
			zap.String("status", status),
			zap.NamedError("job_error", jobErr),
		)
		return
	}

	if jobErr != nil {
		log.Warn("Job failed",
			zap.String("error_type", errorType),
			zap.Error(jobErr),
			zap.Duration("took", now.Sub(start)),
		)
	} else {
		log.Info("Job completed",
			zap.Int("entries", len(results)),
			zap.Duration("took", now.Sub(start)),
		)
	}

	for _, s := range r.sinks {
		if err := s.JobFinished(ctx, snapshot); err != nil {
			log.Warn("Result sink failed", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}
