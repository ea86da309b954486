package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLM 调用延迟（毫秒）
	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_latency_ms",
			Help:    "Summarization model call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"model", "status"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
	)

	// 提交的任务数
	JobSubmittedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "summary_job_submitted_count",
			Help: "Total number of summarization jobs submitted",
		},
	)

	// 结束的任务数
	JobFinishedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summary_job_finished_count",
			Help: "Total number of summarization jobs that reached a terminal state",
		},
		[]string{"status", "error_type"}, // status: completed, failed
	)

	// 正在运行的任务数
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "summary_jobs_in_flight",
			Help: "Number of summarization jobs currently running",
		},
	)

	// 任务耗时（秒）
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "summary_job_duration_seconds",
			Help:    "End-to-end summarization job duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4min
		},
		[]string{"status"},
	)

	// 每个任务包含的邮件数
	EmailsPerJob = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "summary_emails_per_job",
			Help:    "Number of emails found in an uploaded file",
			Buckets: prometheus.LinearBuckets(1, 5, 10),
		},
	)

	// 事件发布计数
	EventPublishedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summary_event_published_count",
			Help: "Total number of job events published to the message broker",
		},
		[]string{"routing_key", "status"},
	)
)

// RecordLLMCallLatency 记录 LLM 调用延迟
func RecordLLMCallLatency(model, status string, duration time.Duration) {
	LLMCallLatency.WithLabelValues(model, status).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}

// IncrementJobSubmitted 增加任务提交计数
func IncrementJobSubmitted() {
	JobSubmittedCount.Inc()
}

// RecordJobFinished 记录任务结束（状态、错误类型、耗时）
func RecordJobFinished(status, errorType string, duration time.Duration) {
	JobFinishedCount.WithLabelValues(status, errorType).Inc()
	JobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveEmailsPerJob 记录单个文件中的邮件数
func ObserveEmailsPerJob(n int) {
	EmailsPerJob.Observe(float64(n))
}

// IncrementEventPublished 增加事件发布计数
func IncrementEventPublished(routingKey, status string) {
	EventPublishedCount.WithLabelValues(routingKey, status).Inc()
}
