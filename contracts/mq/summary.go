package mq

import "time"

// Routing keys，发布到 summary.events topic exchange
const (
	RoutingKeySummaryCompleted = "summary.job.completed"
	RoutingKeySummaryFailed    = "summary.job.failed"
)

// SummaryEntry 单封邮件的摘要（事件里的结构，与内部模型解耦）
type SummaryEntry struct {
	Sender  string   `json:"sender"`
	Subject string   `json:"subject"`
	Summary []string `json:"summary"`
}

// SummaryJobCompletedPayload 任务成功结束
type SummaryJobCompletedPayload struct {
	JobID       string         `json:"job_id"`
	EntryCount  int            `json:"entry_count"`
	Results     []SummaryEntry `json:"results"`
	SubmittedAt time.Time      `json:"submitted_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// SummaryJobFailedPayload 任务失败
type SummaryJobFailedPayload struct {
	JobID       string    `json:"job_id"`
	Error       string    `json:"error"`
	SubmittedAt time.Time `json:"submitted_at"`
	FailedAt    time.Time `json:"failed_at"`
}
