package model

import "time"

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal 是否为终态（completed / failed）
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SummaryEntry 单封邮件的摘要
type SummaryEntry struct {
	Sender  string   `json:"sender"`
	Subject string   `json:"subject"`
	Summary []string `json:"summary"`
}

// Job 一次上传对应的摘要任务
//
// Results 仅在 completed 时有值，Error 仅在 failed 时有值。
type Job struct {
	ID        string         `json:"id"`
	Status    JobStatus      `json:"status"`
	Progress  int            `json:"progress"`
	Results   []SummaryEntry `json:"results,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewJob 创建处于 processing、进度为 0 的任务
func NewJob(id string, now time.Time) Job {
	return Job{
		ID:        id,
		Status:    JobStatusProcessing,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone 返回深拷贝，调用方可以随意修改而不影响存储中的记录
func (j Job) Clone() Job {
	if j.Results == nil {
		return j
	}
	results := make([]SummaryEntry, len(j.Results))
	for i, e := range j.Results {
		results[i] = SummaryEntry{
			Sender:  e.Sender,
			Subject: e.Subject,
			Summary: append([]string(nil), e.Summary...),
		}
	}
	j.Results = results
	return j
}

// Complete 写入结果并进入 completed
func (j *Job) Complete(results []SummaryEntry, now time.Time) {
	j.Status = JobStatusCompleted
	j.Progress = 100
	j.Results = results
	j.Error = ""
	j.UpdatedAt = now
}

// Fail 写入错误并进入 failed
func (j *Job) Fail(msg string, now time.Time) {
	j.Status = JobStatusFailed
	j.Progress = 100
	j.Results = nil
	j.Error = msg
	j.UpdatedAt = now
}
