package db

import "time"

// SummaryJob 表示 summary_jobs 表的一行
type SummaryJob struct {
	JobID      string    `json:"job_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	EntryCount int       `json:"entry_count"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// EmailSummary 表示 email_summaries 表的一行
type EmailSummary struct {
	JobID    string   `json:"job_id"`
	Position int      `json:"position"`
	Sender   string   `json:"sender"`
	Subject  string   `json:"subject"`
	Bullets  []string `json:"bullets"`
}
