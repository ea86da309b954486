package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	contractsdb "mail-summary-service/contracts/db"
	"mail-summary-service/pkg/metrics"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS summary_jobs (
    job_id      TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    entry_count INT  NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS email_summaries (
    job_id   TEXT NOT NULL REFERENCES summary_jobs(job_id) ON DELETE CASCADE,
    position INT  NOT NULL,
    sender   TEXT NOT NULL,
    subject  TEXT NOT NULL,
    bullets  TEXT[] NOT NULL,
    PRIMARY KEY (job_id, position)
);
`

// SummaryRepository 任务结果归档，只写不读（轮询接口不走数据库）
type SummaryRepository struct {
	db *pgxpool.Pool
}

func NewSummaryRepository(db *pgxpool.Pool) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// EnsureSchema creates the archive tables when missing.
func (r *SummaryRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure summary schema: %w", err)
	}
	return nil
}

// SaveJob 在一个事务里写入任务和它的摘要条目；同一 job_id 重复写入时覆盖
func (r *SummaryRepository) SaveJob(ctx context.Context, job contractsdb.SummaryJob, entries []contractsdb.EmailSummary) error {
	start := time.Now()
	defer func() {
		metrics.RecordDBQueryDuration("save_job", "summary_jobs", time.Since(start))
	}()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO summary_jobs (job_id, status, error, entry_count, created_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (job_id) DO UPDATE
        SET status = EXCLUDED.status,
            error = EXCLUDED.error,
            entry_count = EXCLUDED.entry_count,
            finished_at = EXCLUDED.finished_at
    `, job.JobID, job.Status, job.Error, job.EntryCount, job.CreatedAt, job.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert summary job: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM email_summaries WHERE job_id = $1`, job.JobID); err != nil {
		return fmt.Errorf("clear email summaries: %w", err)
	}

	if len(entries) > 0 {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
                INSERT INTO email_summaries (job_id, position, sender, subject, bullets)
                VALUES ($1, $2, $3, $4, $5)
            `, e.JobID, e.Position, e.Sender, e.Subject, e.Bullets)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert email summaries: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
