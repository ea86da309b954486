package sink

import (
	"context"
	"fmt"

	contractsdb "mail-summary-service/contracts/db"
	"mail-summary-service/internal/model"
)

// Archiver is satisfied by *repository.SummaryRepository.
type Archiver interface {
	SaveJob(ctx context.Context, job contractsdb.SummaryJob, entries []contractsdb.EmailSummary) error
}

// ArchiveSink 把终态任务写入 Postgres 做审计留存
type ArchiveSink struct {
	archiver Archiver
}

func NewArchiveSink(archiver Archiver) *ArchiveSink {
	return &ArchiveSink{archiver: archiver}
}

func (s *ArchiveSink) Name() string { return "postgres" }

func (s *ArchiveSink) JobFinished(ctx context.Context, job model.Job) error {
	if !job.Status.Terminal() {
		return fmt.Errorf("job %s is not finished (status %q)", job.ID, job.Status)
	}

	row := contractsdb.SummaryJob{
		JobID:      job.ID,
		Status:     string(job.Status),
		Error:      job.Error,
		EntryCount: len(job.Results),
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.UpdatedAt,
	}

	entries := make([]contractsdb.EmailSummary, 0, len(job.Results))
	for i, e := range job.Results {
		bullets := e.Summary
		if bullets == nil {
			bullets = []string{}
		}
		entries = append(entries, contractsdb.EmailSummary{
			JobID:    job.ID,
			Position: i,
			Sender:   e.Sender,
			Subject:  e.Subject,
			Bullets:  bullets,
		})
	}

	if err := s.archiver.SaveJob(ctx, row, entries); err != nil {
		return fmt.Errorf("archive job %s: %w", job.ID, err)
	}
	return nil
}
