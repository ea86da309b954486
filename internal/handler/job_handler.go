package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mail-summary-service/internal/jobstore"
	"mail-summary-service/internal/model"
	"mail-summary-service/pkg/logger"
)

// multipart 头部和边界的额外空间
const multipartOverhead = 1 << 20

// Launcher is satisfied by *runner.Runner.
type Launcher interface {
	Launch(ctx context.Context, id, emails string)
}

type JobHandler struct {
	store          jobstore.Store
	launcher       Launcher
	maxUploadBytes int64
	logger         *zap.Logger
	newID          func() string
}

func NewJobHandler(store jobstore.Store, launcher Launcher, maxUploadBytes int64, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		store:          store,
		launcher:       launcher,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
		newID:          uuid.NewString,
	}
}

// SubmitJob handles POST /submit_job
func (h *JobHandler) SubmitJob(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	if fh.Size > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		log.Error("Failed to open uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		log.Error("Failed to read uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "File decoding failed. Ensure it's a valid UTF-8 text file."})
		return
	}
	if int64(len(content)) > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}
	if !utf8.Valid(content) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File decoding failed. Ensure it's a valid UTF-8 text file."})
		return
	}

	id := h.newID()
	if err := h.store.Create(ctx, model.NewJob(id, time.Now())); err != nil {
		log.Error("Failed to create job", zap.String("job_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	h.launcher.Launch(ctx, id, string(content))

	log.Info("Job submitted",
		zap.String("job_id", id),
		zap.String("filename", fh.Filename),
		zap.Int("bytes", len(content)),
	)
	c.JSON(http.StatusAccepted, gin.H{"job_id": id})
}

// GetStatus handles GET /status/:job_id
//
// 终态结果只会返回一次：读取的同时删除记录，之后再查询返回 404。
func (h *JobHandler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("job_id")

	job, err := h.store.Take(ctx, id)
	if errors.Is(err, jobstore.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if err != nil {
		logger.WithTrace(ctx, h.logger).Error("Failed to load job", zap.String("job_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}

	switch job.Status {
	case model.JobStatusCompleted:
		results := job.Results
		if results == nil {
			results = []model.SummaryEntry{}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   job.Status,
			"progress": job.Progress,
			"results":  results,
		})
	case model.JobStatusFailed:
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":   job.Status,
			"progress": job.Progress,
			"error":    job.Error,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"status":   job.Status,
			"progress": job.Progress,
		})
	}
}
