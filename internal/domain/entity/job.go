package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// GifOp selects which operation the worker runs on a source GIF.
type GifOp string

const (
	OpDedup        GifOp = "dedup"
	OpReduceFPS    GifOp = "reduce_fps"
	OpExtract      GifOp = "extract"
	OpResize       GifOp = "resize"
	OpDeleteFrames GifOp = "delete_frames"
	OpSlice        GifOp = "slice"
)

type Job struct {
	ID              uuid.UUID
	UserID          string
	GifKey          string
	ResultKey       string
	Op              GifOp
	Status          JobStatus
	FrameCount      int
	UniqueFrames    int
	FileSize        int64
	DurationSeconds float64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

func NewJob(userID, gifKey string, op GifOp, fileSize int64) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New(),
		UserID:    userID,
		GifKey:    gifKey,
		Op:        op,
		FileSize:  fileSize,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(resultKey string, frameCount, uniqueFrames int, duration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ResultKey = resultKey
	j.FrameCount = frameCount
	j.UniqueFrames = uniqueFrames
	j.DurationSeconds = duration
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCancelled() {
	now := time.Now().UTC()
	j.Status = JobStatusCancelled
	j.UpdatedAt = now
	j.CompletedAt = &now
}
