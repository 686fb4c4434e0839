package postgres

import (
	"context"
	"fmt"

	"github.com/aidecameron/gifcut/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO gif_jobs (
			id, user_id, gif_key, result_key, op, status,
			frame_count, unique_frames, file_size, duration_seconds,
			error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.GifKey, job.ResultKey, string(job.Op), string(job.Status),
		job.FrameCount, job.UniqueFrames, job.FileSize, job.DurationSeconds,
		job.ErrorMessage, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE gif_jobs SET
			status=$2, result_key=$3, frame_count=$4, unique_frames=$5,
			duration_seconds=$6, error_message=$7, updated_at=$8, completed_at=$9
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.ResultKey, job.FrameCount,
		job.UniqueFrames, job.DurationSeconds, job.ErrorMessage,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `
		SELECT id, user_id, gif_key, result_key, op, status,
			frame_count, unique_frames, file_size, duration_seconds,
			error_message, created_at, updated_at, completed_at
		FROM gif_jobs WHERE id=$1`

	job := &entity.Job{}
	var op, status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.GifKey, &job.ResultKey, &op, &status,
		&job.FrameCount, &job.UniqueFrames, &job.FileSize, &job.DurationSeconds,
		&job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Op = entity.GifOp(op)
	job.Status = entity.JobStatus(status)
	return job, nil
}
