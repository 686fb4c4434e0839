package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aidecameron/gifcut/internal/domain/entity"
	"go.uber.org/zap"
)

// Simple single-pass edits: download, run one or two codec passes, upload.
// They share the dedup/reduce workdir convention of a temp dir per job.

func (uc *ProcessGifUseCase) runResize(ctx context.Context, job *entity.Job, msg entity.GifTaskMessage, log *zap.Logger) error {
	if msg.Resize == nil {
		return fmt.Errorf("%w: resize task without parameters", entity.ErrInvalidParameter)
	}

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input.gif")
	if err := uc.download(ctx, msg.GifKey, inputPath, log); err != nil {
		return err
	}

	outputPath := filepath.Join(workDir, "output.gif")
	p := msg.Resize
	if err := uc.codec.Resize(ctx, inputPath, outputPath, p.Width, p.Height, p.Method, p.Optimize); err != nil {
		return fmt.Errorf("resize: %w", err)
	}

	return uc.finishEdit(ctx, job, msg, outputPath, fmt.Sprintf("%s/resized_%s.gif", msg.UserID, job.ID.String()), log)
}

func (uc *ProcessGifUseCase) runDelete(ctx context.Context, job *entity.Job, msg entity.GifTaskMessage, log *zap.Logger) error {
	if msg.Delete == nil || len(msg.Delete.Frames) == 0 {
		return fmt.Errorf("%w: delete_frames task without frame list", entity.ErrInvalidParameter)
	}

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input.gif")
	if err := uc.download(ctx, msg.GifKey, inputPath, log); err != nil {
		return err
	}

	outputPath := filepath.Join(workDir, "output.gif")
	if err := uc.codec.DeleteFrames(ctx, inputPath, outputPath, msg.Delete.Frames); err != nil {
		return fmt.Errorf("delete frames: %w", err)
	}

	return uc.finishEdit(ctx, job, msg, outputPath, fmt.Sprintf("%s/trimmed_%s.gif", msg.UserID, job.ID.String()), log)
}

func (uc *ProcessGifUseCase) runSlice(ctx context.Context, job *entity.Job, msg entity.GifTaskMessage, log *zap.Logger) error {
	if msg.Slice == nil || len(msg.Slice.Frames) == 0 {
		return fmt.Errorf("%w: slice task without frame list", entity.ErrInvalidParameter)
	}
	if n := len(msg.Slice.DelaysMs); n > 0 && n != len(msg.Slice.Frames) {
		return fmt.Errorf("%w: %d delays for %d sliced frames", entity.ErrInvalidParameter, n, len(msg.Slice.Frames))
	}

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input.gif")
	if err := uc.download(ctx, msg.GifKey, inputPath, log); err != nil {
		return err
	}

	outputPath := filepath.Join(workDir, "output.gif")
	if err := uc.codec.SelectFrames(ctx, inputPath, outputPath, msg.Slice.Frames); err != nil {
		return fmt.Errorf("slice frames: %w", err)
	}

	if len(msg.Slice.DelaysMs) > 0 {
		delays := make([]time.Duration, len(msg.Slice.DelaysMs))
		for i, ms := range msg.Slice.DelaysMs {
			delays[i] = time.Duration(ms) * time.Millisecond
		}
		retimed := filepath.Join(workDir, "retimed.gif")
		if err := uc.codec.ApplyDelays(ctx, outputPath, retimed, delays); err != nil {
			return fmt.Errorf("apply slice delays: %w", err)
		}
		outputPath = retimed
	}

	return uc.finishEdit(ctx, job, msg, outputPath, fmt.Sprintf("%s/slice_%s.gif", msg.UserID, job.ID.String()), log)
}

// finishEdit uploads the edited GIF, completes the job with its resulting
// frame count, and publishes the status with the result's stats.
func (uc *ProcessGifUseCase) finishEdit(ctx context.Context, job *entity.Job, msg entity.GifTaskMessage, outputPath, resultKey string, log *zap.Logger) error {
	if err := uc.upload(ctx, resultKey, outputPath, "image/gif", log); err != nil {
		return err
	}

	stats := uc.resultStats(ctx, outputPath)
	frameCount := 0
	var duration float64
	if stats != nil {
		frameCount = stats.FrameCount
		duration = stats.TotalDuration
	}

	job.MarkCompleted(resultKey, frameCount, 0, duration)
	if err := uc.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("update job completed: %w", err)
	}
	uc.publishStatus(ctx, job, stats, log)

	log.Info("edit job completed",
		zap.String("result_key", resultKey),
		zap.Int("frame_count", frameCount),
	)
	return nil
}
