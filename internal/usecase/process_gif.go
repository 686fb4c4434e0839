package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aidecameron/gifcut/internal/dedup"
	"github.com/aidecameron/gifcut/internal/domain/entity"
	"github.com/aidecameron/gifcut/internal/domain/port"
	"github.com/aidecameron/gifcut/internal/extract"
	"github.com/aidecameron/gifcut/internal/infra/metrics"
	"github.com/aidecameron/gifcut/internal/reduce"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProgressFactory binds a progress transport to one job.
type ProgressFactory interface {
	ForJob(jobID uuid.UUID) port.ProgressSink
}

type ProcessGifUseCase struct {
	repo        port.JobRepository
	storage     port.GifStorage
	codec       port.FrameCodec
	encoder     port.PixelEncoder
	zipper      port.Zipper
	publisher   port.StatusPublisher
	dlq         port.DLQPublisher
	notifier    port.FailureNotifier
	progress    ProgressFactory
	extractions *ExtractionManager
	logger      *zap.Logger
	cfg         ProcessGifConfig
}

type ProcessGifConfig struct {
	TempDir       string
	BatchSize     int
	MaxPreviewDim int
	PollInterval  time.Duration
	Throttle      time.Duration
}

func NewProcessGifUseCase(
	repo port.JobRepository,
	storage port.GifStorage,
	codec port.FrameCodec,
	encoder port.PixelEncoder,
	zipper port.Zipper,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	progress ProgressFactory,
	extractions *ExtractionManager,
	logger *zap.Logger,
	cfg ProcessGifConfig,
) *ProcessGifUseCase {
	return &ProcessGifUseCase{
		repo:        repo,
		storage:     storage,
		codec:       codec,
		encoder:     encoder,
		zipper:      zipper,
		publisher:   publisher,
		dlq:         dlq,
		notifier:    notifier,
		progress:    progress,
		extractions: extractions,
		logger:      logger,
		cfg:         cfg,
	}
}

// Execute handles one task message. A processing failure is terminal: the
// job is marked FAILED, the message goes to the DLQ, and the delivery is
// acked. Requeueing a GIF that failed once would just fail it again.
func (uc *ProcessGifUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessGifUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.GifTaskMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.gif_key", msg.GifKey),
		attribute.String("job.op", string(msg.Op)),
	)

	log := uc.logger.With(
		zap.String("job_id", msg.JobID.String()),
		zap.String("gif_key", msg.GifKey),
		zap.String("op", string(msg.Op)),
	)

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(msg.UserID, msg.GifKey, msg.Op, msg.FileSize)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	sink := uc.progress.ForJob(job.ID)

	switch msg.Op {
	case entity.OpDedup:
		err = uc.runDedup(ctx, job, msg, sink, log)
	case entity.OpReduceFPS:
		err = uc.runReduce(ctx, job, msg, log)
	case entity.OpExtract:
		err = uc.runExtract(ctx, job, msg, sink, log)
	case entity.OpResize:
		err = uc.runResize(ctx, job, msg, log)
	case entity.OpDeleteFrames:
		err = uc.runDelete(ctx, job, msg, log)
	case entity.OpSlice:
		err = uc.runSlice(ctx, job, msg, log)
	default:
		err = fmt.Errorf("%w: unknown op %q", entity.ErrInvalidParameter, msg.Op)
	}
	if err != nil {
		uc.handleFailure(ctx, job, msg, rawMsg, err, sink, log)
		return nil
	}

	if job.Status == entity.JobStatusCompleted {
		metrics.JobsProcessedTotal.WithLabelValues(string(msg.Op), "completed").Inc()
	}
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *ProcessGifUseCase) runDedup(ctx context.Context, job *entity.Job, msg entity.GifTaskMessage, sink port.ProgressSink, log *zap.Logger) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input.gif")
	if err := uc.download(ctx, msg.GifKey, inputPath, log); err != nil {
		return err
	}

	cfg := dedup.Config{Quality: 90, Similarity: 90, Colors: 255}
	if p := msg.Dedup; p != nil {
		cfg = dedup.Config{Quality: p.Quality, Similarity: p.Similarity, Colors: p.Colors, UsePalette: p.UsePalette}
	}

	dedupStart := time.Now()
	ctx2, spanDd := tracer.Start(ctx, "dedup_pipeline")
	outputPath := filepath.Join(workDir, "output.gif")
	pipeline := dedup.New(uc.codec, uc.encoder, sink, log)
	res, err := pipeline.Run(ctx2, inputPath, outputPath, cfg)
	spanDd.End()
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	metrics.JobProcessingDuration.WithLabelValues("dedup").Observe(time.Since(dedupStart).Seconds())
	metrics.FramesMergedTotal.Add(float64(res.TotalFrames - res.UniqueFrames))
	if saved := res.InputSize - res.OutputSize; saved > 0 {
		metrics.BytesSavedTotal.Add(float64(saved))
	}

	resultKey := fmt.Sprintf("%s/dedup_%s.gif", msg.UserID, job.ID.String())
	if err := uc.upload(ctx, resultKey, outputPath, "image/gif", log); err != nil {
		return err
	}

	job.MarkCompleted(resultKey, res.TotalFrames, res.UniqueFrames, res.TotalDuration.Seconds())
	if err := uc.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("update job completed: %w", err)
	}
	uc.publishStatus(ctx, job, uc.resultStats(ctx, outputPath), log)

	log.Info("dedup job completed",
		zap.Int("total_frames", res.TotalFrames),
		zap.Int("unique_frames", res.UniqueFrames),
		zap.Int64("input_size", res.InputSize),
		zap.Int64("output_size", res.OutputSize),
	)
	return nil
}

func (uc *ProcessGifUseCase) runReduce(ctx context.Context, job *entity.Job, msg entity.GifTaskMessage, log *zap.Logger) error {
	if msg.Reduce == nil {
		return fmt.Errorf("%w: reduce_fps task without parameters", entity.ErrInvalidParameter)
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

	meta, err := uc.codec.Metadata(ctx, inputPath)
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}

	plan, err := reduce.Reduce(meta.Delays, reduce.Spec{
		KeepInterval:   msg.Reduce.KeepInterval,
		DelayThreshold: time.Duration(msg.Reduce.DelayThresholdMs) * time.Millisecond,
		MaxDelay:       time.Duration(msg.Reduce.MaxDelayMs) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("reduce plan: %w", err)
	}

	selectedPath := filepath.Join(workDir, "selected.gif")
	if err := uc.codec.SelectFrames(ctx, inputPath, selectedPath, plan.KeptIndices); err != nil {
		return fmt.Errorf("select frames: %w", err)
	}
	outputPath := filepath.Join(workDir, "output.gif")
	if err := uc.codec.ApplyDelays(ctx, selectedPath, outputPath, plan.Delays); err != nil {
		return fmt.Errorf("apply delays: %w", err)
	}

	resultKey := fmt.Sprintf("%s/reduced_%s.gif", msg.UserID, job.ID.String())
	if err := uc.upload(ctx, resultKey, outputPath, "image/gif", log); err != nil {
		return err
	}

	job.MarkCompleted(resultKey, len(meta.Delays), len(plan.KeptIndices), plan.TotalDuration().Seconds())
	if err := uc.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("update job completed: %w", err)
	}
	uc.publishStatus(ctx, job, uc.resultStats(ctx, outputPath), log)

	log.Info("reduce job completed",
		zap.Int("source_frames", len(meta.Delays)),
		zap.Int("kept_frames", len(plan.KeptIndices)),
	)
	return nil
}

func (uc *ProcessGifUseCase) runExtract(ctx context.Context, job *entity.Job, msg entity.GifTaskMessage, sink port.ProgressSink, log *zap.Logger) error {
	// Extraction uses a stable workdir that survives failures, so a
	// resubmitted job resumes from the artifacts already on disk.
	workDir := filepath.Join(uc.cfg.TempDir, "extract_"+job.ID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}

	inputPath := filepath.Join(workDir, "input.gif")
	if _, err := os.Stat(inputPath); err != nil {
		if err := uc.download(ctx, msg.GifKey, inputPath, log); err != nil {
			return err
		}
	}

	pre, err := PreparePrecursors(ctx, uc.codec, inputPath)
	if err != nil {
		return err
	}

	batchSize := uc.cfg.BatchSize
	maxPreview := uc.cfg.MaxPreviewDim
	if p := msg.Extract; p != nil {
		if p.BatchSize > 0 {
			batchSize = p.BatchSize
		}
		if p.MaxPreview > 0 {
			maxPreview = p.MaxPreview
		}
	}

	full := extract.New(extract.KindFullFrames, uc.codec, sink, log)
	previews := extract.New(extract.KindPreviews, uc.codec, sink, log)
	if err := uc.extractions.Begin(full, previews); err != nil {
		return err
	}
	defer uc.extractions.Finish()

	if err := full.Start(ctx, extract.Config{
		SourcePath:        pre.Unoptimized,
		ColorRestoredPath: pre.ColorRestored,
		OutputDir:         filepath.Join(workDir, "frames"),
		Prefix:            "frame",
		BatchSize:         batchSize,
		PollInterval:      uc.cfg.PollInterval,
		Throttle:          uc.cfg.Throttle,
	}); err != nil {
		return fmt.Errorf("start full-frame extraction: %w", err)
	}
	if err := previews.Start(ctx, extract.Config{
		SourcePath:        pre.Unoptimized,
		ColorRestoredPath: pre.ColorRestored,
		OutputDir:         filepath.Join(workDir, "previews"),
		Prefix:            "preview",
		BatchSize:         batchSize,
		MaxPreview:        maxPreview,
		PollInterval:      uc.cfg.PollInterval,
		Throttle:          uc.cfg.Throttle,
	}); err != nil {
		full.Cancel()
		return fmt.Errorf("start preview extraction: %w", err)
	}

	full.Wait()
	previews.Wait()

	if full.State() == extract.StateFailed || previews.State() == extract.StateFailed {
		return fmt.Errorf("extraction failed, artifacts kept in %s", workDir)
	}

	fullDone, total := full.Progress()
	prevDone, _ := previews.Progress()
	metrics.FramesExtractedTotal.WithLabelValues("fullframes").Add(float64(fullDone))
	metrics.FramesExtractedTotal.WithLabelValues("previews").Add(float64(prevDone))

	if fullDone < total || prevDone < total {
		job.MarkCancelled()
		if err := uc.repo.Update(ctx, job); err != nil {
			return fmt.Errorf("update job cancelled: %w", err)
		}
		uc.publishStatus(ctx, job, nil, log)
		log.Info("extraction cancelled",
			zap.Int("full_frames", fullDone),
			zap.Int("previews", prevDone),
			zap.Int("total", total),
		)
		return nil
	}

	zipPath := filepath.Join(workDir, "artifacts.zip")
	artifacts := collectArtifacts(workDir, total)
	if err := uc.zipper.CreateZip(ctx, workDir, artifacts, zipPath); err != nil {
		return fmt.Errorf("create zip: %w", err)
	}

	resultKey := fmt.Sprintf("%s/frames_%s.zip", msg.UserID, job.ID.String())
	if err := uc.upload(ctx, resultKey, zipPath, "application/zip", log); err != nil {
		return err
	}

	var duration float64
	if meta, err := uc.codec.Metadata(ctx, pre.ColorRestored); err == nil {
		var totalDelay time.Duration
		for _, d := range meta.Delays {
			totalDelay += d
		}
		duration = totalDelay.Seconds()
	}

	job.MarkCompleted(resultKey, total, 0, duration)
	if err := uc.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("update job completed: %w", err)
	}
	uc.publishStatus(ctx, job, nil, log)

	os.RemoveAll(workDir)

	log.Info("extract job completed",
		zap.Int("frames", total),
		zap.String("result_key", resultKey),
	)
	return nil
}

func collectArtifacts(workDir string, total int) []string {
	paths := make([]string, 0, total*2)
	for i := 0; i < total; i++ {
		paths = append(paths,
			filepath.Join(workDir, "frames", fmt.Sprintf("frame.%d", i)),
			filepath.Join(workDir, "previews", fmt.Sprintf("preview.%d", i)),
		)
	}
	return paths
}

// resultStats reads timing stats for a produced GIF. Stats are advisory;
// a read failure drops them from the status message instead of failing the
// job.
func (uc *ProcessGifUseCase) resultStats(ctx context.Context, path string) *entity.GifStats {
	stats, err := uc.codec.Stats(ctx, path)
	if err != nil {
		return nil
	}
	return stats
}

func (uc *ProcessGifUseCase) download(ctx context.Context, gifKey, destPath string, log *zap.Logger) error {
	tracer := otel.Tracer("usecase")
	start := time.Now()
	ctx, span := tracer.Start(ctx, "download_gif")
	defer span.End()

	if err := uc.storage.DownloadGif(ctx, gifKey, destPath); err != nil {
		log.Error("failed to download gif", zap.Error(err))
		return fmt.Errorf("download %s: %w", gifKey, err)
	}
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(start).Seconds())
	return nil
}

func (uc *ProcessGifUseCase) upload(ctx context.Context, objectKey, srcPath, contentType string, log *zap.Logger) error {
	tracer := otel.Tracer("usecase")
	start := time.Now()
	ctx, span := tracer.Start(ctx, "upload_result")
	defer span.End()

	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open result %s: %w", srcPath, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat result %s: %w", srcPath, err)
	}
	if err := uc.storage.UploadResult(ctx, objectKey, f, st.Size(), contentType); err != nil {
		log.Error("failed to upload result", zap.Error(err))
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	metrics.JobProcessingDuration.WithLabelValues("upload").Observe(time.Since(start).Seconds())
	return nil
}

func (uc *ProcessGifUseCase) handleFailure(ctx context.Context, job *entity.Job, msg entity.GifTaskMessage, rawMsg []byte, jobErr error, sink port.ProgressSink, log *zap.Logger) {
	log.Error("job failed", zap.Error(jobErr))

	sink.Emit(ctx, port.Progress{Stage: port.StageError, Message: "job failed", Details: jobErr.Error()})

	job.MarkFailed(jobErr.Error())
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to FAILED", zap.Error(err))
	}

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, jobErr.Error())
	uc.publishStatus(ctx, job, nil, log)
	metrics.JobsProcessedTotal.WithLabelValues(string(msg.Op), "failed").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.GifKey, jobErr.Error())
	}
}

func (uc *ProcessGifUseCase) publishStatus(ctx context.Context, job *entity.Job, stats *entity.GifStats, log *zap.Logger) {
	statusMsg := entity.GifStatusMessage{
		JobID:           job.ID,
		UserID:          job.UserID,
		Status:          job.Status,
		Op:              job.Op,
		GifKey:          job.GifKey,
		ResultKey:       job.ResultKey,
		FrameCount:      job.FrameCount,
		UniqueFrames:    job.UniqueFrames,
		DurationSeconds: job.DurationSeconds,
		ErrorMessage:    job.ErrorMessage,
		Stats:           stats,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
