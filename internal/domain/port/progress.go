package port

import "context"

type Stage string

const (
	StageStarting      Stage = "starting"
	StageExtracting    Stage = "extracting"
	StageDeduplicating Stage = "deduplicating"
	StageProcessing    Stage = "processing"
	StageRebuilding    Stage = "rebuilding"
	StageComplete      Stage = "complete"
	StageError         Stage = "error"
	StageFullFrames    Stage = "fullframes"
	StagePreviews      Stage = "previews"
)

type Progress struct {
	Stage   Stage
	Message string
	Current int
	Total   int
	Details string
}

// ProgressSink receives progress notifications from long-running jobs.
// Emit is fire and forget: delivery failure must never abort the job.
type ProgressSink interface {
	Emit(ctx context.Context, p Progress)
}

// NopSink discards all progress events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Progress) {}
