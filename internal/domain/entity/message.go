package entity

import "github.com/google/uuid"

// GifTaskMessage is the inbound message from the gif.tasks queue.
type GifTaskMessage struct {
	JobID     uuid.UUID      `json:"job_id"`
	UserID    string         `json:"user_id"`
	GifKey    string         `json:"gif_key"`
	FileSize  int64          `json:"file_size"`
	UserEmail string         `json:"user_email"`
	Op        GifOp          `json:"op"`
	Dedup     *DedupParams   `json:"dedup,omitempty"`
	Reduce    *ReduceParams  `json:"reduce,omitempty"`
	Extract   *ExtractParams `json:"extract,omitempty"`
	Resize    *ResizeParams  `json:"resize,omitempty"`
	Delete    *DeleteParams  `json:"delete,omitempty"`
	Slice     *SliceParams   `json:"slice,omitempty"`
}

type DedupParams struct {
	Quality    int  `json:"quality"`
	Similarity int  `json:"similarity"`
	Colors     int  `json:"colors"`
	UsePalette bool `json:"use_palette"`
}

type ReduceParams struct {
	KeepInterval     int `json:"keep_interval"`
	DelayThresholdMs int `json:"delay_threshold_ms"`
	MaxDelayMs       int `json:"max_delay_ms"`
}

type ExtractParams struct {
	BatchSize  int `json:"batch_size,omitempty"`
	MaxPreview int `json:"max_preview,omitempty"`
}

type ResizeParams struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Method   string `json:"method,omitempty"` // "fit" keeps aspect ratio
	Optimize bool   `json:"optimize,omitempty"`
}

type DeleteParams struct {
	Frames []int `json:"frames"`
}

// SliceParams cuts a sub-animation: the listed source frames, in order,
// with optional replacement delays (parallel to Frames).
type SliceParams struct {
	Frames   []int `json:"frames"`
	DelaysMs []int `json:"delays_ms,omitempty"`
}

// GifStatusMessage is the outbound message published to the gif.status queue.
type GifStatusMessage struct {
	JobID           uuid.UUID `json:"job_id"`
	UserID          string    `json:"user_id"`
	Status          JobStatus `json:"status"`
	Op              GifOp     `json:"op"`
	GifKey          string    `json:"gif_key"`
	ResultKey       string    `json:"result_key,omitempty"`
	FrameCount      int       `json:"frame_count,omitempty"`
	UniqueFrames    int       `json:"unique_frames,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Stats           *GifStats `json:"stats,omitempty"`
}

// ExtractControlMessage pauses, resumes or cancels the running extraction
// workers. Cancel is acked only after both workers have stopped.
type ExtractControlMessage struct {
	Action string `json:"action"` // "pause" | "resume" | "cancel"
}

// ProgressEvent is published to the gif.progress queue while a job runs.
// Delivery is fire and forget; consumers must not rely on it for
// correctness.
type ProgressEvent struct {
	JobID   uuid.UUID `json:"job_id"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	Current int       `json:"current,omitempty"`
	Total   int       `json:"total,omitempty"`
	Details string    `json:"details,omitempty"`
}

// GifStats summarizes a GIF's timing as reported by the codec.
type GifStats struct {
	FrameCount    int      `json:"frame_count"`
	TotalDuration float64  `json:"total_duration"`
	AvgFPS        float64  `json:"avg_fps"`
	MinFPS        float64  `json:"min_fps"`
	MaxFPS        float64  `json:"max_fps"`
	FileSize      int64    `json:"file_size"`
	Mode1FPS      *float64 `json:"mode1_fps,omitempty"`
	Mode1Count    *int     `json:"mode1_count,omitempty"`
	Mode2FPS      *float64 `json:"mode2_fps,omitempty"`
	Mode2Count    *int     `json:"mode2_count,omitempty"`
}
