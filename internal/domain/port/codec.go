package port

import (
	"context"
	"time"

	"github.com/aidecameron/gifcut/internal/domain/entity"
)

// Metadata describes a GIF as reported by the codec's info output.
type Metadata struct {
	FrameCount int
	Width      int
	Height     int
	Delays     []time.Duration
	Optimized  bool
}

// FrameCodec is the external GIF toolchain (gifsicle). All operations are
// synchronous and return a CodecError with the tool's diagnostic text on
// failure.
type FrameCodec interface {
	Metadata(ctx context.Context, path string) (*Metadata, error)

	// Stats summarizes a GIF's timing and size for reporting.
	Stats(ctx context.Context, path string) (*entity.GifStats, error)

	// ReduceColors rewrites input with at most colors palette entries.
	ReduceColors(ctx context.Context, input, output string, colors int) error

	// Unoptimize expands every frame to the full logical screen.
	Unoptimize(ctx context.Context, input, output string) error

	// Explode writes one single-frame GIF per frame in [start, end] using
	// outputPrefix; a negative start explodes the whole sequence. The codec
	// may zero-pad the emitted names.
	Explode(ctx context.Context, input, outputPrefix string, start, end int) error

	// ExplodeResized is Explode with each frame resized to fit maxDim.
	ExplodeResized(ctx context.Context, input, outputPrefix string, start, end, maxDim int) error

	// SelectFrames remuxes only the given frame indices, in order, without
	// re-encoding pixels.
	SelectFrames(ctx context.Context, input, output string, frames []int) error

	// ApplyDelays sets the display delay of frame i to delays[i].
	ApplyDelays(ctx context.Context, input, output string, delays []time.Duration) error

	// AssembleFrames concatenates single-frame GIF files into one animation
	// with the given per-frame delays, reduced to colors and optimized.
	AssembleFrames(ctx context.Context, framePaths []string, delays []time.Duration, colors int, output string) error

	// DeleteFrames removes the given frame indices from the sequence.
	DeleteFrames(ctx context.Context, input, output string, frames []int) error

	Resize(ctx context.Context, input, output string, width, height int, method string, optimize bool) error

	// Optimize rewrites input at the standard optimization level.
	Optimize(ctx context.Context, input, output string) error
}

// PixelEncoder re-encodes RGB frame images into a GIF (gifski). Lossy with
// respect to source pixels; quality and frame rate are encoder-driven.
type PixelEncoder interface {
	EncodeFrames(ctx context.Context, framePaths []string, output string, quality int, fps float64, width, height int) error
}
