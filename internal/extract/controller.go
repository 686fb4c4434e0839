// Package extract runs long, resumable frame extraction jobs in fixed-size
// batches, honoring pause/resume/cancel signals from a controlling thread.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aidecameron/gifcut/internal/domain/entity"
	"github.com/aidecameron/gifcut/internal/domain/port"
	"go.uber.org/zap"
)

// Kind selects full-resolution or thumbnail extraction. The two kinds run
// as independent controllers with independent flags; pausing one does not
// pause the other.
type Kind string

const (
	KindFullFrames Kind = "fullframes"
	KindPreviews   Kind = "previews"
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCancelling
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCancelling:
		return "cancelling"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type Config struct {
	// SourcePath is the unoptimized precursor the batches explode from.
	SourcePath string
	// ColorRestoredPath must also exist before extraction may start.
	ColorRestoredPath string
	OutputDir         string
	// Prefix names artifacts Prefix.<index>, unpadded.
	Prefix    string
	BatchSize int
	// MaxPreview bounds thumbnail dimensions; ignored for full frames.
	MaxPreview int
	// PollInterval is how often the pause loop re-checks its flags.
	PollInterval time.Duration
	// Throttle is the fixed delay between batches.
	Throttle time.Duration
}

// Controller is a state machine over one extraction job. Flags and the
// worker handle are the only cross-goroutine state; the mutex is never held
// across a codec invocation.
type Controller struct {
	kind  Kind
	codec port.FrameCodec
	sink  port.ProgressSink
	log   *zap.Logger

	mu        sync.Mutex
	state     State
	paused    bool
	cancelled bool
	completed int
	total     int
	done      chan struct{}
}

func New(kind Kind, codec port.FrameCodec, sink port.ProgressSink, log *zap.Logger) *Controller {
	return &Controller{
		kind:  kind,
		codec: codec,
		sink:  sink,
		log:   log.With(zap.String("extract_kind", string(kind))),
		state: StateIdle,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Progress reports completed and total units; both monotonically
// non-decreasing within one run.
func (c *Controller) Progress() (completed, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed, c.total
}

// Start begins a new run on a background goroutine. It fails if a run is
// active or the precursor artifacts are missing, and resets the
// pause/cancel flags and progress counters otherwise.
func (c *Controller) Start(ctx context.Context, cfg Config) error {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Throttle < 0 {
		cfg.Throttle = 0
	}

	for _, p := range []string{cfg.ColorRestoredPath, cfg.SourcePath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("%w: %s", entity.ErrPrecursorMissing, p)
		}
	}

	meta, err := c.codec.Metadata(ctx, cfg.ColorRestoredPath)
	if err != nil {
		return err
	}
	if meta.FrameCount == 0 {
		return fmt.Errorf("%w: source reports zero frames", entity.ErrPrecursorMissing)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	c.mu.Lock()
	switch c.state {
	case StateRunning, StatePaused, StateCancelling:
		c.mu.Unlock()
		return fmt.Errorf("%w: %s extraction is %s", entity.ErrAlreadyRunning, c.kind, c.state)
	}
	c.state = StateRunning
	c.paused = false
	c.cancelled = false
	c.completed = 0
	c.total = meta.FrameCount
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		err := c.run(ctx, cfg, meta.FrameCount)

		c.mu.Lock()
		defer c.mu.Unlock()
		switch {
		case err != nil:
			c.state = StateFailed
		default:
			// Cancelled runs also land here: no batch after the flag was
			// observed, and the job is finished from the caller's view.
			c.state = StateDone
		}
		if err != nil {
			c.log.Error("extraction failed", zap.Error(err))
			c.sink.Emit(ctx, port.Progress{
				Stage:   port.StageError,
				Message: fmt.Sprintf("%s extraction failed", c.kind),
				Details: err.Error(),
			})
		}
	}()

	return nil
}

// Pause suspends the worker between batches. Takes effect within one batch.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning {
		c.paused = true
		c.state = StatePaused
	}
}

func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	if c.state == StatePaused {
		c.state = StateRunning
	}
}

// Cancel signals the worker and blocks until it has exited. No batch starts
// after Cancel returns; the bound is the current batch plus one poll
// interval.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	if c.state == StateRunning || c.state == StatePaused {
		c.state = StateCancelling
	}
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Wait blocks until the current run finishes, for any reason.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Controller) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *Controller) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Controller) setCompleted(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > c.completed {
		c.completed = n
	}
}

func (c *Controller) stage() port.Stage {
	if c.kind == KindPreviews {
		return port.StagePreviews
	}
	return port.StageFullFrames
}

func (c *Controller) run(ctx context.Context, cfg Config, totalFrames int) error {
	// Already fully extracted: the artifacts are the checkpoint.
	if countExisting(cfg.OutputDir, cfg.Prefix, totalFrames) == totalFrames {
		c.setCompleted(totalFrames)
		c.sink.Emit(ctx, port.Progress{Stage: c.stage(), Current: totalFrames, Total: totalFrames})
		return nil
	}

	current := 0
	for current < totalFrames {
		if c.isCancelled() || ctx.Err() != nil {
			c.log.Info("extraction cancelled", zap.Int("completed", current))
			return nil
		}
		for c.isPaused() {
			if c.isCancelled() || ctx.Err() != nil {
				c.log.Info("extraction cancelled while paused", zap.Int("completed", current))
				return nil
			}
			time.Sleep(cfg.PollInterval)
		}

		end := current + cfg.BatchSize - 1
		if end > totalFrames-1 {
			end = totalFrames - 1
		}

		if batchComplete(cfg.OutputDir, cfg.Prefix, current, end) {
			current = end + 1
			c.setCompleted(current)
			continue
		}

		prefix := filepath.Join(cfg.OutputDir, cfg.Prefix)
		var err error
		if c.kind == KindPreviews {
			err = c.codec.ExplodeResized(ctx, cfg.SourcePath, prefix, current, end, cfg.MaxPreview)
		} else {
			err = c.codec.Explode(ctx, cfg.SourcePath, prefix, current, end)
		}
		if err != nil {
			return fmt.Errorf("batch %d-%d: %w", current, end, err)
		}

		if missing := canonicalizeBatch(cfg.OutputDir, cfg.Prefix, current, end, c.log); missing > 0 {
			c.log.Warn("batch incomplete",
				zap.Int("start", current), zap.Int("end", end), zap.Int("missing", missing))
		}

		current = end + 1
		c.setCompleted(current)
		c.sink.Emit(ctx, port.Progress{Stage: c.stage(), Current: current, Total: totalFrames})

		time.Sleep(cfg.Throttle)
	}

	c.sink.Emit(ctx, port.Progress{Stage: c.stage(), Current: totalFrames, Total: totalFrames})
	return nil
}

func artifactPath(dir, prefix string, idx int) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%d", prefix, idx))
}

func countExisting(dir, prefix string, total int) int {
	n := 0
	for i := 0; i < total; i++ {
		if _, err := os.Stat(artifactPath(dir, prefix, i)); err == nil {
			n++
		}
	}
	return n
}

func batchComplete(dir, prefix string, start, end int) bool {
	for i := start; i <= end; i++ {
		if _, err := os.Stat(artifactPath(dir, prefix, i)); err != nil {
			return false
		}
	}
	return true
}

// canonicalizeBatch renames the codec's zero-padded artifact names
// (prefix.0042, prefix.042) to the canonical unpadded prefix.<index> form.
// Returns how many indices in the range ended up with no artifact.
func canonicalizeBatch(dir, prefix string, start, end int, log *zap.Logger) int {
	missing := 0
	for i := start; i <= end; i++ {
		target := artifactPath(dir, prefix, i)
		if _, err := os.Stat(target); err == nil {
			continue
		}

		renamed := false
		for _, pad := range []string{"%s.%04d", "%s.%03d"} {
			src := filepath.Join(dir, fmt.Sprintf(pad, prefix, i))
			if src == target {
				continue
			}
			if _, err := os.Stat(src); err != nil {
				continue
			}
			if err := os.Rename(src, target); err != nil {
				log.Warn("rename failed", zap.String("from", src), zap.String("to", target), zap.Error(err))
				continue
			}
			renamed = true
			break
		}
		if !renamed {
			missing++
		}
	}
	return missing
}
