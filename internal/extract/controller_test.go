package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aidecameron/gifcut/internal/domain/entity"
	"github.com/aidecameron/gifcut/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type batchCall struct {
	start, end int
	maxDim     int
}

// stubCodec writes zero-padded artifact files the way gifsicle does, so the
// controller's rename pass is exercised on every batch.
type stubCodec struct {
	mu         sync.Mutex
	frameCount int
	batchDelay time.Duration
	calls      []batchCall
}

func (s *stubCodec) recorded() []batchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]batchCall(nil), s.calls...)
}

func (s *stubCodec) Metadata(ctx context.Context, path string) (*port.Metadata, error) {
	return &port.Metadata{FrameCount: s.frameCount, Width: 64, Height: 64}, nil
}

func (s *stubCodec) Stats(ctx context.Context, path string) (*entity.GifStats, error) {
	return &entity.GifStats{FrameCount: s.frameCount}, nil
}

func (s *stubCodec) Explode(ctx context.Context, input, outputPrefix string, start, end int) error {
	return s.explode(outputPrefix, start, end, 0)
}

func (s *stubCodec) ExplodeResized(ctx context.Context, input, outputPrefix string, start, end, maxDim int) error {
	return s.explode(outputPrefix, start, end, maxDim)
}

func (s *stubCodec) explode(outputPrefix string, start, end, maxDim int) error {
	time.Sleep(s.batchDelay)
	s.mu.Lock()
	s.calls = append(s.calls, batchCall{start: start, end: end, maxDim: maxDim})
	s.mu.Unlock()
	for i := start; i <= end; i++ {
		if err := os.WriteFile(fmt.Sprintf("%s.%04d", outputPrefix, i), []byte("GIF89a"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubCodec) ReduceColors(context.Context, string, string, int) error { return nil }
func (s *stubCodec) Unoptimize(context.Context, string, string) error        { return nil }
func (s *stubCodec) SelectFrames(context.Context, string, string, []int) error {
	return nil
}
func (s *stubCodec) ApplyDelays(context.Context, string, string, []time.Duration) error {
	return nil
}
func (s *stubCodec) AssembleFrames(context.Context, []string, []time.Duration, int, string) error {
	return nil
}
func (s *stubCodec) DeleteFrames(context.Context, string, string, []int) error { return nil }
func (s *stubCodec) Resize(context.Context, string, string, int, int, string, bool) error {
	return nil
}
func (s *stubCodec) Optimize(context.Context, string, string) error { return nil }

func testConfig(t *testing.T, batchSize int) Config {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "unoptimized.gif")
	restored := filepath.Join(dir, "color_restored.gif")
	require.NoError(t, os.WriteFile(src, []byte("GIF89a"), 0o644))
	require.NoError(t, os.WriteFile(restored, []byte("GIF89a"), 0o644))

	return Config{
		SourcePath:        src,
		ColorRestoredPath: restored,
		OutputDir:         filepath.Join(dir, "frames"),
		Prefix:            "frame",
		BatchSize:         batchSize,
		PollInterval:      2 * time.Millisecond,
		Throttle:          0,
	}
}

func TestStartRequiresPrecursors(t *testing.T) {
	codec := &stubCodec{frameCount: 10}
	c := New(KindFullFrames, codec, port.NopSink{}, zap.NewNop())

	cfg := testConfig(t, 100)
	cfg.SourcePath = filepath.Join(t.TempDir(), "missing.gif")

	err := c.Start(context.Background(), cfg)
	assert.ErrorIs(t, err, entity.ErrPrecursorMissing)
	assert.Equal(t, StateIdle, c.State())
}

func TestRunProcessesBatchesAndRenamesArtifacts(t *testing.T) {
	codec := &stubCodec{frameCount: 250}
	c := New(KindFullFrames, codec, port.NopSink{}, zap.NewNop())

	cfg := testConfig(t, 100)
	require.NoError(t, c.Start(context.Background(), cfg))
	c.Wait()

	assert.Equal(t, StateDone, c.State())
	assert.Equal(t, []batchCall{
		{start: 0, end: 99},
		{start: 100, end: 199},
		{start: 200, end: 249},
	}, codec.recorded())

	completed, total := c.Progress()
	assert.Equal(t, 250, completed)
	assert.Equal(t, 250, total)

	// Every artifact has its canonical unpadded name.
	for _, i := range []int{0, 7, 99, 100, 249} {
		assert.FileExists(t, filepath.Join(cfg.OutputDir, fmt.Sprintf("frame.%d", i)))
	}
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "frame.0007"))
}

func TestRunSkipsCompletedBatches(t *testing.T) {
	codec := &stubCodec{frameCount: 200}
	c := New(KindFullFrames, codec, port.NopSink{}, zap.NewNop())

	cfg := testConfig(t, 100)
	// A previous run already produced the first batch.
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o755))
	for i := 0; i < 100; i++ {
		require.NoError(t, os.WriteFile(
			filepath.Join(cfg.OutputDir, fmt.Sprintf("frame.%d", i)), []byte("GIF89a"), 0o644))
	}

	require.NoError(t, c.Start(context.Background(), cfg))
	c.Wait()

	assert.Equal(t, StateDone, c.State())
	assert.Equal(t, []batchCall{{start: 100, end: 199}}, codec.recorded())
}

func TestRunFullyExtractedIsNoop(t *testing.T) {
	codec := &stubCodec{frameCount: 50}
	c := New(KindPreviews, codec, port.NopSink{}, zap.NewNop())

	cfg := testConfig(t, 100)
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o755))
	for i := 0; i < 50; i++ {
		require.NoError(t, os.WriteFile(
			filepath.Join(cfg.OutputDir, fmt.Sprintf("frame.%d", i)), []byte("GIF89a"), 0o644))
	}

	require.NoError(t, c.Start(context.Background(), cfg))
	c.Wait()

	assert.Equal(t, StateDone, c.State())
	assert.Empty(t, codec.recorded())

	completed, total := c.Progress()
	assert.Equal(t, 50, completed)
	assert.Equal(t, 50, total)
}

func TestPreviewsUseResizedExplode(t *testing.T) {
	codec := &stubCodec{frameCount: 10}
	c := New(KindPreviews, codec, port.NopSink{}, zap.NewNop())

	cfg := testConfig(t, 100)
	cfg.MaxPreview = 120
	require.NoError(t, c.Start(context.Background(), cfg))
	c.Wait()

	calls := codec.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, 120, calls[0].maxDim)
}

func TestSecondStartWhileRunningFails(t *testing.T) {
	codec := &stubCodec{frameCount: 500, batchDelay: 20 * time.Millisecond}
	c := New(KindFullFrames, codec, port.NopSink{}, zap.NewNop())

	cfg := testConfig(t, 50)
	require.NoError(t, c.Start(context.Background(), cfg))

	err := c.Start(context.Background(), cfg)
	assert.ErrorIs(t, err, entity.ErrAlreadyRunning)

	c.Cancel()
}

func TestPauseThenCancelJoinsWorker(t *testing.T) {
	codec := &stubCodec{frameCount: 1000, batchDelay: 10 * time.Millisecond}
	c := New(KindFullFrames, codec, port.NopSink{}, zap.NewNop())

	cfg := testConfig(t, 50)
	require.NoError(t, c.Start(context.Background(), cfg))

	time.Sleep(25 * time.Millisecond)
	c.Pause()
	assert.Equal(t, StatePaused, c.State())

	batchesAtPause := len(codec.recorded())

	// Cancel must unblock the paused worker and wait for it to exit.
	done := make(chan struct{})
	go func() {
		c.Cancel()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel did not return")
	}

	assert.Equal(t, StateDone, c.State())
	completed, total := c.Progress()
	assert.Less(t, completed, total)

	// At most the batch in flight when the pause landed completed after it.
	assert.LessOrEqual(t, len(codec.recorded()), batchesAtPause+1)
}

func TestResumeContinuesAfterPause(t *testing.T) {
	codec := &stubCodec{frameCount: 150, batchDelay: 5 * time.Millisecond}
	c := New(KindFullFrames, codec, port.NopSink{}, zap.NewNop())

	cfg := testConfig(t, 50)
	require.NoError(t, c.Start(context.Background(), cfg))

	time.Sleep(8 * time.Millisecond)
	c.Pause()
	c.Resume()
	c.Wait()

	assert.Equal(t, StateDone, c.State())
	completed, total := c.Progress()
	assert.Equal(t, total, completed)
}
