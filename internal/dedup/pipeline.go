package dedup

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aidecameron/gifcut/internal/domain/entity"
	"github.com/aidecameron/gifcut/internal/domain/port"
	"go.uber.org/zap"
)

// defaultDelay is assumed for frames whose delay the codec did not report.
const defaultDelay = 100 * time.Millisecond

type Config struct {
	Quality    int // gifski quality, 1..100 (re-encode path only)
	Similarity int // similarity percentage, 0..100
	Colors     int // palette size for the rebuilt output, >= 2
	UsePalette bool
}

type Result struct {
	TotalFrames   int
	UniqueFrames  int
	TotalDuration time.Duration
	InputSize     int64
	OutputSize    int64
}

// Pipeline drives decode -> hash -> merge -> rebuild over a whole sequence,
// reporting staged progress through the sink. It owns no cross-call state;
// construct one per job.
type Pipeline struct {
	codec   port.FrameCodec
	encoder port.PixelEncoder
	sink    port.ProgressSink
	logger  *zap.Logger
}

func New(codec port.FrameCodec, encoder port.PixelEncoder, sink port.ProgressSink, logger *zap.Logger) *Pipeline {
	return &Pipeline{codec: codec, encoder: encoder, sink: sink, logger: logger}
}

func validate(cfg Config) error {
	if cfg.Quality < 1 || cfg.Quality > 100 {
		return fmt.Errorf("%w: quality must be in [1,100], got %d", entity.ErrInvalidParameter, cfg.Quality)
	}
	if cfg.Similarity < 0 || cfg.Similarity > 100 {
		return fmt.Errorf("%w: similarity must be in [0,100], got %d", entity.ErrInvalidParameter, cfg.Similarity)
	}
	if cfg.Colors < 2 {
		return fmt.Errorf("%w: colors must be at least 2, got %d", entity.ErrInvalidParameter, cfg.Colors)
	}
	return nil
}

func (p *Pipeline) emit(ctx context.Context, stage port.Stage, msg string, current, total int, details string) {
	p.sink.Emit(ctx, port.Progress{Stage: stage, Message: msg, Current: current, Total: total, Details: details})
}

// Run deduplicates the GIF at inputPath into outputPath. Validation happens
// before any work; codec failures abort the run with a CodecError. A run
// that started always terminates the progress stream with the complete or
// error stage. Partial temp artifacts are cleaned up best effort.
func (p *Pipeline) Run(ctx context.Context, inputPath, outputPath string, cfg Config) (*Result, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	res, err := p.run(ctx, inputPath, outputPath, cfg)
	if err != nil {
		p.emit(ctx, port.StageError, "deduplication failed", 0, 0, err.Error())
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, inputPath, outputPath string, cfg Config) (*Result, error) {
	threshold := ThresholdFromSimilarity(cfg.Similarity)

	workDir, err := os.MkdirTemp("", "gifcut-dedup-")
	if err != nil {
		return nil, fmt.Errorf("create dedup workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	framesDir := filepath.Join(workDir, "frames")
	uniqueDir := filepath.Join(workDir, "unique")
	for _, d := range []string{framesDir, uniqueDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", d, err)
		}
	}

	p.emit(ctx, port.StageExtracting, "extracting frames", 0, 0,
		fmt.Sprintf("preprocessing with %d colors", cfg.Colors))

	meta, err := p.codec.Metadata(ctx, inputPath)
	if err != nil {
		return nil, err
	}

	// Reduce the palette first; fall back to the original on failure.
	source := filepath.Join(workDir, "optimized.gif")
	if err := p.codec.ReduceColors(ctx, inputPath, source, cfg.Colors); err != nil {
		p.logger.Warn("palette preprocessing failed, extracting from original", zap.Error(err))
		source = inputPath
	}

	if err := p.codec.Explode(ctx, source, filepath.Join(framesDir, "frame"), -1, -1); err != nil {
		return nil, err
	}

	framePaths, err := listFrameFiles(framesDir, "frame.")
	if err != nil {
		return nil, err
	}
	if len(framePaths) == 0 {
		return nil, fmt.Errorf("no frames extracted from %s", inputPath)
	}

	total := len(framePaths)
	p.emit(ctx, port.StageExtracting, fmt.Sprintf("%d frames", total), total, total, "")
	p.emit(ctx, port.StageDeduplicating,
		fmt.Sprintf("comparing frames (hamming threshold %d)", threshold), 0, 0, "")

	hashed := make([]HashedFrame, 0, total)
	for i, fp := range framePaths {
		if i%5 == 0 || i == total-1 {
			p.emit(ctx, port.StageProcessing, fmt.Sprintf("frame %d/%d", i+1, total), i+1, total, "")
		}
		frame, err := DecodeFrameFile(fp, i, frameDelay(meta.Delays, i, total))
		if err != nil {
			return nil, err
		}
		hashed = append(hashed, HashedFrame{Fingerprint: Hash(frame.Image()), Delay: frame.Delay})
	}

	groups := Merge(hashed, threshold)
	p.emit(ctx, port.StageDeduplicating,
		fmt.Sprintf("kept %d of %d frames", len(groups), total), len(groups), total, "")

	totalDuration := time.Duration(0)
	for _, g := range groups {
		totalDuration += g.TotalDelay
	}

	p.emit(ctx, port.StageRebuilding,
		fmt.Sprintf("rebuilding (quality %d, duration %.2fs)", cfg.Quality, totalDuration.Seconds()), 0, 0, "")

	if cfg.UsePalette {
		err = p.rebuildRemux(ctx, framePaths, groups, cfg, outputPath)
	} else {
		err = p.rebuildReencode(ctx, framePaths, groups, meta, cfg, totalDuration, uniqueDir, outputPath)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{
		TotalFrames:   total,
		UniqueFrames:  len(groups),
		TotalDuration: totalDuration,
	}
	if st, err := os.Stat(inputPath); err == nil {
		res.InputSize = st.Size()
	}
	if st, err := os.Stat(outputPath); err == nil {
		res.OutputSize = st.Size()
	}

	ratio := 0
	if res.InputSize > 0 {
		ratio = int((1.0 - float64(res.OutputSize)/float64(res.InputSize)) * 100.0)
	}
	p.emit(ctx, port.StageComplete, fmt.Sprintf("created %s", outputPath), 0, 0,
		fmt.Sprintf("original %.1fKB, new %.1fKB, saved %d%%",
			float64(res.InputSize)/1024.0, float64(res.OutputSize)/1024.0, ratio))

	return res, nil
}

// rebuildRemux reassembles the representative frame files directly, with
// per-group delays. Lossless with respect to source pixels.
func (p *Pipeline) rebuildRemux(ctx context.Context, framePaths []string, groups []MergeGroup, cfg Config, outputPath string) error {
	paths := make([]string, len(groups))
	delays := make([]time.Duration, len(groups))
	for i, g := range groups {
		paths[i] = framePaths[g.RepresentativeIndex]
		delays[i] = g.TotalDelay
	}
	return p.codec.AssembleFrames(ctx, paths, delays, cfg.Colors, outputPath)
}

// rebuildReencode pushes representative frames through the pixel encoder,
// then re-applies exact per-group delays in a post-pass since the encoder
// only supports a uniform frame rate.
func (p *Pipeline) rebuildReencode(ctx context.Context, framePaths []string, groups []MergeGroup, meta *port.Metadata, cfg Config, totalDuration time.Duration, uniqueDir, outputPath string) error {
	width, height := meta.Width, meta.Height

	pngPaths := make([]string, len(groups))
	delays := make([]time.Duration, len(groups))
	for i, g := range groups {
		frame, err := DecodeFrameFile(framePaths[g.RepresentativeIndex], g.RepresentativeIndex, g.TotalDelay)
		if err != nil {
			return err
		}
		if width == 0 || height == 0 {
			width, height = frame.Width, frame.Height
		}
		dst := filepath.Join(uniqueDir, fmt.Sprintf("frame_%04d.png", i))
		if err := writePNG(dst, frame.Image()); err != nil {
			return err
		}
		pngPaths[i] = dst
		delays[i] = g.TotalDelay
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("cannot determine output dimensions for %s", outputPath)
	}

	avgFPS := 10.0
	if totalDuration > 0 {
		avgFPS = float64(len(groups)) / totalDuration.Seconds()
	}

	if err := p.encoder.EncodeFrames(ctx, pngPaths, outputPath, cfg.Quality, avgFPS, width, height); err != nil {
		return err
	}

	adjusted := outputPath + ".delays"
	if err := p.codec.ApplyDelays(ctx, outputPath, adjusted, delays); err != nil {
		// Keep the encoder output with its uniform rate.
		p.logger.Warn("delay post-pass failed, keeping encoder timing", zap.Error(err))
		return nil
	}
	return os.Rename(adjusted, outputPath)
}

// frameDelay applies the source's delay list to frame i: an exact list is
// used positionally, a mismatched non-empty list falls back to its first
// entry, and an empty list falls back to the default.
func frameDelay(delays []time.Duration, i, total int) time.Duration {
	switch {
	case len(delays) == total:
		return delays[i]
	case len(delays) > 0:
		return delays[0]
	default:
		return defaultDelay
	}
}

// listFrameFiles returns dir's prefix-named files sorted by their numeric
// suffix, so frame.2 precedes frame.10.
func listFrameFiles(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir %s: %w", dir, err)
	}

	type numbered struct {
		path string
		n    int
	}
	var files []numbered
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), prefix))
		if err != nil {
			continue
		}
		files = append(files, numbered{path: filepath.Join(dir, e.Name()), n: n})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].n < files[j].n })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

func writePNG(path string, img image.Image) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer fh.Close()
	if err := png.Encode(fh, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
