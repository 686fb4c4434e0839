// Package gifsicle adapts the gifsicle command line tool to the FrameCodec
// port. Every operation shells out once; stderr is captured separately so
// failures surface the tool's own diagnostic.
package gifsicle

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/aidecameron/gifcut/internal/domain/entity"
	"github.com/aidecameron/gifcut/internal/domain/port"
	"go.uber.org/zap"
)

type Codec struct {
	bin    string
	logger *zap.Logger
}

func NewCodec(bin string, logger *zap.Logger) *Codec {
	if bin == "" {
		bin = "gifsicle"
	}
	return &Codec{bin: bin, logger: logger}
}

// run executes gifsicle with args, returning stdout. On a non-zero exit the
// error is a CodecError carrying the trimmed stderr.
func (c *Codec) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &entity.CodecError{
			Tool:       c.bin,
			Diagnostic: strings.TrimSpace(stderr.String()),
			Err:        err,
		}
	}
	return stdout.Bytes(), nil
}

func (c *Codec) Metadata(ctx context.Context, input string) (*port.Metadata, error) {
	out, err := c.run(ctx, "--info", input)
	if err != nil {
		return nil, err
	}
	meta, err := parseInfo(string(out))
	if err != nil {
		return nil, fmt.Errorf("parse %s info: %w", input, err)
	}
	return meta, nil
}

// Stats summarizes a GIF's frame timing and file size.
func (c *Codec) Stats(ctx context.Context, input string) (*entity.GifStats, error) {
	meta, err := c.Metadata(ctx, input)
	if err != nil {
		return nil, err
	}
	var size int64
	if st, err := os.Stat(input); err == nil {
		size = st.Size()
	}
	return StatsFromMetadata(meta, size), nil
}

// ReduceColors rewrites input with at most colors palette entries.
func (c *Codec) ReduceColors(ctx context.Context, input, output string, colors int) error {
	_, err := c.run(ctx, fmt.Sprintf("--colors=%d", colors), input, "-o", output)
	return err
}

// Unoptimize expands every frame to the full logical screen so frames can
// be handled independently.
func (c *Codec) Unoptimize(ctx context.Context, input, output string) error {
	_, err := c.run(ctx, "--unoptimize", input, "-o", output)
	return err
}

// Explode writes single-frame GIFs named outputPrefix.<NNN> for frames
// start..end inclusive. A negative start selects the whole sequence.
// gifsicle zero-pads the suffix; callers needing canonical names rename.
func (c *Codec) Explode(ctx context.Context, input, outputPrefix string, start, end int) error {
	args := []string{"--unoptimize", "--explode", input}
	if start >= 0 {
		args = append(args, fmt.Sprintf("#%d-%d", start, end))
	}
	args = append(args, "-o", outputPrefix)
	_, err := c.run(ctx, args...)
	return err
}

// ExplodeResized is Explode with frames scaled to fit within maxDim.
func (c *Codec) ExplodeResized(ctx context.Context, input, outputPrefix string, start, end, maxDim int) error {
	args := []string{"--unoptimize", fmt.Sprintf("--resize-fit=%dx%d", maxDim, maxDim), "--explode", input}
	if start >= 0 {
		args = append(args, fmt.Sprintf("#%d-%d", start, end))
	}
	args = append(args, "-o", outputPrefix)
	_, err := c.run(ctx, args...)
	return err
}

// SelectFrames keeps exactly the given source frame indices, in the given
// order.
func (c *Codec) SelectFrames(ctx context.Context, input, output string, indices []int) error {
	if len(indices) == 0 {
		return fmt.Errorf("%w: no frames selected", entity.ErrInvalidParameter)
	}
	args := []string{"--unoptimize", input}
	for _, i := range indices {
		args = append(args, fmt.Sprintf("#%d", i))
	}
	args = append(args, "-O2", "-o", output)
	_, err := c.run(ctx, args...)
	return err
}

// ApplyDelays rewrites per-frame delays. len(delays) must match the frame
// count; extra entries are ignored by the tool, missing ones keep the
// source delay, so callers should pass an exact list.
func (c *Codec) ApplyDelays(ctx context.Context, input, output string, delays []time.Duration) error {
	args := []string{"--unoptimize", input}
	for i, d := range delays {
		args = append(args, fmt.Sprintf("--delay=%d", toCentis(d)), fmt.Sprintf("#%d", i))
	}
	args = append(args, "-O2", "-o", output)
	_, err := c.run(ctx, args...)
	return err
}

// AssembleFrames builds an animation from single-frame GIF files with
// per-frame delays, quantized to a shared palette of at most colors.
func (c *Codec) AssembleFrames(ctx context.Context, framePaths []string, delays []time.Duration, colors int, output string) error {
	if len(framePaths) == 0 {
		return fmt.Errorf("%w: no frames to assemble", entity.ErrInvalidParameter)
	}
	if len(delays) != len(framePaths) {
		return fmt.Errorf("%w: %d delays for %d frames", entity.ErrInvalidParameter, len(delays), len(framePaths))
	}

	args := []string{"--loopcount=forever", fmt.Sprintf("--colors=%d", clampPalette(colors))}
	for i, fp := range framePaths {
		args = append(args, fmt.Sprintf("--delay=%d", toCentis(delays[i])), fp)
	}
	args = append(args, "-O3", "-o", output)
	_, err := c.run(ctx, args...)
	return err
}

// DeleteFrames removes the given source frame indices.
func (c *Codec) DeleteFrames(ctx context.Context, input, output string, indices []int) error {
	if len(indices) == 0 {
		return fmt.Errorf("%w: no frames to delete", entity.ErrInvalidParameter)
	}
	args := []string{"--unoptimize", input, "--delete"}
	for _, i := range indices {
		args = append(args, fmt.Sprintf("#%d", i))
	}
	args = append(args, "--done", "-O2", "-o", output)
	_, err := c.run(ctx, args...)
	return err
}

// Resize scales the animation to w x h with mix-method sampling and a
// re-dithered 256-color palette. method "fit" preserves aspect ratio
// within the box; anything else forces the exact size.
func (c *Codec) Resize(ctx context.Context, input, output string, w, h int, method string, optimize bool) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: resize dimensions %dx%d", entity.ErrInvalidParameter, w, h)
	}
	args := []string{"--resize-method=mix", "--resize-colors=256", "--dither"}
	if method == "fit" {
		args = append(args, fmt.Sprintf("--resize-fit=%dx%d", w, h))
	} else {
		args = append(args, fmt.Sprintf("--resize=%dx%d", w, h))
	}
	args = append(args, input)
	if optimize {
		args = append(args, "-O3")
	}
	args = append(args, "-o", output)
	_, err := c.run(ctx, args...)
	return err
}

// Optimize rewrites input with gifsicle's -O2 optimizer.
func (c *Codec) Optimize(ctx context.Context, input, output string) error {
	_, err := c.run(ctx, "-O2", input, "-o", output)
	return err
}

// clampPalette caps a requested palette size at gifsicle's 256-entry limit.
func clampPalette(colors int) int {
	if colors > 256 {
		return 256
	}
	return colors
}

// toCentis converts a duration to GIF delay units (centiseconds), rounding
// to nearest with a floor of 0.
func toCentis(d time.Duration) int {
	cs := int((d + 5*time.Millisecond) / (10 * time.Millisecond))
	if cs < 0 {
		cs = 0
	}
	return cs
}

// parseDelaySeconds parses gifsicle's "0.05s" delay token.
func parseDelaySeconds(tok string) (time.Duration, error) {
	s, err := strconv.ParseFloat(strings.TrimSuffix(tok, "s"), 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(s * float64(time.Second)), nil
}
