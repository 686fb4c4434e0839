// Package gifski adapts the gifski command line encoder to the PixelEncoder
// port. gifski re-quantizes from RGB stills, so it is the lossy,
// high-quality rebuild path.
package gifski

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/aidecameron/gifcut/internal/domain/entity"
	"go.uber.org/zap"
)

type Encoder struct {
	bin    string
	logger *zap.Logger
}

func NewEncoder(bin string, logger *zap.Logger) *Encoder {
	if bin == "" {
		bin = "gifski"
	}
	return &Encoder{bin: bin, logger: logger}
}

// EncodeFrames encodes the PNG stills into an animated GIF at a uniform
// fps. Per-frame timing, if needed, is a caller-side post-pass.
func (e *Encoder) EncodeFrames(ctx context.Context, framePaths []string, output string, quality int, fps float64, width, height int) error {
	if len(framePaths) == 0 {
		return fmt.Errorf("%w: no frames to encode", entity.ErrInvalidParameter)
	}
	if fps <= 0 {
		return fmt.Errorf("%w: fps must be positive, got %g", entity.ErrInvalidParameter, fps)
	}

	args := []string{
		"-o", output,
		"-Q", strconv.Itoa(quality),
		"-r", fmt.Sprintf("%.2f", fps),
		"-W", strconv.Itoa(width),
		"-H", strconv.Itoa(height),
	}
	args = append(args, framePaths...)

	e.logger.Debug("encoding frames",
		zap.Int("frames", len(framePaths)),
		zap.Float64("fps", fps),
		zap.Int("quality", quality),
	)

	cmd := exec.CommandContext(ctx, e.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &entity.CodecError{
			Tool:       e.bin,
			Diagnostic: strings.TrimSpace(stderr.String()),
			Err:        err,
		}
	}
	return nil
}
