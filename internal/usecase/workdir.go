package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aidecameron/gifcut/internal/domain/port"
)

// SafeBase derives a filesystem-safe stem from a GIF's base name.
// Alphanumerics pass through; anything else becomes '_' plus the rune's
// codepoint, which keeps distinct names distinct.
func SafeBase(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	var b strings.Builder
	for _, r := range stem {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			fmt.Fprintf(&b, "_%d", r)
		}
	}
	return b.String()
}

// Precursors are the two derived files batch extraction reads from: a
// full-palette copy and a frame-unoptimized copy. Building them once up
// front keeps per-batch work cheap.
type Precursors struct {
	ColorRestored string
	Unoptimized   string
}

// PreparePrecursors builds the precursor files next to the input, skipping
// any that already exist so a resumed job does not redo them.
func PreparePrecursors(ctx context.Context, codec port.FrameCodec, inputPath string) (*Precursors, error) {
	dir := filepath.Dir(inputPath)
	base := SafeBase(inputPath)

	p := &Precursors{
		ColorRestored: filepath.Join(dir, fmt.Sprintf("_%s_temp_color_restored.gif", base)),
		Unoptimized:   filepath.Join(dir, fmt.Sprintf("_%s_temp_unoptimized.gif", base)),
	}

	if !usableFile(p.ColorRestored) {
		if err := codec.ReduceColors(ctx, inputPath, p.ColorRestored, 255); err != nil {
			return nil, fmt.Errorf("build color-restored precursor: %w", err)
		}
	}
	if !usableFile(p.Unoptimized) {
		if err := codec.Unoptimize(ctx, p.ColorRestored, p.Unoptimized); err != nil {
			return nil, fmt.Errorf("build unoptimized precursor: %w", err)
		}
	}
	return p, nil
}

// usableFile reports whether a precursor exists and is non-empty. An empty
// file is a leftover from an interrupted build and must be redone.
func usableFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Size() > 0
}
