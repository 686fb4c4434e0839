package port

import "context"

// Zipper bundles artifacts for result upload. Entry names are the file
// paths made relative to baseDir, so sibling artifact directories keep
// their structure inside the archive.
type Zipper interface {
	CreateZip(ctx context.Context, baseDir string, filePaths []string, outputPath string) error
}
