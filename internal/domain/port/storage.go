package port

import (
	"context"
	"io"
)

type GifStorage interface {
	DownloadGif(ctx context.Context, objectKey string, destPath string) error
	UploadResult(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
}
