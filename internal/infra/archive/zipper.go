// Package archive bundles job artifacts into zip files for upload.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type ZipCreator struct{}

func NewZipCreator() *ZipCreator {
	return &ZipCreator{}
}

// CreateZip writes filePaths into a zip at outputPath. Entry names are the
// paths relative to baseDir when possible, so frame and preview directories
// keep their layout; paths outside baseDir fall back to their base name.
func (z *ZipCreator) CreateZip(ctx context.Context, baseDir string, filePaths []string, outputPath string) error {
	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer zipFile.Close()

	zw := zip.NewWriter(zipFile)
	defer zw.Close()

	for _, fp := range filePaths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := addEntry(zw, baseDir, fp); err != nil {
			return fmt.Errorf("add %s to zip: %w", fp, err)
		}
	}

	return nil
}

func entryName(baseDir, filename string) string {
	if baseDir == "" {
		return filepath.Base(filename)
	}
	rel, err := filepath.Rel(baseDir, filename)
	if err != nil || rel == ".." || filepath.IsAbs(rel) || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return filepath.Base(filename)
	}
	return filepath.ToSlash(rel)
}

func addEntry(zw *zip.Writer, baseDir, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = entryName(baseDir, filename)
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}
