package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"alistmirror/internal/models"
)

// CreateArchive zips the tree under sourceDir into outputPath. Entry names
// are relative to sourceDir. outputPath itself is skipped when it lies
// inside the tree.
func CreateArchive(sourceDir, outputPath string) (*models.ArchiveInfo, error) {
	absOutput, err := filepath.Abs(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve archive path: %w", err)
	}

	outFile, err := os.Create(absOutput)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}
	defer outFile.Close()

	zipWriter := zip.NewWriter(outFile)
	defer zipWriter.Close()

	var originalSize int64
	var fileCount int
	createdAt := time.Now()

	err = filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if abs, _ := filepath.Abs(path); abs == absOutput {
			return nil
		}

		relPath, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if info.IsDir() {
			header.Name += "/"
			_, err := zipWriter.CreateHeader(header)
			return err
		}
		header.Method = zip.Deflate

		writer, err := zipWriter.CreateHeader(header)
		if err != nil {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		n, err := io.Copy(writer, file)
		originalSize += n
		fileCount++
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add %s to archive: %w", sourceDir, err)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	fileInfo, err := outFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get archive info: %w", err)
	}
	compressedSize := fileInfo.Size()

	compressionRatio := 0.0
	if originalSize > 0 {
		compressionRatio = float64(compressedSize) / float64(originalSize)
	}

	return &models.ArchiveInfo{
		ArchivePath:      absOutput,
		SourcePath:       sourceDir,
		FileCount:        fileCount,
		CompressedSize:   compressedSize,
		OriginalSize:     originalSize,
		CompressionRatio: compressionRatio,
		CreatedAt:        createdAt,
	}, nil
}

func GenerateArchiveName(sourceDir, extension string) string {
	baseName := filepath.Base(filepath.Clean(sourceDir))
	if baseName == "." || baseName == string(filepath.Separator) {
		baseName = "mirror"
	}
	baseName = strings.TrimSuffix(baseName, filepath.Ext(baseName))
	return fmt.Sprintf("%s_%s%s", baseName, time.Now().Format("20060102_150405"), extension)
}
