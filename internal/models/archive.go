package models

import "time"

type ArchiveInfo struct {
	ArchivePath      string    `json:"archive_path"`
	SourcePath       string    `json:"source_path"`
	FileCount        int       `json:"file_count"`
	CompressedSize   int64     `json:"compressed_size"`
	OriginalSize     int64     `json:"original_size"`
	CompressionRatio float64   `json:"compression_ratio"`
	CreatedAt        time.Time `json:"created_at"`
}
