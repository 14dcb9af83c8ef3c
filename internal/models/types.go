package models

import (
	"path"
	"time"
)

// RemoteEntry is one child of a listed remote directory.
type RemoteEntry struct {
	Name     string    `json:"name"`
	IsDir    bool      `json:"is_dir"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// RemoteFileMetadata is what the remote reports for a single file.
type RemoteFileMetadata struct {
	Name        string `json:"name"`
	DownloadURL string `json:"raw_url"`
	Size        int64  `json:"size"`
	IsDir       bool   `json:"is_dir"`
}

// Resolvable reports whether the remote handed out a direct download URL.
func (m RemoteFileMetadata) Resolvable() bool {
	return m.DownloadURL != ""
}

// TransferTarget ties a remote file to its place in the destination store.
// LocalDirectory is slash separated and relative to the store root.
type TransferTarget struct {
	RemotePath     string `json:"remote_path"`
	LocalDirectory string `json:"local_directory"`
	FileName       string `json:"file_name"`
}

func (t TransferTarget) LocalPath() string {
	return path.Join(t.LocalDirectory, t.FileName)
}

type StoreInfo struct {
	Destination    string    `json:"destination"`
	Kind           string    `json:"kind"`
	ObjectCount    int64     `json:"object_count"`
	TotalSizeBytes int64     `json:"total_size_bytes"`
	TotalSizeHuman string    `json:"total_size_human"`
	LastModified   time.Time `json:"last_modified"`
	APIEndpoint    string    `json:"api_endpoint,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	Command   string `json:"command"`
}
