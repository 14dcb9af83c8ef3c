package models

// FailureRecord is one isolated failure collected during a mirror run.
type FailureRecord struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type MirrorResult struct {
	RunID             string          `json:"run_id"`
	BaseURL           string          `json:"base_url"`
	RemoteRoot        string          `json:"remote_root"`
	Destination       string          `json:"destination"`
	DryRun            bool            `json:"dry_run,omitempty"`
	DirectoriesListed int64           `json:"directories_listed"`
	DirectoriesFailed int64           `json:"directories_failed"`
	FilesDownloaded   int64           `json:"files_downloaded"`
	FilesResumed      int64           `json:"files_resumed"`
	FilesSkipped      int64           `json:"files_skipped"`
	FilesUnresolvable int64           `json:"files_unresolvable"`
	FilesFiltered     int64           `json:"files_filtered"`
	FilesFailed       int64           `json:"files_failed"`
	SizeMismatches    int64           `json:"size_mismatches"`
	BytesTransferred  int64           `json:"bytes_transferred"`
	TransferredHuman  string          `json:"transferred_human"`
	Failures          []FailureRecord `json:"failures,omitempty"`
	Archive           *ArchiveInfo    `json:"archive,omitempty"`
	OperationTime     string          `json:"operation_time"`
	MirrorDuration    string          `json:"mirror_duration"`
}
