// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// FileProcessingTask asks the indexing pipeline to extract and index one stored file.
type FileProcessingTask struct {
	FileID      string `json:"file_id"`
	UserID      string `json:"user_id"`
	StoragePath string `json:"storage_path"`
	ContentType string `json:"content_type"`
	FileName    string `json:"file_name"`
}
