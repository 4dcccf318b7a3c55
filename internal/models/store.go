package models

import "time"

// StoreSummary is one entry of the store listing.
type StoreSummary struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
}

// StoreList is the response of the store listing.
type StoreList struct {
	Count     int            `json:"count"`
	Databases []StoreSummary `json:"databases"`
}

// StoreDetail describes a single store, including the embedding model it was built with.
type StoreDetail struct {
	Name           string           `json:"name"`
	Path           string           `json:"path"`
	Files          map[string]int64 `json:"files"`
	TotalSizeBytes int64            `json:"total_size_bytes"`
	TotalSizeMB    float64          `json:"total_size_mb"`
	Created        time.Time        `json:"created"`
	Modified       time.Time        `json:"modified"`
	EmbeddingModel string           `json:"embedding_model"`
	Dimensions     int              `json:"dimensions"`
	ChunkCount     int              `json:"chunk_count"`
}

// DeleteResult is the response of a store deletion.
type DeleteResult struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	DeletedPath string `json:"deleted_path"`
}
