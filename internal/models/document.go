// Package models defines core data structures for stores, chunks, queries and answers.
package models

// DefaultStoreName is used when a request does not name a store.
const DefaultStoreName = "default"

// ChunkingMethod identifies the splitter recorded in upload results.
const ChunkingMethod = "recursive_character"

// Page is the text of one extracted page (PDF page, sheet or slide). Number is 1-based.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// ChunkMetadata records where a chunk came from.
type ChunkMetadata struct {
	Source     string `json:"source"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
}

// Chunk is a bounded span of extracted document text. Immutable once created.
type Chunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// IngestRequest is the input of one ingestion run. Nil chunk parameters mean the
// configured defaults.
type IngestRequest struct {
	StoreName    string
	Filename     string
	Content      []byte
	ChunkSize    *int
	ChunkOverlap *int
}

// UploadResult reports a successful ingestion.
type UploadResult struct {
	Status       string `json:"status"`
	Filename     string `json:"filename"`
	StoreName    string `json:"db_name"`
	Pages        int    `json:"pages"`
	Chunks       int    `json:"chunks"`
	Method       string `json:"method"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	Location     string `json:"saved_to"`
}
