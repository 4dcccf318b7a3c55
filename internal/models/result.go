package models

// SearchHit is one retrieved chunk. Score is nil when the index does not report one.
type SearchHit struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    *float64      `json:"score"`
}

// SearchResponse is the response for a search request, hits in rank order.
type SearchResponse struct {
	Query     string      `json:"query"`
	StoreName string      `json:"db_name"`
	Results   []SearchHit `json:"results"`
	Total     int         `json:"total"`
	QueryTime int64       `json:"query_time_ms"`
}

// RAGAnswer pairs a generated answer with exactly the chunks that were sent to the model.
// Grounded is false when no chunk was available as context.
type RAGAnswer struct {
	Query           string      `json:"query"`
	Answer          string      `json:"answer"`
	SourceDocuments []SearchHit `json:"source_documents"`
	StoreName       string      `json:"db_name"`
	Grounded        bool        `json:"grounded"`
}
