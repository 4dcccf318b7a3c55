package models

import (
	"strings"

	"github.com/hyperjump/kura/internal/apperr"
)

// Query is a search or RAG request against one named store.
type Query struct {
	Text      string `json:"query"`
	TopK      *int   `json:"top_k,omitempty"`
	StoreName string `json:"db_name,omitempty"`
}

// Validate trims the query text and fills defaults for top_k and db_name.
// Only an absent top_k takes the default; an explicit value, zero included, must
// lie in [1, maxTopK].
func (q *Query) Validate(defaultTopK, maxTopK int) error {
	q.Text = strings.TrimSpace(q.Text)
	if q.StoreName == "" {
		q.StoreName = DefaultStoreName
	}
	if q.Text == "" {
		return apperr.Validation("query", q.StoreName, "query cannot be empty")
	}
	if q.TopK == nil {
		k := defaultTopK
		q.TopK = &k
	}
	if k := *q.TopK; k < 1 || k > maxTopK {
		return apperr.Validation("query", q.StoreName, "top_k must be between 1 and %d, got %d", maxTopK, k)
	}
	return nil
}

// K is the requested result count, or 0 when top_k was not given.
func (q Query) K() int {
	if q.TopK == nil {
		return 0
	}
	return *q.TopK
}
