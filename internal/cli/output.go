// Package cli provides output formatting and an HTTP client for the kura command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const previewLen = 300

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %q (%dms)\n\n", response.Total, response.StoreName, response.QueryTime)
	for i, hit := range response.Results {
		writeHit(w, i+1, hit)
	}
	return nil
}

// WriteAnswer writes a RAG answer followed by its sources.
func WriteAnswer(w io.Writer, answer *models.RAGAnswer, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, answer)
	}
	fmt.Fprintf(w, "\n%s\n\n", strings.TrimSpace(answer.Answer))
	if !answer.Grounded {
		fmt.Fprintf(w, "(no documents from %q were used)\n", answer.StoreName)
		return nil
	}
	fmt.Fprintf(w, "Sources from %q:\n", answer.StoreName)
	for i, hit := range answer.SourceDocuments {
		writeHit(w, i+1, hit)
	}
	return nil
}

func writeHit(w io.Writer, rank int, hit models.SearchHit) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	if hit.Score != nil {
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", rank, *hit.Score)
	} else {
		fmt.Fprintf(w, "Rank: %d\n", rank)
	}
	fmt.Fprintf(w, "Source: %s (page %d, chunk %d)\n", hit.Metadata.Source, hit.Metadata.Page, hit.Metadata.ChunkIndex)
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(hit.Content, previewLen))
}

// WriteStores writes the store listing.
func WriteStores(w io.Writer, list *models.StoreList, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, list)
	}
	if list.Count == 0 {
		fmt.Fprintln(w, "No vector stores.")
		return nil
	}
	fmt.Fprintf(w, "%d vector store(s):\n", list.Count)
	for _, s := range list.Databases {
		fmt.Fprintf(w, "  %-24s %10s  created %s\n", s.Name, humanBytes(s.SizeBytes), s.Created.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// WriteStoreDetail writes the description of one store.
func WriteStoreDetail(w io.Writer, d *models.StoreDetail, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, d)
	}
	fmt.Fprintf(w, "name:             %s\n", d.Name)
	fmt.Fprintf(w, "path:             %s\n", d.Path)
	fmt.Fprintf(w, "embedding_model:  %s\n", d.EmbeddingModel)
	fmt.Fprintf(w, "dimensions:       %d\n", d.Dimensions)
	fmt.Fprintf(w, "chunks:           %d\n", d.ChunkCount)
	fmt.Fprintf(w, "size:             %s (%.2f MB)\n", humanBytes(d.TotalSizeBytes), d.TotalSizeMB)
	fmt.Fprintf(w, "created:          %s\n", d.Created.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "modified:         %s\n", d.Modified.Local().Format("2006-01-02 15:04:05"))
	return nil
}

// WriteUploadResult writes the outcome of an ingest.
func WriteUploadResult(w io.Writer, res *models.UploadResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	fmt.Fprintf(w, "Ingested %s into %q: %d page(s), %d chunk(s) (size %d, overlap %d)\n",
		res.Filename, res.StoreName, res.Pages, res.Chunks, res.ChunkSize, res.ChunkOverlap)
	fmt.Fprintf(w, "Saved to %s\n", res.Location)
	return nil
}

// WriteDeleteResult writes the outcome of a deletion.
func WriteDeleteResult(w io.Writer, res *models.DeleteResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	fmt.Fprintln(w, res.Message)
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
