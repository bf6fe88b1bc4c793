// Package cli provides output helpers for the kiku command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/storage"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// Status is the shape of GET /api/v1/status.
type Status struct {
	Backends  []models.BackendDescriptor `json:"backends"`
	Populated bool                       `json:"populated"`
	Disk      *storage.Usage             `json:"disk,omitempty"`
	Config    map[string]interface{}     `json:"config,omitempty"`
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer and its sources to w in the given format.
func WriteAnswer(w io.Writer, resp *models.AnswerResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n\n", strings.TrimSpace(resp.Answer))
	if len(resp.Sources) > 0 {
		fmt.Fprintf(w, "--- Sources (%s, %dms) ---\n", resp.Backend, resp.QueryTime)
		for i, src := range resp.Sources {
			fmt.Fprintf(w, "[%d] %s #%d (score %.4f)\n", i+1, src.DocumentID, src.SequenceIndex, src.Score)
			fmt.Fprintf(w, "    %s\n", TruncateWords(src.Snippet, 24))
		}
	}
	if resp.ConversationID != "" {
		fmt.Fprintf(w, "\nconversation: %s\n", resp.ConversationID)
	}
	return nil
}

// WriteIngestResult writes the outcome of one ingest.
func WriteIngestResult(w io.Writer, res *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Ingested %s: %d chunk(s) into %s (document %s)\n", res.Name, res.ChunkCount, res.BackendUsed, res.DocumentID)
	return nil
}

// WriteStatus writes backend and storage status.
func WriteStatus(w io.Writer, status *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "populated:          %t   # something has been ingested\n", status.Populated)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# backends (tried in priority order)")
	for _, b := range status.Backends {
		fmt.Fprintf(w, "%-22s priority=%-4d healthy=%t\n", b.Kind, b.Priority, b.Healthy)
	}
	if status.Disk != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "disk_usage_bytes:   %d\n", status.Disk.TotalBytes)
		for _, p := range status.Disk.Paths {
			fmt.Fprintf(w, "  %-18s %d   # %s\n", p.Name+":", p.Bytes, p.Path)
		}
	}
	if len(status.Config) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		for _, key := range []string{
			"embedding_provider", "embedding_dimensions", "generation_provider",
			"chunk_size", "chunk_overlap", "top_k", "storage_driver",
		} {
			if v, ok := status.Config[key]; ok {
				fmt.Fprintf(w, "%-20s%v\n", key+":", v)
			}
		}
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
