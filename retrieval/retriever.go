package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/shaadiscout/concierge/models"
)

// RetrievalError wraps an embedding or index failure. The chat router turns
// it into a user-facing fallback message; the raw cause never reaches the
// client.
type RetrievalError struct {
	Stage string // "embed" or "query"
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed during %s: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Result is the outcome of one vendor search: the raw index matches and
// their normalized vendor records, in index ranking order.
type Result struct {
	Matches []Match
	Vendors []models.VendorRecord
}

// Retriever answers vendor queries against the vector index.
type Retriever struct {
	Embedder Embedder
	Index    VectorIndex
	Logger   *log.Logger
}

// NewRetriever wires an embedder and an index. A nil logger falls back to
// the standard logger.
func NewRetriever(embedder Embedder, index VectorIndex, logger *log.Logger) *Retriever {
	if logger == nil {
		logger = log.Default()
	}
	return &Retriever{Embedder: embedder, Index: index, Logger: logger}
}

// Search embeds the query and returns the topK nearest vendors. An empty
// query short-circuits to an empty result without calling the embedder.
// Ranking order is the index's; no local re-sorting.
func (r *Retriever) Search(ctx context.Context, query string, topK int) (*Result, error) {
	if query == "" {
		return &Result{}, nil
	}

	embedding, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, &RetrievalError{Stage: "embed", Err: err}
	}

	matches, err := r.Index.Query(ctx, embedding, topK)
	if err != nil {
		return nil, &RetrievalError{Stage: "query", Err: err}
	}

	vendors := make([]models.VendorRecord, 0, len(matches))
	for _, m := range matches {
		vendors = append(vendors, normalizeMatch(m, r.Logger))
	}

	r.Logger.Printf("[RETRIEVAL] query %q returned %d vendors (topK=%d)", query, len(vendors), topK)
	return &Result{Matches: matches, Vendors: vendors}, nil
}

// Metadata field aliases, first present wins. Upstream index payloads have
// drifted across ingestion runs, so several naming conventions coexist.
var (
	nameFields        = []string{"name", "title", "vendor_name"}
	locationFields    = []string{"location", "city", "area"}
	categoryFields    = []string{"category", "type", "vendor_type"}
	priceRangeFields  = []string{"price_range", "price", "budget"}
	descriptionFields = []string{"description", "about", "summary"}
)

func normalizeMatch(m Match, logger *log.Logger) models.VendorRecord {
	var meta map[string]interface{}
	if m.MetadataJSON != "" {
		if err := json.Unmarshal([]byte(m.MetadataJSON), &meta); err != nil {
			logger.Printf("[RETRIEVAL] unparsable metadata for vendor %s: %v", m.ID, err)
		}
	}

	score := m.Score
	return models.VendorRecord{
		ID:          m.ID,
		Score:       &score,
		Name:        firstString(meta, nameFields),
		Location:    firstString(meta, locationFields),
		Category:    firstString(meta, categoryFields),
		PriceRange:  firstString(meta, priceRangeFields),
		Description: firstString(meta, descriptionFields),
		RawMetadata: meta,
	}
}

// firstString returns the value of the first listed key holding a non-empty
// string, or "" when none is present.
func firstString(meta map[string]interface{}, keys []string) string {
	for _, k := range keys {
		if v, ok := meta[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
