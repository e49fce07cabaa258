package retrieval

import (
	"context"
	"errors"
	"testing"
)

type fakeEmbedder struct {
	calls     int
	embedding []float32
	err       error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.embedding, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.embedding) }

type fakeIndex struct {
	calls   int
	matches []Match
	err     error
	gotTopK int
}

func (f *fakeIndex) Query(ctx context.Context, embedding []float32, topK int) ([]Match, error) {
	f.calls++
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func TestSearchEmptyQueryShortCircuits(t *testing.T) {
	emb := &fakeEmbedder{embedding: []float32{1, 0}}
	idx := &fakeIndex{}
	r := NewRetriever(emb, idx, nil)

	result, err := r.Search(context.Background(), "", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Vendors) != 0 || len(result.Matches) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
	if emb.calls != 0 {
		t.Errorf("embedder must not run for an empty query, got %d calls", emb.calls)
	}
	if idx.calls != 0 {
		t.Errorf("index must not run for an empty query, got %d calls", idx.calls)
	}
}

func TestSearchPreservesIndexOrdering(t *testing.T) {
	idx := &fakeIndex{matches: []Match{
		{ID: "v1", Score: 0.98, MetadataJSON: `{"name":"First","category":"Caterer","location":"Juhu"}`},
		{ID: "v2", Score: 0.91, MetadataJSON: `{"name":"Second","category":"Venue","location":"Worli"}`},
		{ID: "v3", Score: 0.77, MetadataJSON: `{"name":"Third","category":"DJ","location":"Andheri"}`},
	}}
	r := NewRetriever(&fakeEmbedder{embedding: []float32{1}}, idx, nil)

	result, err := r.Search(context.Background(), "caterers in mumbai", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.gotTopK != 3 {
		t.Errorf("topK not forwarded, got %d", idx.gotTopK)
	}
	names := []string{"First", "Second", "Third"}
	for i, want := range names {
		if result.Vendors[i].Name != want {
			t.Errorf("position %d: got %q, want %q", i, result.Vendors[i].Name, want)
		}
	}
	if result.Vendors[0].Score == nil || *result.Vendors[0].Score != 0.98 {
		t.Errorf("score not carried through: %+v", result.Vendors[0].Score)
	}
}

func TestSearchEmbedFailure(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{err: errors.New("quota")}, &fakeIndex{}, nil)

	_, err := r.Search(context.Background(), "venues", 5)
	var rerr *RetrievalError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RetrievalError, got %v", err)
	}
	if rerr.Stage != "embed" {
		t.Errorf("stage = %q, want embed", rerr.Stage)
	}
}

func TestSearchQueryFailure(t *testing.T) {
	idx := &fakeIndex{err: errors.New("db locked")}
	r := NewRetriever(&fakeEmbedder{embedding: []float32{1}}, idx, nil)

	_, err := r.Search(context.Background(), "venues", 5)
	var rerr *RetrievalError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RetrievalError, got %v", err)
	}
	if rerr.Stage != "query" {
		t.Errorf("stage = %q, want query", rerr.Stage)
	}
	if !errors.Is(err, idx.err) {
		t.Error("wrapped cause should unwrap to the index error")
	}
}

func TestNormalizeMatchAliases(t *testing.T) {
	idx := &fakeIndex{matches: []Match{
		{ID: "a", MetadataJSON: `{"title":"Alias Title","city":"Dadar","type":"Decorator","budget":"₹50k","about":"floral work"}`},
		{ID: "b", MetadataJSON: `{"name":"Primary","title":"Secondary","location":"Colaba","city":"Shadowed"}`},
		{ID: "c", MetadataJSON: `{"name":"","title":"Fallback on empty"}`},
		{ID: "d", MetadataJSON: `not json at all`},
		{ID: "e", MetadataJSON: ""},
	}}
	r := NewRetriever(&fakeEmbedder{embedding: []float32{1}}, idx, nil)

	result, err := r.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v := result.Vendors

	// Secondary aliases fill in when the primary keys are absent.
	if v[0].Name != "Alias Title" || v[0].Location != "Dadar" || v[0].Category != "Decorator" || v[0].PriceRange != "₹50k" || v[0].Description != "floral work" {
		t.Errorf("alias resolution wrong: %+v", v[0])
	}

	// Primary keys win over aliases.
	if v[1].Name != "Primary" || v[1].Location != "Colaba" {
		t.Errorf("primary keys should win: %+v", v[1])
	}

	// Empty strings fall through to the next alias.
	if v[2].Name != "Fallback on empty" {
		t.Errorf("empty primary should fall through, got %q", v[2].Name)
	}

	// Unparsable or missing metadata yields a record with the ID intact.
	if v[3].ID != "d" || v[3].Name != "" {
		t.Errorf("unparsable metadata should degrade gracefully: %+v", v[3])
	}
	if v[4].ID != "e" || v[4].RawMetadata != nil {
		t.Errorf("missing metadata should leave RawMetadata nil: %+v", v[4])
	}
}
