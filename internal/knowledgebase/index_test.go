package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"docsage-go/internal/model"
	"docsage-go/internal/vectorstore"
	"docsage-go/internal/vectorstore/memory"
	"docsage-go/pkg/retry"
)

func newTestIndex() (*Index, *memory.Store) {
	store := memory.NewStore()
	return NewIndex(store, nil, Options{}), store
}

func TestInvoiceScenario(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex()

	n, err := idx.IndexDocuments(ctx, map[string]string{"page_1": "Invoices due in 30 days."}, "inv.pdf", "F1", "U1")
	if err != nil || n != 1 {
		t.Fatalf("IndexDocuments = %d, %v", n, err)
	}

	got := idx.Search(ctx, "invoice due date", "U1", 0, nil)
	if len(got) == 0 {
		t.Fatal("expected at least one result for U1")
	}
	if got[0].Metadata.FileID != "F1" {
		t.Fatalf("file_id = %s, want F1", got[0].Metadata.FileID)
	}
	if got[0].Metadata.Source != "inv.pdf" || got[0].Metadata.Page != "page_1" {
		t.Fatalf("metadata = %+v", got[0].Metadata)
	}

	if other := idx.Search(ctx, "invoice due date", "U2", 0, nil); len(other) != 0 {
		t.Fatalf("U2 saw %d results", len(other))
	}

	if err := idx.DeleteByFileID(ctx, "F1", ""); err != nil {
		t.Fatal(err)
	}
	files, err := idx.GetFilesByUser(ctx, "U1")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if f == "F1" {
			t.Fatal("F1 still listed after delete")
		}
	}
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex()
	_, _ = idx.IndexDocuments(ctx, map[string]string{"p1": "alpha report budget", "p2": "budget forecast"}, "a.pdf", "FA", "A")
	_, _ = idx.IndexDocuments(ctx, map[string]string{"p1": "budget secrets of tenant b"}, "b.pdf", "FB", "B")

	for _, q := range []string{"budget", "secrets", "alpha", ""} {
		for _, r := range idx.Search(ctx, q, "A", 10, map[string]string{model.FieldUserID: "B"}) {
			if r.Metadata.UserID != "A" {
				t.Fatalf("query %q leaked chunk of %s", q, r.Metadata.UserID)
			}
		}
	}
}

func TestSearchWithoutTenantReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex()
	_, _ = idx.IndexDocuments(ctx, map[string]string{"p": "anything goes"}, "x", "F", "U")
	if got := idx.Search(ctx, "anything", "", 5, nil); len(got) != 0 {
		t.Fatalf("got %d results without user_id", len(got))
	}
}

func TestWhitespacePagesIndexNothing(t *testing.T) {
	ctx := context.Background()
	idx, store := newTestIndex()
	before := store.Len()
	n, err := idx.IndexDocuments(ctx, map[string]string{"p1": "  ", "p2": "\n\t"}, "blank.pdf", "F", "U")
	if err != nil || n != 0 {
		t.Fatalf("IndexDocuments = %d, %v", n, err)
	}
	if store.Len() != before {
		t.Fatalf("count changed: %d -> %d", before, store.Len())
	}
}

func TestIndexDocumentsRequiresOwner(t *testing.T) {
	idx, _ := newTestIndex()
	_, err := idx.IndexDocuments(context.Background(), map[string]string{"p": "text"}, "x", "F", "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestDeleteAbsentFileIsNoop(t *testing.T) {
	ctx := context.Background()
	idx, store := newTestIndex()
	_, _ = idx.IndexDocuments(ctx, map[string]string{"p": "keep this chunk"}, "x", "F", "U")
	before := store.Len()
	if err := idx.DeleteByFileID(ctx, "missing", "U"); err != nil {
		t.Fatalf("DeleteByFileID: %v", err)
	}
	if store.Len() != before {
		t.Fatalf("count changed: %d -> %d", before, store.Len())
	}
}

func TestDeleteByFileIDHonoursTenant(t *testing.T) {
	ctx := context.Background()
	idx, store := newTestIndex()
	_, _ = idx.IndexDocuments(ctx, map[string]string{"p": "shared id text"}, "x", "F", "U1")
	if err := idx.DeleteByFileID(ctx, "F", "U2"); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 {
		t.Fatal("delete with foreign user_id removed chunks")
	}
}

func TestReplaceDocumentsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex()
	pages := map[string]string{"page_1": "first page", "page_2": "second page"}

	for run := 0; run < 2; run++ {
		if _, err := idx.ReplaceDocuments(ctx, pages, "doc.pdf", "F", "U"); err != nil {
			t.Fatal(err)
		}
		n, err := idx.CountChunks(ctx, "F", "U")
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Fatalf("run %d: chunk count = %d, want 2", run, n)
		}
	}
}

func TestReplaceDocumentsConcurrent(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = idx.ReplaceDocuments(ctx, map[string]string{"p": fmt.Sprintf("version %d", i)}, "d", "F", "U")
		}(i)
	}
	wg.Wait()
	if n, _ := idx.CountChunks(ctx, "F", "U"); n != 1 {
		t.Fatalf("chunk count = %d, want 1", n)
	}
}

func TestRelevance(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{1, 0.5},
		{3, 0.25},
		{-0.2, 1},
	}
	for _, tt := range tests {
		if got := Relevance(tt.distance); got != tt.want {
			t.Errorf("Relevance(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}
	if Relevance(0.1) < Relevance(0.2) {
		t.Error("relevance must not increase with distance")
	}
}

func TestSearchOrdersByRelevance(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex()
	_, _ = idx.IndexDocuments(ctx, map[string]string{
		"p1": "completely unrelated words",
		"p2": "quarterly revenue",
		"p3": "revenue",
	}, "r.pdf", "F", "U")
	got := idx.Search(ctx, "revenue", "U", 3, nil)
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].RelevanceScore > got[i-1].RelevanceScore {
			t.Fatalf("not sorted: %+v", got)
		}
	}
	if got[0].Metadata.Page != "p3" || got[0].RelevanceScore != 1 {
		t.Fatalf("best = %+v", got[0])
	}
}

type failingStore struct {
	vectorstore.Store
	calls int
}

func (f *failingStore) Query(context.Context, string, vectorstore.Filter, int) ([]vectorstore.Match, error) {
	f.calls++
	return nil, errors.New("store unavailable")
}

func TestSearchFailSoftAfterRetries(t *testing.T) {
	fs := &failingStore{}
	idx := NewIndex(fs, nil, Options{Retry: retry.Policy{MaxAttempts: 3}})
	got := idx.Search(context.Background(), "q", "U", 5, nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("got %v, want empty non-nil slice", got)
	}
	if fs.calls != 3 {
		t.Fatalf("calls = %d, want 3", fs.calls)
	}
}

// leakyStore ignores the filter and returns chunks of every tenant.
type leakyStore struct{ vectorstore.Store }

func (leakyStore) Query(context.Context, string, vectorstore.Filter, int) ([]vectorstore.Match, error) {
	return []vectorstore.Match{
		{Record: vectorstore.Record{ID: "1", Text: "mine", Metadata: model.ChunkMetadata{UserID: "A"}}},
		{Record: vectorstore.Record{ID: "2", Text: "theirs", Metadata: model.ChunkMetadata{UserID: "B"}}},
	}, nil
}

func TestSearchDropsForeignTenantResults(t *testing.T) {
	idx := NewIndex(leakyStore{}, nil, Options{})
	got := idx.Search(context.Background(), "q", "A", 5, nil)
	if len(got) != 1 || got[0].Text != "mine" {
		t.Fatalf("got %+v", got)
	}
}

func TestStatsAndTags(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex()
	_, _ = idx.IndexDocuments(ctx, map[string]string{"p1": "database migration guide", "p2": "database backup"}, "a", "F1", "U1")
	_, _ = idx.IndexDocuments(ctx, map[string]string{"p1": "holiday calendar"}, "b", "F2", "U2")

	stats, err := idx.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalChunks != 3 || stats.DistinctFiles != 2 || stats.DistinctUsers != 2 || stats.Truncated {
		t.Fatalf("stats = %+v", stats)
	}

	tags, err := idx.GetFileTags(ctx, "F1", "U1")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"database": true, "migration": true, "guide": true, "backup": true}
	if len(tags) != len(want) {
		t.Fatalf("tags = %v", tags)
	}
	for _, tag := range tags {
		if !want[tag] {
			t.Fatalf("unexpected tag %q", tag)
		}
	}
}

func TestStatsTruncatesAtCeiling(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(memory.NewStore(), nil, Options{MaxDocuments: 2})
	_, _ = idx.IndexDocuments(ctx, map[string]string{"a": "one1", "b": "two2", "c": "three"}, "d", "F", "U")
	stats, _ := idx.GetStats(ctx)
	if stats.TotalChunks != 2 || !stats.Truncated {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestStatsExactlyAtCeilingIsNotTruncated(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(memory.NewStore(), nil, Options{MaxDocuments: 2})
	_, _ = idx.IndexDocuments(ctx, map[string]string{"a": "one1", "b": "two2"}, "d", "F", "U")
	stats, err := idx.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalChunks != 2 || stats.Truncated {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestSortPageLabels(t *testing.T) {
	labels := []string{"page_10", "page_2", "sheet_b", "page_1", "page_9", "sheet_a", "cover"}
	sortPageLabels(labels)
	want := []string{"cover", "page_1", "page_2", "page_9", "page_10", "sheet_a", "sheet_b"}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels = %v, want %v", labels, want)
		}
	}
}

func TestIndexDocumentsWritesChunksInPageOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	idx := NewIndex(store, nil, Options{})
	seq := 0
	idx.newID = func() string {
		seq++
		return fmt.Sprintf("c%d", seq)
	}

	pages := map[string]string{"page_10": "ten", "page_2": "two", "page_1": "one", "page_3": "  "}
	chunks := idx.buildChunks(pages, "doc.pdf", "F", "U")
	if len(chunks) != 3 {
		t.Fatalf("chunks = %+v", chunks)
	}
	for i, want := range []model.Chunk{
		{ChunkID: "c1", Text: "one"},
		{ChunkID: "c2", Text: "two"},
		{ChunkID: "c3", Text: "ten"},
	} {
		if chunks[i].ChunkID != want.ChunkID || chunks[i].Text != want.Text {
			t.Fatalf("chunk %d = %+v, want %+v", i, chunks[i], want)
		}
		if chunks[i].Metadata.FileID != "F" || chunks[i].Metadata.UserID != "U" || chunks[i].Metadata.Source != "doc.pdf" {
			t.Fatalf("chunk %d metadata = %+v", i, chunks[i].Metadata)
		}
		if !chunks[i].Metadata.IndexedAt.Equal(chunks[0].Metadata.IndexedAt) {
			t.Fatal("chunks of one call must share indexed_at")
		}
	}

	if _, err := idx.IndexDocuments(ctx, pages, "doc.pdf", "F", "U"); err != nil {
		t.Fatal(err)
	}
	records, err := store.Scan(ctx, vectorstore.Filter{model.FieldFileID: "F"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range records {
		got = append(got, r.Metadata.Page)
	}
	want := []string{"page_1", "page_2", "page_10"}
	if len(got) != len(want) {
		t.Fatalf("pages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pages = %v, want %v", got, want)
		}
	}
}

func TestDeleteByUserIDRemovesBeyondCeiling(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	idx := NewIndex(store, nil, Options{MaxDocuments: 2})
	_, _ = idx.IndexDocuments(ctx, map[string]string{"a": "one1", "b": "two2", "c": "three", "d": "four"}, "d", "F", "U")
	_, _ = idx.IndexDocuments(ctx, map[string]string{"a": "keep"}, "d", "G", "V")
	if err := idx.DeleteByUserID(ctx, "U"); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 {
		t.Fatalf("remaining = %d, want 1", store.Len())
	}
}
