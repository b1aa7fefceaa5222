package elastic

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docsage-go/internal/model"
	"docsage-go/internal/vectorstore"

	"github.com/elastic/go-elasticsearch/v8"
)

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func newTestStore(t *testing.T, h http.HandlerFunc) (*Store, *fakeEmbedder) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	if err != nil {
		t.Fatal(err)
	}
	emb := &fakeEmbedder{}
	return NewStore(client, emb, "chunks"), emb
}

func TestQueryBuildsTenantFilterAndConvertsScore(t *testing.T) {
	var body map[string]any
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chunks/_search") {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"hits":{"hits":[
			{"_id":"c2","_score":0.75,"_source":{"chunk_id":"c2","user_id":"u1","file_id":"f1","text":"b"}},
			{"_id":"c1","_score":1.0,"_source":{"chunk_id":"c1","user_id":"u1","file_id":"f1","text":"a"}}
		]}}`)
	})

	got, err := s.Query(context.Background(), "q", vectorstore.Filter{model.FieldUserID: "u1"}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c1" || got[0].Distance != 0 {
		t.Fatalf("got %+v", got)
	}
	if math.Abs(got[1].Distance-0.5) > 1e-9 {
		t.Fatalf("distance = %v, want 0.5", got[1].Distance)
	}

	knn := body["knn"].(map[string]any)
	if knn["k"].(float64) != 3 {
		t.Fatalf("k = %v", knn["k"])
	}
	raw, _ := json.Marshal(knn["filter"])
	if !strings.Contains(string(raw), `{"term":{"user_id":"u1"}}`) {
		t.Fatalf("filter = %s", raw)
	}
}

func TestAddSendsBulkWithVectors(t *testing.T) {
	var lines []string
	s, emb := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/_bulk") {
			t.Errorf("path = %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		lines = strings.Split(strings.TrimSpace(string(b)), "\n")
		_, _ = io.WriteString(w, `{"errors":false,"items":[]}`)
	})

	err := s.Add(context.Background(), []string{"c1", "c2"}, []string{"a", "b"},
		[]model.ChunkMetadata{{FileID: "f", UserID: "u"}, {FileID: "f", UserID: "u"}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if emb.calls != 1 {
		t.Fatalf("embedding calls = %d, want one batch", emb.calls)
	}
	if len(lines) != 4 {
		t.Fatalf("bulk lines = %d, want 4", len(lines))
	}
	if !strings.Contains(lines[0], `"_id":"c1"`) || !strings.Contains(lines[1], `"vector":[0,1]`) {
		t.Fatalf("bulk body = %v", lines)
	}
}

func TestBulkItemErrorSurfaces(t *testing.T) {
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"errors":true,"items":[{"index":{"status":400,"error":{"type":"mapper_parsing_exception","reason":"bad"}}}]}`)
	})
	err := s.Add(context.Background(), []string{"c"}, []string{"t"}, []model.ChunkMetadata{{}})
	if err == nil || !strings.Contains(err.Error(), "mapper_parsing_exception") {
		t.Fatalf("err = %v", err)
	}
}

func TestDeleteIgnoresNotFound(t *testing.T) {
	s, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"errors":true,"items":[{"delete":{"status":404,"error":{"type":"not_found","reason":"missing"}}}]}`)
	})
	if err := s.Delete(context.Background(), []string{"gone"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
