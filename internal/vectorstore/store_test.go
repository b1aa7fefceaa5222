package vectorstore

import (
	"testing"

	"docsage-go/internal/model"
)

func TestFilterMatches(t *testing.T) {
	meta := model.ChunkMetadata{FileID: "f1", UserID: "u1", Source: "a.pdf", Page: "page_1"}
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"tenant match", Filter{model.FieldUserID: "u1"}, true},
		{"tenant mismatch", Filter{model.FieldUserID: "u2"}, false},
		{"all keys", Filter{model.FieldUserID: "u1", model.FieldFileID: "f1"}, true},
		{"unknown key", Filter{"color": "red"}, false},
	}
	for _, tt := range tests {
		if got := tt.filter.Matches(meta); got != tt.want {
			t.Errorf("%s: Matches = %v, want %v", tt.name, got, tt.want)
		}
	}
}
