package model

import (
	"testing"
	"time"
)

func TestLocalTimeMarshalJSON(t *testing.T) {
	ts := LocalTime(time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC))
	b, err := ts.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"2024-03-05 07:08:09"` {
		t.Fatalf("got %s", b)
	}
}

func TestChunkMetadataField(t *testing.T) {
	m := ChunkMetadata{FileID: "f", UserID: "u", Source: "a.pdf", Page: "page_1"}
	for key, want := range map[string]string{FieldFileID: "f", FieldUserID: "u", FieldSource: "a.pdf", FieldPage: "page_1"} {
		got, ok := m.Field(key)
		if !ok || got != want {
			t.Errorf("Field(%s) = %q, %v", key, got, ok)
		}
	}
	if _, ok := m.Field(FieldTags); ok {
		t.Error("tags is not a scalar field")
	}
}

func TestLocalTimeUnmarshalJSON(t *testing.T) {
	var lt LocalTime
	if err := lt.UnmarshalJSON([]byte(`"2024-03-05 07:08:09"`)); err != nil {
		t.Fatal(err)
	}
	if lt.String() != "2024-03-05 07:08:09" {
		t.Fatalf("got %s", lt)
	}
	if err := lt.UnmarshalJSON([]byte(`null`)); err != nil || !time.Time(lt).IsZero() {
		t.Fatalf("null = %v, %v", lt, err)
	}
	if err := lt.UnmarshalJSON([]byte(`"yesterday"`)); err == nil {
		t.Fatal("expected parse error")
	}
}
