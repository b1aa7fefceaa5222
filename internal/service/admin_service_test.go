package service

import (
	"context"
	"strings"
	"testing"

	"docsage-go/internal/knowledgebase"
	"docsage-go/internal/model"
	"docsage-go/internal/vectorstore/memory"
)

func TestPurgeUser(t *testing.T) {
	ctx := context.Background()
	idx := knowledgebase.NewIndex(memory.NewStore(), nil, knowledgebase.Options{})
	files := newFileRepo(t)
	blobs := newMemBlobs()

	_, _ = idx.IndexDocuments(ctx, map[string]string{"p": "tenant one text"}, "a", "f1", "u1")
	_, _ = idx.IndexDocuments(ctx, map[string]string{"p": "tenant two text"}, "b", "f2", "u2")
	_ = files.Create(ctx, &model.FileRecord{FileID: "f1", UserID: "u1", StoragePath: "uploads/u1/f1/a", Filename: "a"})
	_ = blobs.PutBytes(ctx, "uploads/u1/f1/a", []byte("x"), "")
	_ = blobs.PutBytes(ctx, "uploads/u2/f2/b", []byte("y"), "")

	svc := NewAdminService(idx, files, blobs)
	res, err := svc.PurgeUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if res.FilesRemoved != 1 || res.ObjectsRemoved != 1 {
		t.Fatalf("result = %+v", res)
	}
	stats, _ := svc.Stats(ctx)
	if stats.TotalChunks != 1 || stats.DistinctUsers != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	for k := range blobs.objects {
		if strings.HasPrefix(k, "uploads/u1/") {
			t.Fatalf("object %s survived purge", k)
		}
	}
}
