package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"docsage-go/internal/model"
	"docsage-go/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = buf.Bytes()
	return nil
}

func (m *memBlobs) PutBytes(ctx context.Context, key string, data []byte, ct string) error {
	return m.Put(ctx, key, bytes.NewReader(data), int64(len(data)), ct)
}

func (m *memBlobs) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memBlobs) RemovePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
			n++
		}
	}
	return n, nil
}

type memConversations struct {
	turns map[string][]model.ConversationTurn
}

func (m *memConversations) Append(_ context.Context, userID string, turns ...model.ConversationTurn) error {
	m.turns[userID] = append(m.turns[userID], turns...)
	return nil
}

func (m *memConversations) History(_ context.Context, userID string) ([]model.ConversationTurn, error) {
	return append([]model.ConversationTurn{}, m.turns[userID]...), nil
}

func (m *memConversations) Clear(_ context.Context, userID string) error {
	delete(m.turns, userID)
	return nil
}

func newFileRepo(t *testing.T) repository.FileRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&model.FileRecord{}); err != nil {
		t.Fatal(err)
	}
	return repository.NewFileRepository(db)
}
