package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"docsage-go/internal/model"
	"docsage-go/pkg/llm"
	"docsage-go/pkg/retry"
)

type fakeLLM struct {
	reply    string
	err      error
	calls    int
	models   []string
	lastMsgs []llm.Message
	lastID   string
}

func (f *fakeLLM) Chat(_ context.Context, model string, messages []llm.Message) (string, error) {
	f.calls++
	f.lastID = model
	f.lastMsgs = messages
	return f.reply, f.err
}

func (f *fakeLLM) ListModels(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.models, nil
}

type fakeRetriever struct {
	results []model.RetrievalResult
	userID  string
}

func (f *fakeRetriever) Search(_ context.Context, _, userID string, _ int, _ map[string]string) []model.RetrievalResult {
	f.userID = userID
	return f.results
}

func TestGenerateResponseWithContext(t *testing.T) {
	r := &fakeRetriever{results: []model.RetrievalResult{
		{Text: "Invoices due in 30 days.", RelevanceScore: 0.8123, Metadata: model.ChunkMetadata{FileID: "F1"}},
	}}
	l := &fakeLLM{reply: "30 days"}
	svc := NewChatService(r, l, ChatOptions{DefaultModel: "qwen2:0.5b"})

	resp := svc.GenerateResponse(context.Background(), "when are invoices due?", "U1", "")
	if resp.Content != "30 days" || resp.ModelID != "qwen2:0.5b" || len(resp.RAGContext) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if r.userID != "U1" {
		t.Fatalf("retriever saw user %q", r.userID)
	}
	prompt := l.lastMsgs[0].Content
	for _, want := range []string{"[Relevance: 0.81] Invoices due in 30 days.", "Question:\nwhen are invoices due?", "use your own knowledge"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGenerateResponseWithoutContextUsesRawQuery(t *testing.T) {
	l := &fakeLLM{reply: "hi"}
	svc := NewChatService(&fakeRetriever{}, l, ChatOptions{DefaultModel: "d"})
	resp := svc.GenerateResponse(context.Background(), "hello", "U1", "llama3")
	if l.lastMsgs[0].Content != "hello" {
		t.Fatalf("prompt = %q, want raw query", l.lastMsgs[0].Content)
	}
	if resp.ModelID != "llama3" || l.lastID != "llama3" {
		t.Fatalf("model = %s / %s", resp.ModelID, l.lastID)
	}
	if resp.RAGContext == nil {
		t.Fatal("ragContext should be an empty slice, not nil")
	}
}

func TestGenerateResponseSkipsRetrievalWithoutUser(t *testing.T) {
	r := &fakeRetriever{results: []model.RetrievalResult{{Text: "secret"}}}
	l := &fakeLLM{reply: "ok"}
	resp := NewChatService(r, l, ChatOptions{}).GenerateResponse(context.Background(), "q", "", "m")
	if len(resp.RAGContext) != 0 || l.lastMsgs[0].Content != "q" {
		t.Fatalf("retrieval ran without user: %+v", resp)
	}
}

func TestGenerateResponseFailSoft(t *testing.T) {
	r := &fakeRetriever{results: []model.RetrievalResult{{Text: "ctx", RelevanceScore: 1}}}
	l := &fakeLLM{err: errors.New("connection refused")}
	svc := NewChatService(r, l, ChatOptions{DefaultModel: "d", Retry: retry.Policy{MaxAttempts: 3}})

	resp := svc.GenerateResponse(context.Background(), "q", "U1", "m1")
	if resp.Content != ApologyResponse {
		t.Fatalf("content = %q", resp.Content)
	}
	if len(resp.RAGContext) != 0 {
		t.Fatalf("ragContext = %v, want empty", resp.RAGContext)
	}
	if resp.ModelID != "m1" {
		t.Fatalf("model = %s, want attempted model", resp.ModelID)
	}
	if l.calls != 3 {
		t.Fatalf("calls = %d, want 3 attempts", l.calls)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	l := &fakeLLM{err: &llm.StatusError{StatusCode: http.StatusNotFound, Body: "no model"}}
	svc := NewChatService(nil, l, ChatOptions{DefaultModel: "d", Retry: retry.Policy{MaxAttempts: 3}})
	resp := svc.SummarizeText(context.Background(), "text", "")
	if resp.Content != ApologySummary || resp.ModelID != "d" {
		t.Fatalf("resp = %+v", resp)
	}
	if l.calls != 1 {
		t.Fatalf("calls = %d, want 1", l.calls)
	}
}

func TestSummarizeAndHumanize(t *testing.T) {
	l := &fakeLLM{reply: "done"}
	svc := NewChatService(nil, l, ChatOptions{DefaultModel: "d"})

	if resp := svc.SummarizeText(context.Background(), "long text", ""); resp.Content != "done" {
		t.Fatalf("summary = %+v", resp)
	}
	if !strings.HasPrefix(l.lastMsgs[0].Content, summarizeInstruction) || !strings.HasSuffix(l.lastMsgs[0].Content, "long text") {
		t.Fatalf("summary prompt = %q", l.lastMsgs[0].Content)
	}

	if resp := svc.HumanizeText(context.Background(), "stiff text", "x"); resp.ModelID != "x" {
		t.Fatalf("humanize = %+v", resp)
	}
	if !strings.HasPrefix(l.lastMsgs[0].Content, humanizeInstruction) {
		t.Fatalf("humanize prompt = %q", l.lastMsgs[0].Content)
	}

	l.err = errors.New("down")
	if resp := svc.HumanizeText(context.Background(), "t", ""); resp.Content != ApologyHumanize {
		t.Fatalf("humanize failure = %+v", resp)
	}
}

func TestAvailableModels(t *testing.T) {
	l := &fakeLLM{models: []string{"a", "b"}}
	svc := NewChatService(nil, l, ChatOptions{DefaultModel: "d"})
	if got := svc.AvailableModels(context.Background()); len(got) != 2 {
		t.Fatalf("models = %v", got)
	}
	l.err = errors.New("down")
	if got := svc.AvailableModels(context.Background()); len(got) != 1 || got[0] != "d" {
		t.Fatalf("fallback = %v", got)
	}
}
