package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/infrastructure/config"
)

// fakeSettings 内存设置仓储
type fakeSettings struct {
	values map[string]string
}

func (f *fakeSettings) Get(key string) (string, error) {
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", apperr.Newf(apperr.KindNotFound, "setting %s not found", key)
}

func (f *fakeSettings) Put(key, value string) error {
	f.values[key] = value
	return nil
}

func newStreamClient(t *testing.T, chunks []string) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	cfg := config.NewConfig()
	cfg.Provider.BaseURL = srv.URL
	return NewClient(cfg, &fakeSettings{values: map[string]string{}})
}

func collectFrames(t *testing.T, frames <-chan Frame) []Frame {
	t.Helper()
	var out []Frame
	for f := range frames {
		out = append(out, f)
	}
	return out
}

func TestStreamChat_ContentAndThinking(t *testing.T) {
	client := newStreamClient(t, []string{
		`{"choices":[{"index":0,"delta":{"reasoning":"let me think"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	})

	frames, err := client.StreamChat(context.Background(), "test-model", []ChatMessage{{Role: "user", Content: "hi"}}, nil)
	require.NoError(t, err)

	got := collectFrames(t, frames)
	require.Len(t, got, 4)
	assert.Equal(t, FrameThinking, got[0].Type)
	assert.Equal(t, "let me think", got[0].Content)
	assert.Equal(t, FrameContent, got[1].Type)
	assert.Equal(t, FrameContent, got[2].Type)
	assert.Equal(t, FrameDone, got[3].Type)
	assert.Equal(t, "stop", got[3].FinishReason)
}

func TestStreamChat_AssemblesToolCallDeltas(t *testing.T) {
	client := newStreamClient(t, []string{
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"add_todo","arguments":"{\"it"}}]}}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"em\":\"x\"}"}}]}}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	})

	frames, err := client.StreamChat(context.Background(), "test-model", []ChatMessage{{Role: "user", Content: "add x"}}, nil)
	require.NoError(t, err)

	got := collectFrames(t, frames)
	require.Len(t, got, 2)

	// 增量必须在编排器看到之前组装为完整调用
	require.Equal(t, FrameToolCall, got[0].Type)
	require.Len(t, got[0].ToolCalls, 1)
	assert.Equal(t, "call_1", got[0].ToolCalls[0].ID)
	assert.Equal(t, "add_todo", got[0].ToolCalls[0].Name)
	assert.JSONEq(t, `{"item":"x"}`, got[0].ToolCalls[0].Arguments)

	assert.Equal(t, FrameDone, got[1].Type)
}

func TestStreamChat_IncompleteToolArgumentsIsError(t *testing.T) {
	client := newStreamClient(t, []string{
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"add_todo","arguments":"{\"item\":\"tru"}}]}}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	})

	frames, err := client.StreamChat(context.Background(), "test-model", []ChatMessage{{Role: "user", Content: "x"}}, nil)
	require.NoError(t, err)

	got := collectFrames(t, frames)
	require.Len(t, got, 1)
	assert.Equal(t, FrameError, got[0].Type)
	require.Error(t, got[0].Err)
	assert.Contains(t, got[0].Err.Error(), "incomplete arguments")
}

func TestStreamChat_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := config.NewConfig()
	cfg.Provider.BaseURL = srv.URL
	client := NewClient(cfg, &fakeSettings{values: map[string]string{}})

	_, err := client.StreamChat(context.Background(), "test-model", []ChatMessage{{Role: "user", Content: "x"}}, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUpstreamUnavailable))
}

func TestClient_RestoresPersistedModel(t *testing.T) {
	cfg := config.NewConfig()
	client := NewClient(cfg, &fakeSettings{values: map[string]string{
		"current_model": "saved-model",
	}})
	assert.Equal(t, "saved-model", client.CurrentModel())
}

func TestClient_ListModelsFallback(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Provider.BaseURL = "http://127.0.0.1:1" // 不可达
	cfg.Provider.DefaultModelID = "fallback-model"
	client := NewClient(cfg, &fakeSettings{values: map[string]string{}})

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "fallback-model", models[0].ID)
}
