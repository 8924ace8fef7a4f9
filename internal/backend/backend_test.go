package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/unixagent/unixagent/internal/protocol"
)

func TestCompleteReturnsContentAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected Authorization header, got %q", r.Header.Get("Authorization"))
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["stream"] != false {
			t.Errorf("expected stream:false, got %v", body["stream"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"all clear"}}],"usage":{"prompt_tokens":12,"completion_tokens":4}}`))
	}))
	defer srv.Close()

	c := New(Config{Model: "test-model", APIKey: "test-key", APIBase: srv.URL})
	text, usage, err := c.Complete(context.Background(), []protocol.Message{
		{Role: protocol.RoleUser, Content: "is this safe?"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "all clear" {
		t.Fatalf("expected 'all clear', got %q", text)
	}
	if usage.InputTokens != 12 || usage.OutputTokens != 4 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestCompleteErrorsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	c := New(Config{Model: "test-model", APIKey: "k", APIBase: srv.URL})
	_, _, err := c.Complete(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected an error for a non-200 response")
	}
	var pe *protocol.Error
	if !errors.As(err, &pe) || pe.Kind != protocol.KindTransport {
		t.Fatalf("expected a KindTransport protocol.Error, got %v", err)
	}
}

func TestResolveAPIErrorsWithoutAPIBase(t *testing.T) {
	c := New(Config{Model: "m"})
	if _, _, err := c.resolveAPI(); err == nil {
		t.Fatalf("expected error when api_base is unset")
	}
}

func TestStreamEmitsTextThenDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer srv.Close()

	c := New(Config{Model: "m", APIKey: "k", APIBase: srv.URL})
	ch, err := c.Stream(context.Background(), []protocol.Message{{Role: protocol.RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var text string
	var sawDone bool
	for ev := range ch {
		switch ev.Kind {
		case protocol.EventText:
			text += ev.Text
		case protocol.EventDone:
			sawDone = true
		}
	}
	if text != "hello" {
		t.Fatalf("expected accumulated text 'hello', got %q", text)
	}
	if !sawDone {
		t.Fatalf("expected a terminal EventDone")
	}
}

func TestStreamAccumulatesToolCallAcrossDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		w.Write([]byte(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"shell","arguments":""}}]}}]}` + "\n\n"))
		flusher.Flush()
		w.Write([]byte(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"command\""}}]}}]}` + "\n\n"))
		flusher.Flush()
		w.Write([]byte(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":":\"ls\"}"}}]}}],"finish_reason":"tool_calls"}` + "\n\n"))
		flusher.Flush()
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer srv.Close()

	c := New(Config{Model: "m", APIKey: "k", APIBase: srv.URL})
	ch, err := c.Stream(context.Background(), []protocol.Message{{Role: protocol.RoleUser, Content: "list files"}}, nil)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var gotToolUse bool
	for ev := range ch {
		if ev.Kind == protocol.EventToolUse {
			gotToolUse = true
			if ev.ToolUse.Name != "shell" {
				t.Fatalf("expected tool name 'shell', got %q", ev.ToolUse.Name)
			}
			if ev.ToolUse.Input["command"] != "ls" {
				t.Fatalf("expected accumulated command 'ls', got %v", ev.ToolUse.Input)
			}
		}
	}
	if !gotToolUse {
		t.Fatalf("expected an EventToolUse")
	}
}

func TestToWireMessagesConvertsToolResultsToToolRole(t *testing.T) {
	msgs := []protocol.Message{
		{Role: protocol.RoleUser, ToolResults: []protocol.ToolResultRecord{
			{ToolUseID: "call_1", Content: "done"},
		}},
	}
	wire := toWireMessages(msgs)
	if len(wire) != 1 || wire[0].Role != "tool" || wire[0].ToolCallID != "call_1" || wire[0].Content != "done" {
		t.Fatalf("unexpected wire messages: %+v", wire)
	}
}

func TestToWireMessagesConvertsToolUsesToToolCalls(t *testing.T) {
	msgs := []protocol.Message{
		{Role: protocol.RoleAssistant, Content: "running it", ToolUses: []protocol.ToolUseRecord{
			{ID: "call_2", Name: "shell", Input: map[string]interface{}{"command": "pwd"}},
		}},
	}
	wire := toWireMessages(msgs)
	if len(wire) != 1 || len(wire[0].ToolCalls) != 1 {
		t.Fatalf("unexpected wire messages: %+v", wire)
	}
	tc := wire[0].ToolCalls[0]
	if tc.ID != "call_2" || tc.Function.Name != "shell" {
		t.Fatalf("unexpected tool call: %+v", tc)
	}
}

func TestURLJoinAppendsPath(t *testing.T) {
	got, err := urlJoin("https://api.example.com/v1/", "chat/completions")
	if err != nil {
		t.Fatalf("urlJoin: %v", err)
	}
	want := "https://api.example.com/v1/chat/completions"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
