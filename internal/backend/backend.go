// Package backend is the HTTP client for the OpenAI-compatible chat
// completions endpoint: request construction, SSE stream decoding, and
// tool-call delta accumulation.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/unixagent/unixagent/internal/protocol"
)

// Config carries the per-call model parameters, mirroring a resolved
// model-alias entry from the config file.
type Config struct {
	Model       string
	APIKey      string
	APIBase     string
	Temperature *float64
	Seed        int
	MaxTokens   int
	Extra       map[string]interface{}
}

// ToolSpec describes a function the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Client issues chat completion requests against a single resolved
// model configuration.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg, http: &http.Client{}}
}

func (c *Client) resolveAPI() (apiKey, apiBase string, err error) {
	apiKey = c.cfg.APIKey
	apiBase = c.cfg.APIBase
	if apiBase == "" {
		return "", "", fmt.Errorf("backend: no api_base configured for model %q", c.cfg.Model)
	}
	apiBase = strings.TrimSuffix(apiBase, "/")
	return apiKey, apiBase, nil
}

func urlJoin(base, rel string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	relURL, err := url.Parse(rel)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(relURL).String(), nil
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireToolCallFunc `json:"function"`
}

type wireToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

func toWireMessages(messages []protocol.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		role := string(m.Role)
		if len(m.ToolResults) > 0 {
			for _, tr := range m.ToolResults {
				out = append(out, wireMessage{Role: "tool", ToolCallID: tr.ToolUseID, Content: tr.Content})
			}
			continue
		}
		wm := wireMessage{Role: role, Content: m.Content}
		for _, tu := range m.ToolUses {
			args, _ := json.Marshal(tu.Input)
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tu.ID,
				Type: "function",
				Function: wireToolCallFunc{
					Name:      tu.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []ToolSpec) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{
			Type: "function",
			Function: wireToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func (c *Client) buildRequest(ctx context.Context, messages []protocol.Message, tools []ToolSpec, stream bool) (*http.Request, error) {
	apiKey, apiBase, err := c.resolveAPI()
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"model":    c.cfg.Model,
		"messages": toWireMessages(messages),
		"stream":   stream,
	}
	if c.cfg.Temperature != nil {
		body["temperature"] = *c.cfg.Temperature
	}
	if c.cfg.Seed != 0 {
		body["seed"] = c.cfg.Seed
	}
	if c.cfg.MaxTokens != 0 {
		body["max_tokens"] = c.cfg.MaxTokens
	}
	if wt := toWireTools(tools); wt != nil {
		body["tools"] = wt
	}
	for k, v := range c.cfg.Extra {
		body[k] = v
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	chatURL, err := urlJoin(apiBase+"/", "chat/completions")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", chatURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

type deltaToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			Reasoning string          `json:"reasoning"`
			ToolCalls []deltaToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

type accumTool struct {
	id, name, args string
}

// Stream issues a streaming chat completion, emitting text/thinking
// deltas as they arrive and a final EventToolUse per accumulated tool
// call once its arguments are complete. The channel is closed when the
// response finishes or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, messages []protocol.Message, tools []ToolSpec) (<-chan protocol.StreamEvent, error) {
	req, err := c.buildRequest(ctx, messages, tools, true)
	if err != nil {
		return nil, protocol.Wrap(protocol.KindProtocol, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, protocol.Wrap(protocol.KindTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, protocol.Wrap(protocol.KindTransport, fmt.Errorf("backend: API error (status %d): %s", resp.StatusCode, string(body)))
	}

	ch := make(chan protocol.StreamEvent)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		tools := map[int]*accumTool{}
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimSpace(line[len("data: "):])
			if data == "[DONE]" {
				emitToolCalls(ch, tools)
				ch <- protocol.StreamEvent{Kind: protocol.EventDone}
				return
			}

			var ck chunk
			if err := json.Unmarshal([]byte(data), &ck); err != nil {
				continue
			}
			if ck.Usage.PromptTokens > 0 || ck.Usage.CompletionTokens > 0 {
				ch <- protocol.StreamEvent{Kind: protocol.EventUsage, Usage: protocol.Usage{
					InputTokens:  ck.Usage.PromptTokens,
					OutputTokens: ck.Usage.CompletionTokens,
				}}
			}
			if len(ck.Choices) == 0 {
				continue
			}
			delta := ck.Choices[0].Delta
			if delta.Reasoning != "" {
				ch <- protocol.StreamEvent{Kind: protocol.EventThinking, Text: delta.Reasoning}
			}
			if delta.Content != "" {
				ch <- protocol.StreamEvent{Kind: protocol.EventText, Text: delta.Content}
			}
			for _, tc := range delta.ToolCalls {
				a, ok := tools[tc.Index]
				if !ok {
					a = &accumTool{}
					tools[tc.Index] = a
				}
				if tc.ID != "" {
					a.id = tc.ID
				}
				if tc.Function.Name != "" {
					a.name += tc.Function.Name
				}
				a.args += tc.Function.Arguments
			}
			if ck.Choices[0].FinishReason != nil {
				emitToolCalls(ch, tools)
				tools = map[int]*accumTool{}
			}
		}
	}()

	return ch, nil
}

func emitToolCalls(ch chan<- protocol.StreamEvent, tools map[int]*accumTool) {
	for i := 0; i < len(tools); i++ {
		t, ok := tools[i]
		if !ok || t.name == "" {
			continue
		}
		var input map[string]interface{}
		_ = json.Unmarshal([]byte(t.args), &input)
		ch <- protocol.StreamEvent{Kind: protocol.EventToolUse, ToolUse: protocol.ToolUseRecord{
			ID:    t.id,
			Name:  t.name,
			Input: input,
		}}
	}
}

// Complete issues a single non-streaming chat completion and returns
// the first choice's text content. Used by the judge, which needs one
// verdict rather than an incremental stream.
func (c *Client) Complete(ctx context.Context, messages []protocol.Message) (string, protocol.Usage, error) {
	req, err := c.buildRequest(ctx, messages, nil, false)
	if err != nil {
		return "", protocol.Usage{}, protocol.Wrap(protocol.KindProtocol, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", protocol.Usage{}, protocol.Wrap(protocol.KindTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", protocol.Usage{}, protocol.Wrap(protocol.KindTransport, fmt.Errorf("backend: API error (status %d): %s", resp.StatusCode, string(body)))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", protocol.Usage{}, protocol.Wrap(protocol.KindProtocol, err)
	}
	if len(out.Choices) == 0 {
		return "", protocol.Usage{}, protocol.Wrap(protocol.KindProtocol, fmt.Errorf("backend: no choices returned"))
	}

	return out.Choices[0].Message.Content, protocol.Usage{
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}, nil
}
