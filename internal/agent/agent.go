package agent

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

const (
	defaultModel         = "claude-haiku-4-5-20251001"
	defaultMaxTokens     = 4096
	defaultMaxIterations = 20
	defaultRetryElapsed  = time.Minute
	responseSeparator    = "\n\n" + "================================================================================" + "\n\n"
)

// MessageService is the part of the Anthropic client the agent needs.
// *anthropic.MessageService satisfies it.
type MessageService interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// ToolCaller lists and invokes the tools of an MCP server.
type ToolCaller interface {
	ListTools(ctx context.Context) ([]*mcp.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (any, error)
}

// Config configures an Agent. Zero values select defaults.
type Config struct {
	Model        string
	MaxTokens    int64
	SystemPrompt string
	// MaxIterations bounds the model calls made for one user message.
	MaxIterations int

	// Logger receives tool calls and results.
	Logger *slog.Logger
	// Responses receives every raw model response.
	Responses io.Writer
	// Output receives text the model emits alongside tool calls.
	Output io.Writer

	// BackOff paces retries of rate limited or failed model calls.
	BackOff backoff.BackOff
	// RetryOptions replace the default retry limits.
	RetryOptions []backoff.RetryOption
}

// Agent is a multi-turn conversation with tool use. Chat calls are serialized.
type Agent struct {
	messages MessageService
	tools    ToolCaller
	cfg      Config
	log      *slog.Logger

	mu        sync.Mutex
	history   []anthropic.MessageParam
	toolDefs  []anthropic.ToolUnionParam
	toolNames []string
}

// New creates an Agent.
func New(messages MessageService, tools ToolCaller, cfg Config) *Agent {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = SystemPrompt
	}

	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}

	if cfg.Responses == nil {
		cfg.Responses = io.Discard
	}

	if cfg.Output == nil {
		cfg.Output = io.Discard
	}

	if cfg.BackOff == nil {
		cfg.BackOff = backoff.NewExponentialBackOff()
	}

	if len(cfg.RetryOptions) == 0 {
		cfg.RetryOptions = []backoff.RetryOption{backoff.WithMaxElapsedTime(defaultRetryElapsed)}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Agent{
		messages: messages,
		tools:    tools,
		cfg:      cfg,
		log:      log.With("component", "agent"),
	}
}

// LoadTools fetches the server's tools and offers them to the model on every
// following call.
func (a *Agent) LoadTools(ctx context.Context) error {
	tools, err := a.tools.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}

	defs := make([]anthropic.ToolUnionParam, 0, len(tools))
	names := make([]string, 0, len(tools))

	for _, tool := range tools {
		param, err := toolParam(tool)
		if err != nil {
			return fmt.Errorf("convert tool %s: %w", tool.Name, err)
		}

		defs = append(defs, anthropic.ToolUnionParam{OfTool: &param})
		names = append(names, tool.Name)
	}

	a.mu.Lock()
	a.toolDefs = defs
	a.toolNames = names
	a.mu.Unlock()

	a.log.Info("tools loaded", "tools", strings.Join(names, ","))

	return nil
}

// ToolNames returns the names of the loaded tools.
func (a *Agent) ToolNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]string(nil), a.toolNames...)
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []anthropic.MessageParam {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]anthropic.MessageParam(nil), a.history...)
}

// toolParam converts an MCP tool to the model's tool definition.
func toolParam(tool *mcp.Tool) (anthropic.ToolParam, error) {
	var schema struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}

	if tool.InputSchema != nil {
		raw, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return anthropic.ToolParam{}, err
		}

		if err := json.Unmarshal(raw, &schema); err != nil {
			return anthropic.ToolParam{}, err
		}
	}

	param := anthropic.ToolParam{
		Name: tool.Name,
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: schema.Properties,
		},
	}

	if len(schema.Required) > 0 {
		param.InputSchema.ExtraFields = map[string]any{"required": schema.Required}
	}

	if tool.Description != "" {
		param.Description = anthropic.String(tool.Description)
	}

	return param, nil
}

// Chat sends userMessage and runs the tool loop until the model ends its
// turn. It returns the model's final text.
func (a *Agent) Chat(ctx context.Context, userMessage string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = append(a.history, userParam(anthropic.NewTextBlock(userMessage)))

	for range a.cfg.MaxIterations {
		resp, err := a.createMessage(ctx)
		if err != nil {
			return "", err
		}

		a.recordResponse(resp)

		switch resp.StopReason {
		case anthropic.StopReasonToolUse:
			a.history = append(a.history, assistantParam(resp))

			results, err := a.runTools(ctx, resp)
			if err != nil {
				return "", err
			}

			a.history = append(a.history, userParam(results...))
		case anthropic.StopReasonEndTurn:
			var final strings.Builder

			for _, block := range resp.Content {
				if block.Type == "text" {
					final.WriteString(block.Text)
				}
			}

			a.history = append(a.history, assistantParam(resp))

			return final.String(), nil
		default:
			a.log.Warn("unexpected stop reason", "stop_reason", string(resp.StopReason))

			return FallbackResponse, nil
		}
	}

	a.log.Warn("tool loop limit reached", "iterations", a.cfg.MaxIterations)

	return FallbackResponse, nil
}

func (a *Agent) createMessage(ctx context.Context) (*anthropic.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: a.cfg.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: a.cfg.SystemPrompt}},
		Messages:  a.history,
		Tools:     a.toolDefs,
	}

	operation := func() (*anthropic.Message, error) {
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := a.messages.New(ctx, params)
		if err != nil {
			if retryable(err) {
				a.log.Warn("model call failed, retrying", "error", err)

				return nil, err
			}

			return nil, backoff.Permanent(err)
		}

		return resp, nil
	}

	a.cfg.BackOff.Reset()

	opts := make([]backoff.RetryOption, 0, 1+len(a.cfg.RetryOptions))
	opts = append(opts, backoff.WithBackOff(a.cfg.BackOff))
	opts = append(opts, a.cfg.RetryOptions...)

	resp, err := backoff.Retry(ctx, operation, opts...)
	if err != nil {
		if permanent, ok := stderrors.AsType[*backoff.PermanentError](err); ok {
			err = permanent.Err
		}

		return nil, fmt.Errorf("create message: %w", err)
	}

	return resp, nil
}

func retryable(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	apiErr, ok := stderrors.AsType[*anthropic.Error](err)
	if !ok {
		return false
	}

	return apiErr.StatusCode == http.StatusTooManyRequests ||
		(apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599)
}

// recordResponse appends the raw response to the responses log.
func (a *Agent) recordResponse(resp *anthropic.Message) {
	raw := resp.RawJSON()
	if raw == "" {
		data, err := json.Marshal(resp)
		if err != nil {
			a.log.Error("failed to encode model response", "error", err)

			return
		}

		raw = string(data)
	}

	if _, err := io.WriteString(a.cfg.Responses, raw+responseSeparator); err != nil {
		a.log.Error("failed writing model response log", "error", err)
	}
}

// assistantParam rebuilds the model's turn for the history.
func assistantParam(resp *anthropic.Message) anthropic.MessageParam {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(resp.Content))

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(block.Text))
			}
		case "tool_use":
			blocks = append(blocks, anthropic.NewToolUseBlock(block.ID, block.Input, block.Name))
		}
	}

	return anthropic.MessageParam{
		Role:    anthropic.MessageParamRoleAssistant,
		Content: blocks,
	}
}

func userParam(blocks ...anthropic.ContentBlockParamUnion) anthropic.MessageParam {
	return anthropic.MessageParam{
		Role:    anthropic.MessageParamRoleUser,
		Content: blocks,
	}
}

func toolResult(toolUseID, payload string) anthropic.ContentBlockParamUnion {
	return anthropic.ContentBlockParamUnion{
		OfToolResult: &anthropic.ToolResultBlockParam{
			ToolUseID: toolUseID,
			Content: []anthropic.ToolResultBlockParamContentUnion{
				{OfText: &anthropic.TextBlockParam{Text: payload}},
			},
		},
	}
}

type toolCall struct {
	id    string
	name  string
	input json.RawMessage
}

// runTools executes every tool_use block concurrently and returns the
// results in request order.
func (a *Agent) runTools(ctx context.Context, resp *anthropic.Message) ([]anthropic.ContentBlockParamUnion, error) {
	calls := make([]toolCall, 0, len(resp.Content))

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				fmt.Fprintln(a.cfg.Output, block.Text)
			}
		case "tool_use":
			calls = append(calls, toolCall{id: block.ID, name: block.Name, input: block.Input})
		}
	}

	results := make([]anthropic.ContentBlockParamUnion, len(calls))

	var eg errgroup.Group

	for i, call := range calls {
		eg.Go(func() error {
			payload, err := json.Marshal(a.callTool(ctx, call))
			if err != nil {
				return fmt.Errorf("encode result of %s: %w", call.name, err)
			}

			results[i] = toolResult(call.id, string(payload))

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// callTool runs one tool and wraps the outcome as {"result": v} or
// {"error": message}.
func (a *Agent) callTool(ctx context.Context, call toolCall) map[string]any {
	var args map[string]any

	if len(call.input) > 0 {
		if err := json.Unmarshal(call.input, &args); err != nil {
			a.log.Warn("invalid tool input", "tool", call.name, "error", err)

			return map[string]any{"error": "invalid tool input: " + err.Error()}
		}
	}

	a.log.Info("Agent tool call", "tool", call.name, "parameters", string(call.input))

	var outcome map[string]any

	result, err := a.tools.CallTool(ctx, call.name, args)
	if err != nil {
		outcome = map[string]any{"error": err.Error()}
	} else {
		outcome = map[string]any{"result": result}
	}

	a.log.Info("Agent tool result", "tool", call.name, "result", fmt.Sprint(outcome))

	return outcome
}
