// Package agent drives the tool-calling loop against the remote
// generation service: send the conversation, execute requested local
// tools, feed results back, and stop at the final-answer tool.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"bashbuddy/internal/protocol"
	"bashbuddy/internal/session"
	"bashbuddy/internal/tools"
)

// maxIterations caps the tool-calling loop per ask. Bounds worst-case
// latency and cost when the model never converges.
const maxIterations = 10

const noResponsePlaceholder = "No response generated"

// Result is the terminal outcome of one orchestrated ask. Either
// Suggestion is set (structured answer via the final-answer tool) or
// Message is (plain answer, possibly warning-prefixed).
type Result struct {
	Suggestion *tools.Suggestion
	Message    string
	Calls      []protocol.ToolCall
}

// AssistantContent renders the result as the assistant turn recorded in
// history. Structured answers use the cacheable encoding.
func (r *Result) AssistantContent() string {
	if r.Suggestion != nil {
		return session.EncodeSuggestion(r.Suggestion.Command, r.Suggestion.Explanation)
	}
	return r.Message
}

// Orchestrator runs the bounded tool-calling state machine.
type Orchestrator struct {
	gen     Generator
	exec    *tools.Executor
	logger  *zap.Logger
	timeout time.Duration
}

// New returns an orchestrator. Timeout bounds each individual remote
// call, not the whole loop.
func New(gen Generator, exec *tools.Executor, logger *zap.Logger, timeout time.Duration) *Orchestrator {
	return &Orchestrator{gen: gen, exec: exec, logger: logger, timeout: timeout}
}

// Ask runs the loop for a conversation whose last turn is the incoming
// user query. It returns an error only for remote-call failures; tool
// failures flow back to the model as data and the loop continues.
func (o *Orchestrator) Ask(ctx context.Context, history []protocol.Turn) (*Result, error) {
	contents := buildContents(history)
	calls := make([]protocol.ToolCall, 0, 4)

	retried := false
	lastText := ""

	for iteration := 1; iteration <= maxIterations; iteration++ {
		reply, err := o.generate(ctx, contents)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iteration, err)
		}

		if reply.Call == nil {
			lastText = reply.Text
			if !retried {
				// One corrective nudge: the answer must arrive via the
				// final-answer tool.
				retried = true
				o.logger.Warn("model returned text instead of a tool call, retrying",
					zap.Int("iteration", iteration))
				contents = append(contents,
					genai.NewContentFromText(reply.Text, genai.RoleModel),
					genai.NewContentFromText(correctiveInstruction, genai.RoleUser))
				continue
			}
			o.logger.Info("accepting plain text answer after retry",
				zap.Int("iteration", iteration))
			return &Result{Message: reply.Text, Calls: calls}, nil
		}

		call := *reply.Call
		calls = append(calls, call)
		o.logger.Debug("executing tool",
			zap.Int("iteration", iteration),
			zap.String("tool", call.Name))

		res := o.exec.Execute(ctx, call.Name, call.Args)
		if res.Final != nil {
			return &Result{Suggestion: res.Final, Calls: calls}, nil
		}

		contents = append(contents,
			&genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{{
					FunctionCall: &genai.FunctionCall{Name: call.Name, Args: call.Args},
				}},
			},
			&genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{genai.NewPartFromFunctionResponse(call.Name, res.Data)},
			})
	}

	// Iteration cap reached: surface the last text the model produced
	// rather than discarding the work.
	o.logger.Warn("iteration limit reached", zap.Int("function_calls", len(calls)))
	if lastText == "" {
		lastText = noResponsePlaceholder
	}
	message := fmt.Sprintf("[Warning: Exceeded function call limit after %d function calls]\n\n%s",
		len(calls), lastText)
	return &Result{Message: message, Calls: calls}, nil
}

func (o *Orchestrator) generate(ctx context.Context, contents []*genai.Content) (*Reply, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return o.gen.Generate(ctx, contents)
}

// buildContents converts stored history into the outbound conversation:
// user turns as user content, assistant turns as prior model turns.
func buildContents(history []protocol.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		var role genai.Role = genai.RoleUser
		if turn.Role == session.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	return contents
}
