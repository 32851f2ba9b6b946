package daemon

import (
	"context"
	"os"

	"go.uber.org/zap"

	"bashbuddy/internal/agent"
	"bashbuddy/internal/protocol"
	"bashbuddy/internal/session"
)

// RegisterHandlers wires the protocol commands to the session and the
// orchestrator.
func RegisterHandlers(s *Server, sess *session.Session, orch *agent.Orchestrator, logger *zap.Logger) {
	s.RegisterHandler(protocol.CommandPing, func(_ context.Context, _ *protocol.Request) protocol.Response {
		return protocol.Response{Status: protocol.StatusOK, Message: "pong"}
	})

	s.RegisterHandler(protocol.CommandStatus, func(_ context.Context, _ *protocol.Request) protocol.Response {
		return protocol.Response{
			Status:  protocol.StatusOK,
			Message: "Daemon is running",
			PID:     os.Getpid(),
		}
	})

	s.RegisterHandler(protocol.CommandReset, func(_ context.Context, _ *protocol.Request) protocol.Response {
		sess.Reset()
		logger.Info("conversation history cleared")
		return protocol.Response{Status: protocol.StatusOK, Message: "Conversation history cleared"}
	})

	s.RegisterHandler(protocol.CommandHistory, func(_ context.Context, _ *protocol.Request) protocol.Response {
		turns := sess.Snapshot()
		count := len(turns)
		return protocol.Response{
			Status:  protocol.StatusOK,
			History: turns,
			Count:   &count,
		}
	})

	s.RegisterHandler(protocol.CommandAsk, func(ctx context.Context, req *protocol.Request) protocol.Response {
		return handleAsk(ctx, req, sess, orch, logger)
	})
}

func handleAsk(ctx context.Context, req *protocol.Request, sess *session.Session, orch *agent.Orchestrator, logger *zap.Logger) protocol.Response {
	if req.Message == "" {
		return protocol.ErrorResponse("message is required")
	}

	if !req.ForceFresh {
		if answer, ok := sess.Lookup(req.Message); ok {
			logger.Info("cache hit", zap.String("query", req.Message))
			return protocol.Response{
				Status:      protocol.StatusOK,
				Command:     answer.Command,
				Explanation: answer.Explanation,
				Cached:      true,
			}
		}
	}

	// The user turn goes in before the remote call so a crash
	// mid-generation still leaves an audit trail.
	ticket := sess.Begin(req.Message)
	history := sess.Snapshot()

	result, err := orch.Ask(ctx, history)
	if err != nil {
		// The user turn stays; a retried identical query is answered
		// fresh since no assistant turn was recorded.
		logger.Error("ask failed", zap.Error(err))
		return protocol.ErrorResponse("Failed to generate response: %v", err)
	}

	if !sess.Complete(ticket, result.AssistantContent()) {
		logger.Warn("discarding result: history was reset mid-ask")
	}

	resp := protocol.Response{
		Status:        protocol.StatusOK,
		FunctionCalls: result.Calls,
	}
	if result.Suggestion != nil {
		resp.Command = result.Suggestion.Command
		resp.Explanation = result.Suggestion.Explanation
	} else {
		resp.Message = result.Message
	}
	return resp
}
