// Package chat orchestrates one conversation turn: persist the user
// message, retrieve document context, call the completion service and
// persist the reply.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/verasoft/docchat/internal/groq"
	"github.com/verasoft/docchat/internal/history"
)

const defaultCompletionTimeout = 60 * time.Second

// Retriever supplies relevant document context for a question.
type Retriever interface {
	RetrieveContext(query string) (context string, ok bool, err error)
}

// Completer produces an assistant reply for a message list.
type Completer interface {
	Chat(ctx context.Context, model string, messages []groq.Message) (string, error)
}

// Service answers user questions over the ingested document corpus.
type Service struct {
	history      *history.Manager
	retriever    Retriever
	completer    Completer
	model        string
	declineReply string
	timeout      time.Duration
	logger       *slog.Logger
}

// NewService wires a chat Service. timeout <= 0 selects the 60s default.
func NewService(h *history.Manager, r Retriever, c Completer, model, declineReply string, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}
	return &Service{
		history:      h,
		retriever:    r,
		completer:    c,
		model:        model,
		declineReply: declineReply,
		timeout:      timeout,
		logger:       slog.Default(),
	}
}

// Answer handles one user turn. A missing sessionID starts a new
// session. The user turn is appended eagerly; the assistant turn only
// on success, so a failed or timed-out completion never drops the
// user's message from history and the caller may simply retry.
func (s *Service) Answer(ctx context.Context, message, sessionID string) (reply, sid string, err error) {
	sid, err = s.history.EnsureSession(sessionID)
	if err != nil {
		return "", "", err
	}

	// Turns on the same session serialize for the whole round trip.
	unlock := s.history.Lock(sid)
	defer unlock()

	if _, err := s.history.AppendTurn(sid, "user", message); err != nil {
		return "", sid, err
	}

	docContext, found, err := s.retriever.RetrieveContext(message)
	if err != nil {
		return "", sid, fmt.Errorf("retrieving context: %w", err)
	}

	// No relevant context is not an error: answer with the canned
	// decline without calling the completion service.
	if !found {
		if _, err := s.history.AppendTurn(sid, "assistant", s.declineReply); err != nil {
			return "", sid, err
		}
		return s.declineReply, sid, nil
	}

	msgs, err := s.history.Render(sid, docContext, s.declineReply)
	if err != nil {
		return "", sid, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err = s.completer.Chat(callCtx, s.model, msgs)
	if err != nil {
		s.logger.Error("completion request failed", "session_id", sid, "error", err)
		return "", sid, fmt.Errorf("requesting completion: %w", err)
	}

	if _, err := s.history.AppendTurn(sid, "assistant", reply); err != nil {
		return "", sid, err
	}
	return reply, sid, nil
}
