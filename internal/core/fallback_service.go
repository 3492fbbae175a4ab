package core

import (
	"context"
	"strings"
	"time"

	"moblaw.ru/legal-assistant/internal/logger"
)

const (
	LegalAssistantInstruction = "You are a professional legal assistant. Answer briefly and clearly."

	// FallbackErrorReply is returned whenever the completion service fails.
	FallbackErrorReply = "⚠️ The assistant is temporarily unavailable. Please try again later."

	defaultLLMTimeout = 20 * time.Second
)

type Completer interface {
	Complete(ctx context.Context, systemInstruction, question string) (string, error)
}

// FallbackGenerator answers questions the knowledge base could not.
type FallbackGenerator struct {
	completer Completer
	timeout   time.Duration
	log       *logger.Logger
}

func NewFallbackGenerator(completer Completer, timeout time.Duration, log *logger.Logger) *FallbackGenerator {
	if timeout <= 0 {
		timeout = defaultLLMTimeout
	}
	return &FallbackGenerator{
		completer: completer,
		timeout:   timeout,
		log:       log.With("service", "FallbackGenerator"),
	}
}

// Generate never fails: errors degrade to FallbackErrorReply.
func (g *FallbackGenerator) Generate(ctx context.Context, question string) string {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	answer, err := g.completer.Complete(ctx, LegalAssistantInstruction, question)
	if err != nil {
		if status, ok := httpStatus(err); ok {
			g.log.Error("HTTP error from completion service", "status_code", status, "error", err)
		} else {
			g.log.Error("Completion service failed", "error", err)
		}
		return FallbackErrorReply
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		g.log.Warn("Completion service returned an empty answer")
		return FallbackErrorReply
	}
	return answer
}
