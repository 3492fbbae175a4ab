package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"moblaw.ru/legal-assistant/internal/logger"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"

	completionTemperature = float32(0.4)
	completionMaxTokens   = int32(1000)
)

// APIError is a non-2xx response from the Gemini API.
type APIError struct {
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini http %d: %v", e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

// LLMService talks to Gemini. It is both the Embedder used for the
// knowledge base and a Completer for fallback answers.
type LLMService struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
	log            *logger.Logger
}

func NewLLMService(ctx context.Context, apiKey, chatModel, embeddingModel string, log *logger.Logger) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if chatModel == "" {
		chatModel = defaultChatModelName
	}
	if embeddingModel == "" {
		embeddingModel = defaultEmbeddingModelName
	}

	return &LLMService{
		client:         client,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		log:            log.With("service", "LLMService"),
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.log.Warn("Error closing GenAI client", "error", err)
		} else {
			s.log.Info("GenAI client closed")
		}
	}
}

// EmbeddingModel names the model behind Embed. Knowledge entries are tagged
// with it so vectors from different models never share an index.
func (s *LLMService) EmbeddingModel() string {
	return s.embeddingModel
}

func (s *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(s.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", classifyGeminiError(err))
	}

	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (s *LLMService) Complete(ctx context.Context, systemInstruction, question string) (string, error) {
	model := s.client.GenerativeModel(s.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.SetTemperature(completionTemperature)
	model.SetMaxOutputTokens(completionMaxTokens)

	resp, err := model.GenerateContent(ctx, genai.Text(question))
	if err != nil {
		return "", fmt.Errorf("gemini completion request failed: %w", classifyGeminiError(err))
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response was empty or had no valid candidates")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			s.log.Debug("Gemini response part was not text", "type", fmt.Sprintf("%T", part))
		}
	}

	text := strings.TrimSpace(responseText.String())
	if text == "" {
		return "", fmt.Errorf("gemini response had no text")
	}
	return text, nil
}

func classifyGeminiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{StatusCode: gerr.Code, Err: err}
	}
	return err
}
