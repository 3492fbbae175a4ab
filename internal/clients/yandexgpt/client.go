package yandexgpt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"moblaw.ru/legal-assistant/internal/logger"
)

const defaultBaseURL = "https://llm.api.cloud.yandex.net/foundationModels/v1"

type Config struct {
	FolderID      string
	Authorization string // full header value, e.g. "Api-Key ..." or "Bearer ..."
	BaseURL       string
	Model         string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
}

// Client is a YandexGPT completion client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.FolderID) == "" || strings.TrimSpace(cfg.Authorization) == "" {
		return nil, fmt.Errorf("missing YANDEX_FOLDER_ID or YANDEX_AUTHORIZATION")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "yandexgpt/latest"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.4
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With("client", "YandexGPTClient"),
	}, nil
}

type completionOptions struct {
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type completionRequest struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions completionOptions `json:"completionOptions"`
	Messages          []message         `json:"messages"`
}

type completionResponse struct {
	Result struct {
		Alternatives []struct {
			Message message `json:"message"`
			Status  string  `json:"status"`
		} `json:"alternatives"`
	} `json:"result"`
}

// HTTPError is a non-2xx reply from the completion endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("yandexgpt http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *HTTPError) HTTPStatusCode() int {
	return e.StatusCode
}

func (c *Client) Complete(ctx context.Context, systemInstruction, question string) (string, error) {
	reqBody := completionRequest{
		ModelURI: fmt.Sprintf("gpt://%s/%s", c.cfg.FolderID, c.cfg.Model),
		CompletionOptions: completionOptions{
			Stream:      false,
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		},
		Messages: []message{
			{Role: "system", Text: systemInstruction},
			{Role: "user", Text: question},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.cfg.BaseURL + "/completion"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.cfg.Authorization)

	c.log.Debug("Sending completion request", "url", url, "folder_id", c.cfg.FolderID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("yandexgpt request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out completionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Result.Alternatives) == 0 {
		return "", fmt.Errorf("yandexgpt returned no alternatives")
	}
	return out.Result.Alternatives[0].Message.Text, nil
}
