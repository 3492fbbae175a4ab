package greenapi

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

type Config struct {
	IDInstance string
	APIToken   string
	BaseURL    string
	Timeout    time.Duration
}

type Client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.IDInstance = strings.TrimSpace(cfg.IDInstance)
	cfg.APIToken = strings.TrimSpace(cfg.APIToken)
	if cfg.IDInstance == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("missing GREEN_ID_INSTANCE or GREEN_API_TOKEN")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.green-api.com"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		log:        log.With("client", "GreenAPIClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type sendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

type sendMessageResponse struct {
	IDMessage string `json:"idMessage"`
}

// HTTPError is a non-2xx reply from Green API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 1000 {
		msg = msg[:1000] + "..."
	}
	return fmt.Sprintf("green-api http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	return e.StatusCode
}

// SendMessage posts a text message to chatID. One attempt, no retries.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return fmt.Errorf("green-api: chatId required")
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Message: text})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/waInstance%s/sendMessage/%s", c.cfg.BaseURL, c.cfg.IDInstance, c.cfg.APIToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("green-api request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out sendMessageResponse
	if len(raw) > 0 && json.Unmarshal(raw, &out) == nil {
		c.log.Debug("Message sent", "chat_id", chatID, "id_message", out.IDMessage)
	}
	return nil
}
