package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CloudConfig configures the WhatsApp Cloud API client.
type CloudConfig struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
	Timeout       time.Duration
}

// CloudClient sends messages through the WhatsApp Cloud API.
type CloudClient struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewCloudClient constructs a client posting to {BaseURL}/{PhoneNumberID}/messages.
func NewCloudClient(cfg CloudConfig, logger *zap.Logger) (*CloudClient, error) {
	if cfg.Token == "" || cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp token and phone number id required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudClient{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.PhoneNumberID + "/messages",
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

type textBody struct {
	Body string `json:"body"`
}

type documentBody struct {
	Link     string `json:"link"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type sendRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Document         *documentBody `json:"document,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers msg and returns the provider message id.
func (c *CloudClient) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", fmt.Errorf("recipient required")
	}
	payload := sendRequest{MessagingProduct: "whatsapp", To: msg.To}
	if msg.HasDocument() {
		payload.Type = "document"
		payload.Document = &documentBody{Link: msg.DocumentURL, Caption: msg.Text, Filename: msg.Filename}
	} else {
		payload.Type = "text"
		payload.Text = &textBody{Body: msg.Text}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var decoded sendResponse
	_ = json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decoded.Error != nil {
			return "", fmt.Errorf("whatsapp status %d: %s (code %d)", resp.StatusCode, decoded.Error.Message, decoded.Error.Code)
		}
		return "", fmt.Errorf("whatsapp status %d", resp.StatusCode)
	}
	if len(decoded.Messages) == 0 || decoded.Messages[0].ID == "" {
		return "", fmt.Errorf("whatsapp response missing message id")
	}

	c.logger.Debug("message sent", zap.String("type", payload.Type), zap.String("message_id", decoded.Messages[0].ID))
	return decoded.Messages[0].ID, nil
}
