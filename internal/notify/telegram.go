package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"forestwatch/internal/pipeline"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string
	APIURL   string // Override for tests / self-hosted bot API servers
}

// TelegramBot posts alert snapshots to a Telegram chat
type TelegramBot struct {
	cfg        TelegramConfig
	httpClient *http.Client
	now        func() time.Time
}

// telegramResponse represents the response from the Telegram API
type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewTelegramBot creates a new Telegram bot instance
func NewTelegramBot(cfg TelegramConfig) (*TelegramBot, error) {
	if err := ValidateTelegramConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultTelegramAPI
	}
	return &TelegramBot{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}, nil
}

// ValidateTelegramConfig validates the Telegram bot configuration
func ValidateTelegramConfig(cfg TelegramConfig) error {
	if cfg.Enabled {
		if cfg.BotToken == "" {
			return fmt.Errorf("telegram bot token is required when enabled")
		}
		if cfg.ChatID == "" {
			return fmt.Errorf("telegram chat ID is required when enabled")
		}
	}
	return nil
}

// Name implements Notifier
func (tb *TelegramBot) Name() string {
	return "telegram"
}

// SendAlert implements Notifier
func (tb *TelegramBot) SendAlert(ctx context.Context, artifact *pipeline.AlertArtifact) error {
	if !tb.cfg.Enabled {
		return ErrDisabled
	}

	photo, err := os.ReadFile(artifact.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	at := artifact.CreatedAt
	if at.IsZero() {
		at = tb.now()
	}
	zoneName, _ := at.Zone()
	caption := fmt.Sprintf(
		"🚨 <b>Person Detected</b>\n\n"+
			"📹 Camera: %s\n"+
			"🎯 Type of Life: %s (%.0f%%)\n"+
			"🕐 Time: %s %s",
		artifact.CameraID,
		lifeType(artifact.Label),
		artifact.Confidence*100,
		at.Format("2 Jan 2006, 15:04:05"),
		zoneName,
	)

	return tb.sendPhoto(ctx, photo, filepath.Base(artifact.ImagePath), caption)
}

// SendTest implements Notifier
func (tb *TelegramBot) SendTest(ctx context.Context) error {
	if !tb.cfg.Enabled {
		return ErrDisabled
	}

	payload := map[string]interface{}{
		"chat_id":    tb.cfg.ChatID,
		"text":       fmt.Sprintf("🤖 <b>forestwatch test message</b>\n\n🕐 Sent at: %s", tb.now().Format("2 Jan 2006, 15:04:05")),
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tb.methodURL("sendMessage"), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return tb.do(req)
}

// sendPhoto sends a photo using multipart form data
func (tb *TelegramBot) sendPhoto(ctx context.Context, photoData []byte, fileName, caption string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", tb.cfg.ChatID); err != nil {
		return fmt.Errorf("failed to write chat_id field: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("failed to write caption field: %w", err)
		}
		if err := writer.WriteField("parse_mode", "HTML"); err != nil {
			return fmt.Errorf("failed to write parse_mode field: %w", err)
		}
	}

	part, err := writer.CreateFormFile("photo", fileName)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(photoData); err != nil {
		return fmt.Errorf("failed to write photo data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tb.methodURL("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return tb.do(req)
}

func (tb *TelegramBot) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", tb.cfg.APIURL, tb.cfg.BotToken, method)
}

func (tb *TelegramBot) do(req *http.Request) error {
	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var telegramResp telegramResponse
	if err := json.Unmarshal(body, &telegramResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !telegramResp.OK {
		return fmt.Errorf("telegram API error %d: %s", telegramResp.ErrorCode, telegramResp.Description)
	}
	return nil
}
