package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"TickerLens/internal/logging"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *http.Client
	// Backoff is the first retry delay of SendWithRetry; it doubles per attempt.
	Backoff time.Duration

	log zerolog.Logger
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string, log zerolog.Logger) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		APIBase:  defaultTelegramAPI,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		Backoff: time.Second,
		log:     logging.Component(log, "telegram"),
	}
}

func (t *TelegramNotifier) endpoint(method string) string {
	base := t.APIBase
	if base == "" {
		base = defaultTelegramAPI
	}
	return fmt.Sprintf("%s/bot%s/%s", base, t.BotToken, method)
}

// Send sends an HTML-formatted message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := t.Send(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == maxRetries {
			break
		}
		backoff := t.Backoff * time.Duration(1<<uint(i))
		t.log.Warn().Err(err).Int("attempt", i+1).Int("of", maxRetries+1).Dur("retry_in", backoff).Msg("telegram send failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}

// TelegramSink forwards banners to Telegram from a background goroutine so
// delivery never blocks the controller. Banners are dropped when the queue
// is full.
type TelegramSink struct {
	t       *TelegramNotifier
	queue   chan Banner
	retries int
	wg      sync.WaitGroup
}

// NewTelegramSink starts the delivery goroutine; it stops when ctx is done.
// Info banners are not forwarded.
func NewTelegramSink(ctx context.Context, t *TelegramNotifier, retries int) *TelegramSink {
	s := &TelegramSink{t: t, queue: make(chan Banner, 32), retries: retries}
	s.wg.Add(1)
	go s.loop(ctx)
	return s
}

func (s *TelegramSink) Deliver(b Banner) {
	if b.Level == LevelInfo {
		return
	}
	select {
	case s.queue <- b:
	default:
		s.t.log.Warn().Str("banner", b.Text).Msg("telegram queue full, dropping banner")
	}
}

// Wait blocks until the delivery goroutine has exited.
func (s *TelegramSink) Wait() { s.wg.Wait() }

func (s *TelegramSink) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-s.queue:
			icon := "✅"
			if b.Level == LevelError {
				icon = "⚠️"
			}
			text := fmt.Sprintf("%s <b>TickerLens</b>\n%s", icon, html.EscapeString(b.Text))
			if err := s.t.SendWithRetry(ctx, text, s.retries); err != nil && ctx.Err() == nil {
				s.t.log.Error().Err(err).Msg("telegram banner not delivered")
			}
		}
	}
}
