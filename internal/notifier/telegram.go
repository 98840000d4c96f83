// Package notifier pushes short operational alerts to a Telegram chat.
// The pipeline only alarms on conditions a human should look at, chiefly
// emergency fallbacks from the parameter-set resolver.
package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"reentry/internal/pkg/circuit"
	"reentry/internal/pkg/text"
)

// Notifier delivers one text message.
type Notifier interface {
	SendText(text string) error
}

// Nop discards every message. Used when notifications are disabled.
type Nop struct{}

func (Nop) SendText(string) error { return nil }

const (
	telegramAPIBase = "https://api.telegram.org"

	// sendMessage rejects text longer than 4096 characters.
	telegramTextLimit = 4096
)

// Telegram posts messages through the Bot API.
type Telegram struct {
	BotToken string
	ChatID   string
	Client   *http.Client

	// APIBase overrides the Bot API endpoint. Tests point it at a local
	// server; production leaves it empty.
	APIBase string

	// breaker stops the notifier from burning retries on every alert
	// while Telegram is unreachable. Nil disables the guard.
	breaker *circuit.Breaker

	sleep func(d time.Duration)
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		Client:   &http.Client{Timeout: 15 * time.Second},
		breaker:  circuit.New("telegram", 3, 2*time.Minute),
		sleep:    time.Sleep,
	}
}

// SendText sends one text message, retrying up to 3 times. A run of
// failed sends opens the circuit and later messages are dropped until a
// probe succeeds.
func (t *Telegram) SendText(msg string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("telegram: bot token and chat id are required")
	}
	if t.breaker != nil && !t.breaker.Allow() {
		return fmt.Errorf("telegram: circuit open, message dropped")
	}
	base := t.APIBase
	if base == "" {
		base = telegramAPIBase
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, t.BotToken)

	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       text.Clip(msg, telegramTextLimit),
		"parse_mode": "Markdown",
	}
	body, _ := json.Marshal(payload)

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	wait := t.sleep
	if wait == nil {
		wait = time.Sleep
	}

	var lastErr error
	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			wait(time.Duration(i+1) * time.Second)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 == 2 {
			if t.breaker != nil {
				t.breaker.Success()
			}
			return nil
		}
		lastErr = fmt.Errorf("telegram: status=%d", resp.StatusCode)
		wait(time.Duration(i+1) * time.Second)
	}
	if t.breaker != nil {
		t.breaker.Failure()
	}
	return lastErr
}
