// Package notify delivers desk events to registered webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"tradedesk/internal/config"
	"tradedesk/internal/model"
)

// EventType names a notification kind.
type EventType string

const (
	EventTradeExecuted   EventType = "trade_executed"
	EventStrategyChanged EventType = "strategy_changed"
)

// ErrInvalidWebhook is returned for URLs that are not absolute http(s) URLs.
var ErrInvalidWebhook = errors.New("invalid webhook url")

// Notification is the payload posted to every webhook.
type Notification struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Message   string    `json:"message"`
}

// Notifier posts notifications to webhooks, best effort and without retry.
type Notifier struct {
	logger      *slog.Logger
	client      *http.Client
	historySize int
	now         func() time.Time

	mu       sync.Mutex
	webhooks []string
	history  []Notification
	inflight sync.WaitGroup
}

// NewNotifier creates a Notifier and registers the configured webhooks.
func NewNotifier(logger *slog.Logger, cfg config.NotificationConfig) (*Notifier, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	size := cfg.HistorySize
	if size <= 0 {
		size = 100
	}
	n := &Notifier{
		logger:      logger,
		client:      &http.Client{Timeout: timeout},
		historySize: size,
		now:         time.Now,
	}
	for _, u := range cfg.Webhooks {
		if err := n.Register(u); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Register adds a webhook URL. Duplicates are ignored.
func (n *Notifier) Register(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidWebhook, raw)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, w := range n.webhooks {
		if w == raw {
			return nil
		}
	}
	n.webhooks = append(n.webhooks, raw)
	n.logger.Info("Notifier: webhook registered", "url", u.Redacted())
	return nil
}

// Webhooks returns the registered URLs.
func (n *Notifier) Webhooks() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.webhooks...)
}

// History returns up to limit recent notifications, newest first.
func (n *Notifier) History(limit int) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if limit <= 0 || limit > len(n.history) {
		limit = len(n.history)
	}
	out := make([]Notification, 0, limit)
	for i := len(n.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, n.history[i])
	}
	return out
}

// Notify records the event and posts it to every webhook in the background.
func (n *Notifier) Notify(kind EventType, data any, message string) {
	note := Notification{Type: kind, Timestamp: n.now().UTC(), Data: data, Message: message}

	n.mu.Lock()
	n.history = append(n.history, note)
	if over := len(n.history) - n.historySize; over > 0 {
		n.history = append(n.history[:0:0], n.history[over:]...)
	}
	targets := append([]string(nil), n.webhooks...)
	n.mu.Unlock()

	if len(targets) == 0 {
		return
	}
	body, err := json.Marshal(note)
	if err != nil {
		n.logger.Error("Notifier: failed to marshal notification", "type", kind, "error", err)
		return
	}
	for _, target := range targets {
		n.inflight.Add(1)
		go func(target string) {
			defer n.inflight.Done()
			if err := n.post(target, body); err != nil {
				n.logger.Warn("Notifier: webhook delivery failed", "type", kind, "error", err)
			}
		}(target)
	}
}

func (n *Notifier) post(target string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	n.inflight.Wait()
}

// TradeExecuted announces a recorded trade.
func (n *Notifier) TradeExecuted(t model.Trade) {
	n.Notify(EventTradeExecuted, t, fmt.Sprintf("%s %s %.2f USD on %s (%s), profit %.2f",
		t.Side, t.Symbol, t.AmountUSD, t.Source, t.Strategy, t.Profit))
}

// StrategyChanged announces an auto-mode switch.
func (n *Notifier) StrategyChanged(from, to model.StrategyDecision) {
	data := map[string]any{
		"from":       from.Strategy,
		"to":         to.Strategy,
		"confidence": to.Confidence,
		"rationale":  to.Rationale,
	}
	n.Notify(EventStrategyChanged, data, fmt.Sprintf("Strategy changed from %s to %s (%.0f%% confidence)",
		from.Strategy, to.Strategy, to.Confidence))
}
