// internal/trader/notify.go
package trader

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notification is the user-visible outcome of one trade attempt. Every
// attempt produces exactly one, success or not.
type Notification struct {
	Action    string `json:"action"`
	Token     string `json:"token"`
	Amount    string `json:"amount,omitempty"`
	Success   bool   `json:"success"`
	TxID      string `json:"txid,omitempty"`
	Error     string `json:"error,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
}

// Notifier delivers trade outcomes to whoever is watching.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes outcomes to the log. It is the default when no webhook
// is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) {
	fields := []zap.Field{
		zap.String("action", n.Action),
		zap.String("token", n.Token),
		zap.String("amount", n.Amount),
		zap.Bool("simulated", n.Simulated),
	}
	if n.Success {
		l.logger.Info("Trade succeeded", append(fields, zap.String("txid", n.TxID))...)
	} else {
		l.logger.Warn("Trade failed", append(fields, zap.String("error", n.Error))...)
	}
}

// WebhookNotifier POSTs outcomes as JSON to a configured URL. Delivery is
// best effort; a failed webhook never fails the trade.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.Named("notify"),
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		w.logger.Error("Failed to encode notification", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		w.logger.Error("Failed to build webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Warn("Webhook delivery failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.Warn("Webhook rejected notification",
			zap.Int("status", resp.StatusCode),
			zap.String("action", n.Action),
			zap.String("token", n.Token))
	}
}
