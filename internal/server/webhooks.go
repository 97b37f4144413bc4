package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"missionline/internal/config"
	"missionline/internal/engine"
	"missionline/internal/eventlog"
)

// webhookDispatcher tails the mission stream and posts matching records to
// configured targets. It keeps a per-process cursor over record indexes; a
// restart replays the stream and skips already-seen indexes, so delivery is
// at-least-once only within a process lifetime.
type webhookDispatcher struct {
	hooks  []config.WebhookConfig
	stream *eventlog.Stream
	logger *zap.Logger
	cursor int
	client *http.Client
}

func startWebhookDispatcher(e *engine.Engine, store *eventlog.Store, logger *zap.Logger) {
	var enabled []config.WebhookConfig
	for _, hook := range e.Config.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		enabled = append(enabled, hook)
	}
	if len(enabled) == 0 {
		return
	}
	go newWebhookDispatcher(enabled, store.Missions(), logger).run()
}

func newWebhookDispatcher(hooks []config.WebhookConfig, stream *eventlog.Stream, logger *zap.Logger) *webhookDispatcher {
	d := &webhookDispatcher{
		hooks:  hooks,
		stream: stream,
		logger: logger.Named("webhooks"),
		client: &http.Client{},
	}
	// Start past the existing history so only new records are delivered.
	// Counted over decoded records, the same unit poll advances by.
	records, err := stream.ReadRecords(context.Background())
	if err == nil {
		d.cursor = len(records)
	}
	return d
}

func (d *webhookDispatcher) run() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		d.poll()
	}
}

func (d *webhookDispatcher) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	records, err := d.stream.ReadRecords(ctx)
	if err != nil {
		d.logger.Warn("stream read failed", zap.Error(err))
		return
	}
	if d.cursor > len(records) {
		d.cursor = len(records)
	}
	for _, rec := range records[d.cursor:] {
		for _, hook := range d.hooks {
			if !statusMatches(hook, string(rec.Status)) {
				continue
			}
			d.deliver(ctx, hook, rec)
		}
	}
	d.cursor = len(records)
}

func statusMatches(hook config.WebhookConfig, status string) bool {
	if len(hook.Statuses) == 0 {
		return status != ""
	}
	for _, s := range hook.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (d *webhookDispatcher) deliver(ctx context.Context, hook config.WebhookConfig, rec any) {
	body, err := json.Marshal(rec)
	if err != nil {
		d.logger.Warn("webhook payload marshal failed", zap.Error(err))
		return
	}
	timeout := 10 * time.Second
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("webhook request build failed", zap.String("url", hook.URL), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if hook.Secret != "" {
		mac := hmac.New(sha256.New, []byte(hook.Secret))
		mac.Write(body)
		req.Header.Set("X-Missionline-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("webhook delivery failed", zap.String("url", hook.URL), zap.Error(err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		d.logger.Warn("webhook rejected",
			zap.String("url", hook.URL),
			zap.Int("status", resp.StatusCode))
	}
}
