// Package alerting pushes operational alerts to a webhook. Payload shape
// adapts to the receiver: Slack and Discord get their native message
// fields, anything else gets a generic JSON event.
package alerting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hoteliq/ratewatch/internal/storage"
)

const (
	KindSlack   = "slack"
	KindDiscord = "discord"
	KindGeneric = "generic"
)

type Alerter struct {
	webhookURL string
	kind       string
	client     *http.Client
}

// New returns an Alerter, or nil when no webhook is configured. All
// methods are safe to call on a nil receiver so call sites need no guard.
func New(webhookURL, kind string) *Alerter {
	if webhookURL == "" {
		return nil
	}
	if kind == "" {
		kind = KindGeneric
	}
	return &Alerter{
		webhookURL: webhookURL,
		kind:       kind,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// PoolExhausted fires when every credential of a provider pool is spent.
func (a *Alerter) PoolExhausted(provider string) {
	a.send("key_pool_exhausted",
		fmt.Sprintf("All API credentials for provider %s are exhausted; scans will skip it until keys are reset or reloaded.", provider),
		map[string]any{"provider": provider})
}

// ScanFailed fires for orchestration-level scan faults.
func (a *Alerter) ScanFailed(session storage.ScanSession) {
	a.send("scan_failed",
		fmt.Sprintf("Scan session %s (%s) for user %s failed: %s", session.ID, session.SessionType, session.UserID, session.Error),
		map[string]any{"session_id": session.ID, "user_id": session.UserID, "session_type": session.SessionType})
}

// ScanDegraded fires when a completed session had per-hotel failures.
func (a *Alerter) ScanDegraded(session storage.ScanSession) {
	a.send("scan_degraded",
		fmt.Sprintf("Scan session %s completed with %d/%d hotels failed.", session.ID, session.FailedCount, session.HotelsCount),
		map[string]any{"session_id": session.ID, "failed": session.FailedCount, "total": session.HotelsCount})
}

func (a *Alerter) send(event, message string, fields map[string]any) {
	if a == nil {
		return
	}

	var payload map[string]any
	switch a.kind {
	case KindSlack:
		payload = map[string]any{"text": message}
	case KindDiscord:
		payload = map[string]any{"content": message}
	default:
		payload = map[string]any{
			"event":     event,
			"message":   message,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		for k, v := range fields {
			payload[k] = v
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("alerting: marshal %s payload: %v", event, err)
		return
	}
	resp, err := a.client.Post(a.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alerting: deliver %s: %v", event, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("alerting: webhook returned %d for %s", resp.StatusCode, event)
	}
}
