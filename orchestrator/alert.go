package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bnb-chain/da-orchestrator/config"
	"github.com/bnb-chain/da-orchestrator/db"
	"github.com/bnb-chain/da-orchestrator/logging"
)

// AlertEvent is emitted once per terminal-timeout transition.
type AlertEvent struct {
	BlockNumber         uint64    `json:"block_number"`
	Status              db.Status `json:"status"`
	SubmissionAttempt   uint64    `json:"submission_attempt"`
	VerificationAttempt uint64    `json:"verification_attempt"`
}

type Alerter interface {
	Alert(event AlertEvent)
}

func NewAlerter(cfg *config.AlertConfig) Alerter {
	if cfg != nil && cfg.WebhookURL != "" {
		return NewWebhookAlerter(cfg.WebhookURL)
	}
	return LogAlerter{}
}

// LogAlerter writes alerts to the error log only.
type LogAlerter struct{}

func (LogAlerter) Alert(event AlertEvent) {
	logging.Logger.Errorf("ALERT: block %d entered %s, submission_attempt=%d, verification_attempt=%d",
		event.BlockNumber, event.Status, event.SubmissionAttempt, event.VerificationAttempt)
}

// WebhookAlerter posts each alert to the configured endpoint, in addition to
// logging it. A failed post is logged and dropped; alerting must never block
// the workers.
type WebhookAlerter struct {
	hc  *http.Client
	url string
}

func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
		url: url,
	}
}

func (a *WebhookAlerter) Alert(event AlertEvent) {
	LogAlerter{}.Alert(event)
	body, err := json.Marshal(event)
	if err != nil {
		logging.Logger.Errorf("failed to marshal alert for block %d, err=%s", event.BlockNumber, err.Error())
		return
	}
	resp, err := a.hc.Post(a.url, "application/json", bytes.NewReader(body))
	if err != nil {
		logging.Logger.Errorf("failed to post alert for block %d, err=%s", event.BlockNumber, err.Error())
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logging.Logger.Errorf("alert webhook returned %s for block %d", resp.Status, event.BlockNumber)
	}
}
