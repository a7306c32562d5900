package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-screen/internal/config"
	"github.com/sells-group/provider-screen/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertHighRiskRate   AlertType = "high_risk_rate"
	AlertUnknownRate    AlertType = "unknown_rate"
	AlertOrphanEvidence AlertType = "orphan_evidence"
)

// Alert is one threshold breach, posted to the webhook as JSON.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// threshold is a single alert rule. Share rules only apply once the snapshot
// covers MinProviders providers and the limit is positive.
type threshold struct {
	kind     AlertType
	severity string
	share    bool
	limit    float64
	observe  func(s *Snapshot) float64
	describe func(s *Snapshot, limit float64) (string, map[string]any)
}

// Alerter evaluates a Snapshot against configured thresholds and posts
// breaches to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.Policy
	rules  []threshold
}

// NewAlerter creates an Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  resilience.Policy{Attempts: cfg.WebhookAttempts},
		rules:  thresholdsFor(cfg),
	}
}

func thresholdsFor(cfg config.MonitoringConfig) []threshold {
	return []threshold{
		{
			kind:     AlertHighRiskRate,
			severity: "high",
			share:    true,
			limit:    cfg.HighRiskRateThreshold,
			observe:  func(s *Snapshot) float64 { return s.HighRiskRate },
			describe: func(s *Snapshot, limit float64) (string, map[string]any) {
				msg := fmt.Sprintf("High-risk share %.1f%% exceeds threshold %.1f%% (%d providers over %d run(s))",
					s.HighRiskRate*100, limit*100, s.Providers, s.Runs)
				return msg, map[string]any{
					"high_risk_rate": s.HighRiskRate,
					"threshold":      limit,
					"providers":      s.Providers,
					"latest_run_id":  s.LatestRunID,
				}
			},
		},
		{
			kind:     AlertUnknownRate,
			severity: "medium",
			share:    true,
			limit:    cfg.UnknownRateThreshold,
			observe:  func(s *Snapshot) float64 { return s.UnknownRate },
			describe: func(s *Snapshot, limit float64) (string, map[string]any) {
				msg := fmt.Sprintf("Unknown-status share %.1f%% exceeds threshold %.1f%%; collaborator data may be missing",
					s.UnknownRate*100, limit*100)
				return msg, map[string]any{
					"unknown_rate":  s.UnknownRate,
					"threshold":     limit,
					"latest_run_id": s.LatestRunID,
				}
			},
		},
		{
			kind:     AlertOrphanEvidence,
			severity: "medium",
			limit:    float64(cfg.OrphanEvidenceThreshold),
			observe:  func(s *Snapshot) float64 { return float64(s.OrphanEvidence) },
			describe: func(s *Snapshot, _ float64) (string, map[string]any) {
				msg := fmt.Sprintf("%d evidence item(s) referenced unknown providers", s.OrphanEvidence)
				return msg, map[string]any{
					"orphan_evidence": s.OrphanEvidence,
					"threshold":       cfg.OrphanEvidenceThreshold,
				}
			},
		},
	}
}

// Evaluate returns one alert per breached threshold, in rule order.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	now := time.Now().UTC()
	covered := snap.Providers > 0 && snap.Providers >= a.cfg.MinProviders

	var alerts []Alert
	for _, r := range a.rules {
		if r.share && (!covered || r.limit <= 0) {
			continue
		}
		if r.observe(snap) <= r.limit {
			continue
		}
		msg, details := r.describe(snap, r.limit)
		alerts = append(alerts, Alert{
			Type:      r.kind,
			Severity:  r.severity,
			Message:   msg,
			Details:   details,
			Timestamp: now,
		})
	}
	return alerts
}

// SendAlerts posts each alert to the webhook and returns how many were
// accepted. 5xx and 429 responses are retried; other failures are logged
// and skipped.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}

	delivered := 0
	for _, alert := range alerts {
		log := zap.L().With(zap.String("type", string(alert.Type)), zap.String("severity", alert.Severity))
		err := resilience.Do(ctx, a.retry, "monitoring: webhook", func(ctx context.Context) error {
			return a.post(ctx, alert)
		})
		if err != nil {
			log.Error("monitoring: alert not delivered", zap.Error(err))
			continue
		}
		log.Info("monitoring: alert delivered")
		delivered++
	}
	return delivered
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: encode alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return &resilience.StatusError{Op: "monitoring: webhook", Code: resp.StatusCode}
	}
	return nil
}
