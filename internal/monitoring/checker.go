package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/provider-screen/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker re-evaluates the most recent runs for one tag on an interval.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	tag       string
	interval  time.Duration
}

// NewChecker returns a Checker for runs tagged tag. A non-positive interval
// means five minutes.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig, tag string, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{collector: collector, alerter: alerter, cfg: cfg, tag: tag, interval: interval}
}

// Run checks immediately and then once per interval. It blocks until ctx is
// done.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"), zap.String("tag", c.tag))
	log.Info("monitoring: watching runs",
		zap.Duration("every", c.interval),
		zap.Int("lookback_runs", c.cfg.LookbackRuns),
	)

	tick := time.NewTicker(c.interval)
	defer tick.Stop()

	for {
		c.Check(ctx, log)
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-tick.C:
		}
	}
}

// Check evaluates one snapshot, delivers whatever fires and returns the
// fired alerts. A collection failure is logged and yields nil.
func (c *Checker) Check(ctx context.Context, log *zap.Logger) []Alert {
	snap, err := c.collector.Collect(ctx, c.tag, c.cfg.LookbackRuns)
	if err != nil {
		log.Error("monitoring: collect runs", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: within thresholds",
			zap.Int("runs", snap.Runs),
			zap.Int("providers", snap.Providers),
		)
		return nil
	}

	delivered := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: thresholds breached",
		zap.Int("alerts", len(alerts)),
		zap.Int("delivered", delivered),
		zap.String("latest_run_id", snap.LatestRunID),
	)
	return alerts
}
