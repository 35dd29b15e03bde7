// Package worker runs the periodic evaluation, escalation and retry passes
// that drive the alerting pipeline.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
	"github.com/atrium-ops/bms-backend-go/internal/config"
	"github.com/atrium-ops/bms-backend-go/internal/database"
	"github.com/atrium-ops/bms-backend-go/internal/notify"
	"github.com/atrium-ops/bms-backend-go/internal/websocket"
)

// SnapshotProvider builds the evaluation context from the readings store.
type SnapshotProvider struct {
	readings      database.SensorReadingRepository
	historyWindow time.Duration
}

// NewSnapshotProvider creates a snapshot provider reading back historyWindow
// of telemetry per pass.
func NewSnapshotProvider(readings database.SensorReadingRepository, historyWindow time.Duration) *SnapshotProvider {
	if historyWindow <= 0 {
		historyWindow = 24 * time.Hour
	}
	return &SnapshotProvider{readings: readings, historyWindow: historyWindow}
}

// GetEvaluationContext loads the snapshot for an evaluation pass. Ambient
// weather and occupancy feeds are optional collaborators; absent feeds leave
// those fields nil.
func (p *SnapshotProvider) GetEvaluationContext(at time.Time) (*alerting.EvaluationContext, error) {
	readings, err := p.readings.ReadingsSince(context.Background(), at.Add(-p.historyWindow))
	if err != nil {
		return nil, fmt.Errorf("load readings: %w", err)
	}
	return &alerting.EvaluationContext{Now: at, Readings: readings}, nil
}

// Worker schedules evaluation passes and the background retry sweep.
type Worker struct {
	engine    *alerting.Engine
	router    *notify.Router
	escalator *notify.EscalationScheduler
	provider  alerting.ContextProvider
	repos     *database.Repositories
	hub       *websocket.Hub
	cfg       config.Config
	logger    *logrus.Logger
	cron      *cron.Cron
}

// New creates the background worker.
func New(
	engine *alerting.Engine,
	router *notify.Router,
	escalator *notify.EscalationScheduler,
	provider alerting.ContextProvider,
	repos *database.Repositories,
	hub *websocket.Hub,
	cfg config.Config,
	logger *logrus.Logger,
) *Worker {
	return &Worker{
		engine:    engine,
		router:    router,
		escalator: escalator,
		provider:  provider,
		repos:     repos,
		hub:       hub,
		cfg:       cfg,
		logger:    logger,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger), cron.Recover(cron.DefaultLogger))),
	}
}

// Start registers the cron entries and starts the scheduler.
func (w *Worker) Start(ctx context.Context) error {
	evalSpec := fmt.Sprintf("@every %s", w.cfg.Engine.EvaluationInterval)
	if _, err := w.cron.AddFunc(evalSpec, func() {
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.WithError(err).Error("Evaluation pass failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule evaluation pass: %w", err)
	}

	retrySpec := fmt.Sprintf("@every %s", w.cfg.Notifications.RetryInterval)
	if _, err := w.cron.AddFunc(retrySpec, func() {
		w.retrySweep(ctx)
	}); err != nil {
		return fmt.Errorf("schedule retry sweep: %w", err)
	}

	w.cron.Start()
	w.logger.WithFields(logrus.Fields{
		"evaluation_interval": w.cfg.Engine.EvaluationInterval,
		"retry_interval":      w.cfg.Notifications.RetryInterval,
	}).Info("Alert worker started")
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (w *Worker) Stop() {
	stopCtx := w.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		w.logger.Warn("Timeout waiting for worker jobs to complete")
	}
	w.escalator.Stop()
	w.logger.Info("Alert worker stopped")
}

// RunOnce executes a single evaluation pass: snapshot, evaluate, persist,
// notify, schedule escalation. It returns the newly triggered alerts.
func (w *Worker) RunOnce(ctx context.Context) ([]*alerting.AlertInstance, error) {
	start := time.Now()

	snapshot, err := w.provider.GetEvaluationContext(start)
	if err != nil {
		return nil, fmt.Errorf("build evaluation context: %w", err)
	}

	configs, err := w.repos.Configurations.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active configurations: %w", err)
	}

	alerts := w.engine.EvaluateAlerts(ctx, configs, snapshot)

	configsByID := make(map[string]*alerting.AlertConfiguration, len(configs))
	for _, c := range configs {
		configsByID[c.ID] = c
	}

	var created []*alerting.AlertInstance
	for _, alert := range alerts {
		// Duplicate-suppressed alerts come back with their original trigger
		// time; only new instances are persisted and notified.
		if !alert.TriggeredAt.Equal(snapshot.Now) {
			continue
		}
		if err := w.repos.Alerts.Create(ctx, alert); err != nil {
			w.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to persist alert")
			continue
		}
		created = append(created, alert)
		w.hub.Broadcast(websocket.NewMessage(websocket.EventAlertTriggered, alert))

		cfg, ok := configsByID[alert.ConfigurationID]
		if !ok {
			continue
		}
		w.notifyAlert(ctx, cfg, alert)
		w.ScheduleEscalation(alert, cfg, cfg.Notifications.Escalation)
	}

	w.logger.WithFields(logrus.Fields{
		"configurations": len(configs),
		"new_alerts":     len(created),
		"duration":       time.Since(start),
	}).Info("Evaluation pass completed")
	return created, nil
}

// notifyAlert dispatches notifications for a new alert and persists the
// delivery log entries.
func (w *Worker) notifyAlert(ctx context.Context, cfg *alerting.AlertConfiguration, alert *alerting.AlertInstance) {
	logs, err := w.router.SendAlertNotifications(ctx, &cfg.Notifications, alert)
	if err != nil {
		w.logger.WithError(err).WithField("alert_id", alert.ID).Error("Notification routing failed")
		return
	}
	for _, entry := range logs {
		if err := w.repos.Notifications.Append(ctx, entry); err != nil {
			w.logger.WithError(err).WithField("log_id", entry.ID).Error("Failed to persist notification log")
		}
	}
	alert.Notifications = derefLogs(logs)
}

// retrySweep re-attempts failed notification deliveries.
func (w *Worker) retrySweep(ctx context.Context) {
	entries, err := w.repos.Notifications.ListRetryable(ctx, w.cfg.Notifications.MaxRetries)
	if err != nil {
		w.logger.WithError(err).Error("Failed to load retryable notifications")
		return
	}
	if len(entries) == 0 {
		return
	}

	byAlert := make(map[string][]*alerting.NotificationLog)
	for _, e := range entries {
		byAlert[e.AlertID] = append(byAlert[e.AlertID], e)
	}

	for alertID, logs := range byAlert {
		alert, err := w.repos.Alerts.GetByID(ctx, alertID)
		if err != nil {
			w.logger.WithError(err).WithField("alert_id", alertID).Error("Failed to load alert for retry")
			continue
		}
		cfg, err := w.repos.Configurations.GetByID(ctx, alert.ConfigurationID)
		if err != nil {
			w.logger.WithError(err).WithField("configuration_id", alert.ConfigurationID).Error("Failed to load configuration for retry")
			continue
		}

		retried := w.router.RetryFailedNotifications(ctx, &cfg.Notifications, alert, logs, w.cfg.Notifications.MaxRetries)
		for _, entry := range retried {
			if err := w.repos.Notifications.Update(ctx, entry); err != nil {
				w.logger.WithError(err).WithField("log_id", entry.ID).Error("Failed to persist retried notification log")
			}
		}
	}
}

// ScheduleEscalation arms the next escalation stage timer for an alert.
// Acknowledging or resolving the alert cancels it.
func (w *Worker) ScheduleEscalation(alert *alerting.AlertInstance, cfg *alerting.AlertConfiguration, policy *alerting.EscalationPolicy) {
	if policy == nil || alert.Severity != alerting.SeverityCritical {
		return
	}
	stage := policy.StageForLevel(alert.EscalationLevel + 1)
	if stage == nil {
		return
	}

	alertID := alert.ID
	w.escalator.Schedule(alertID, stage.Delay, func() {
		ctx := context.Background()
		current, err := w.repos.Alerts.GetByID(ctx, alertID)
		if err != nil {
			w.logger.WithError(err).WithField("alert_id", alertID).Error("Failed to load alert for escalation")
			return
		}
		if !current.IsOpen() {
			return
		}

		logs, err := w.router.HandleEscalation(ctx, &cfg.Notifications, current, policy, current.EscalationLevel)
		if err != nil {
			w.logger.WithError(err).WithField("alert_id", alertID).Error("Escalation failed")
			return
		}
		if len(logs) == 0 {
			return
		}
		for _, entry := range logs {
			if err := w.repos.Notifications.Append(ctx, entry); err != nil {
				w.logger.WithError(err).WithField("log_id", entry.ID).Error("Failed to persist escalation log")
			}
		}
		if err := w.repos.Alerts.SetEscalationLevel(ctx, alertID, current.EscalationLevel); err != nil {
			w.logger.WithError(err).WithField("alert_id", alertID).Error("Failed to persist escalation level")
		}
		w.hub.Broadcast(websocket.NewMessage(websocket.EventAlertEscalated, current))

		// Arm the next stage, if any.
		w.ScheduleEscalation(current, cfg, policy)
	})
}

// CancelEscalation cancels any pending escalation timer for the alert.
func (w *Worker) CancelEscalation(alertID string) {
	w.escalator.Cancel(alertID)
}

func derefLogs(logs []*alerting.NotificationLog) []alerting.NotificationLog {
	out := make([]alerting.NotificationLog, len(logs))
	for i, l := range logs {
		out[i] = *l
	}
	return out
}
