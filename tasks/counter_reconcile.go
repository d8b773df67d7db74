package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"tapspot/services"
)

const reconcileTimeout = 3 * time.Minute

// Reconciler - то, что умеет сверять счётчики
type Reconciler interface {
	Reconcile(ctx context.Context) (services.ReconcileReport, error)
}

// CounterReconcileTask периодически сверяет счётчики непрочитанных и лайков
type CounterReconcileTask struct {
	counters Reconciler
	cron     *cron.Cron
	schedule string
	log      *zap.Logger
}

func NewCounterReconcileTask(counters Reconciler, schedule string, log *zap.Logger) *CounterReconcileTask {
	return &CounterReconcileTask{
		counters: counters,
		cron:     cron.New(),
		schedule: schedule,
		log:      log,
	}
}

// Start регистрирует задачу и запускает планировщик в фоне
func (t *CounterReconcileTask) Start() error {
	entryID, err := t.cron.AddFunc(t.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()
		t.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("add reconcile job %q: %w", t.schedule, err)
	}
	t.cron.Start()
	t.log.Info("counter reconcile task started",
		zap.String("schedule", t.schedule), zap.Int("entry_id", int(entryID)))
	return nil
}

// RunOnce один проход сверки
func (t *CounterReconcileTask) RunOnce(ctx context.Context) services.ReconcileReport {
	started := time.Now()
	report, err := t.counters.Reconcile(ctx)
	if err != nil {
		t.log.Error("counter reconcile failed", zap.Error(err))
		return report
	}
	if report.Total() > 0 {
		t.log.Warn("counters drifted and were corrected",
			zap.Int64("conversations", report.Conversations),
			zap.Int64("posts", report.Posts),
			zap.Int64("comments", report.Comments),
			zap.Duration("duration", time.Since(started)))
		return report
	}
	t.log.Debug("counters are consistent", zap.Duration("duration", time.Since(started)))
	return report
}

// Stop останавливает планировщик; контекст закрывается, когда текущий проход завершён
func (t *CounterReconcileTask) Stop() context.Context {
	return t.cron.Stop()
}
