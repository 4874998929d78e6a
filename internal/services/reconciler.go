package services

import (
	"context"
	"time"

	"github.com/taoshinakamoto/VOLTAGEGPU/internal/database"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/upstream"
	"github.com/taoshinakamoto/VOLTAGEGPU/pkg/logger"
	"go.uber.org/zap"
)

// Reconciler periodically compares internally tracked running instances
// against upstream truth. Divergence raises an alert, forces a re-sync and
// opens a billing grace window so the discrepancy is never charged.
type Reconciler struct {
	svc      *InstanceService
	interval time.Duration
	grace    time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewReconciler(svc *InstanceService, interval, grace time.Duration) *Reconciler {
	return &Reconciler{
		svc:      svc,
		interval: interval,
		grace:    grace,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func (r *Reconciler) Start() {
	go func() {
		defer close(r.doneChan)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.Sweep(context.Background())
			case <-r.stopChan:
				return
			}
		}
	}()
}

func (r *Reconciler) Stop() {
	close(r.stopChan)
	<-r.doneChan
}

// Sweep checks every running or degraded instance against upstream.
func (r *Reconciler) Sweep(ctx context.Context) {
	var instances []models.Instance
	err := database.DB.
		Where("status = ? OR (degraded = ? AND status NOT IN ?)",
			models.InstanceStatusRunning, true,
			[]models.InstanceStatus{models.InstanceStatusTerminated, models.InstanceStatusFailed}).
		Find(&instances).Error
	if err != nil {
		logger.Log.Error("reconciliation sweep query failed", zap.Error(err))
		return
	}

	for i := range instances {
		r.reconcileOne(ctx, &instances[i])
	}
}

func (r *Reconciler) reconcileOne(ctx context.Context, instance *models.Instance) {
	if instance.ProviderID == nil {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.svc.UpstreamTimeout)
	state, err := r.svc.Provider.Status(callCtx, *instance.ProviderID)
	cancel()
	if err != nil {
		logger.Log.Warn("reconciliation: upstream unreachable",
			zap.String("instance_id", instance.ID), zap.Error(err))
		return
	}

	observed, mapped := upstream.MapStatus(state.Status)
	diverged := !mapped || observed != instance.Status
	if !diverged {
		if instance.Degraded {
			// Clean bill of health; let the regular sync clear the flag.
			r.svc.SyncStatus(ctx, instance.ID)
		}
		return
	}

	logger.Log.Error("reconciliation conflict: internal and upstream state diverged",
		zap.String("instance_id", instance.ID),
		zap.String("internal", string(instance.Status)),
		zap.String("upstream_raw", state.Status))

	// Open the grace window before re-syncing so a billing sweep racing this
	// reconciliation cannot charge the disputed period.
	graceUntil := time.Now().Add(r.grace)
	if err := database.DB.Model(&models.Instance{}).
		Where("id = ?", instance.ID).
		Update("grace_until", &graceUntil).Error; err != nil {
		logger.Log.Error("failed to set grace window",
			zap.String("instance_id", instance.ID), zap.Error(err))
	}

	if err := r.svc.SyncStatus(ctx, instance.ID); err != nil {
		logger.Log.Error("forced re-sync failed",
			zap.String("instance_id", instance.ID), zap.Error(err))
	}
}
