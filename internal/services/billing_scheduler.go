package services

import (
	"context"
	"errors"
	"time"

	"github.com/taoshinakamoto/VOLTAGEGPU/internal/database"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/pkg/logger"
	"go.uber.org/zap"
)

// BillingScheduler drives ledger ticks for running instances. It runs
// independently of request handling; stopping an instance removes it from
// future sweeps while an in-flight tick completes under the instance lock.
type BillingScheduler struct {
	svc           *InstanceService
	checkInterval time.Duration
	stopChan      chan struct{}
	doneChan      chan struct{}
}

func NewBillingScheduler(svc *InstanceService, checkInterval time.Duration) *BillingScheduler {
	return &BillingScheduler{
		svc:           svc,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

func (b *BillingScheduler) Start() {
	go func() {
		defer close(b.doneChan)
		ticker := time.NewTicker(b.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				b.Sweep()
			case <-b.stopChan:
				return
			}
		}
	}()
}

func (b *BillingScheduler) Stop() {
	close(b.stopChan)
	<-b.doneChan
}

// Sweep ticks every running instance whose current hold period has elapsed.
func (b *BillingScheduler) Sweep() {
	var due []models.Instance
	now := time.Now()

	err := database.DB.
		Joins("JOIN holds ON holds.instance_id = instances.id AND holds.status = ?", models.HoldStatusOpen).
		Where("instances.status = ?", models.InstanceStatusRunning).
		Where("holds.period_end <= ?", now).
		Find(&due).Error
	if err != nil {
		logger.Log.Error("billing sweep query failed", zap.Error(err))
		return
	}

	for i := range due {
		b.tickOne(&due[i], now)
	}
}

func (b *BillingScheduler) tickOne(instance *models.Instance, now time.Time) {
	unlock := b.svc.lockInstance(instance.ID)

	fresh, err := loadInstance(instance.ID)
	if err != nil || fresh.Status != models.InstanceStatusRunning {
		unlock()
		return
	}

	// Reconciliation grace: the discrepancy window is never billed.
	if fresh.GraceUntil != nil && now.Before(*fresh.GraceUntil) {
		unlock()
		logger.Log.Info("skipping billing tick inside grace window",
			zap.String("instance_id", fresh.ID))
		return
	}

	debited, err := TickInstance(fresh, b.svc.BillingInterval)
	unlock()

	if err == nil {
		logger.Log.Info("billing tick",
			zap.String("instance_id", fresh.ID),
			zap.String("debited", debited.String()))
		return
	}

	if errors.Is(err, ErrInsufficientCredits) {
		// The elapsed period was charged; the lease cannot continue unpaid.
		if stopErr := b.svc.AutoStop(context.Background(), fresh.ID); stopErr != nil {
			logger.Log.Error("auto-stop failed",
				zap.String("instance_id", fresh.ID), zap.Error(stopErr))
		}
		return
	}

	logger.Log.Error("billing tick failed",
		zap.String("instance_id", fresh.ID), zap.Error(err))
}
