package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/database"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/metrics"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/upstream"
	"github.com/taoshinakamoto/VOLTAGEGPU/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// actionTransitions is the explicit table of permitted client actions per
// source state. Anything not listed fails with ErrInvalidStateTransition and
// mutates nothing.
var actionTransitions = map[models.InstanceAction]map[models.InstanceStatus]models.InstanceStatus{
	models.ActionStart: {
		models.InstanceStatusStopped: models.InstanceStatusProvisioning,
	},
	models.ActionStop: {
		models.InstanceStatusRunning: models.InstanceStatusStopping,
	},
	models.ActionRestart: {
		models.InstanceStatusRunning: models.InstanceStatusProvisioning,
	},
}

// InstanceService orchestrates GPU instance lifecycle against the upstream
// provider, coordinating with the pricing engine at creation and the ledger
// throughout the lease. Mutating operations on one instance are serialized
// by a per-instance lock.
type InstanceService struct {
	Provider        upstream.Provider
	Pricing         *PricingService
	MinLease        time.Duration
	BillingInterval time.Duration
	UpstreamTimeout time.Duration

	locks sync.Map // instance ID -> *sync.Mutex
}

func NewInstanceService(provider upstream.Provider, pricing *PricingService, minLease, billingInterval, upstreamTimeout time.Duration) *InstanceService {
	return &InstanceService{
		Provider:        provider,
		Pricing:         pricing,
		MinLease:        minLease,
		BillingInterval: billingInterval,
		UpstreamTimeout: upstreamTimeout,
	}
}

// lockInstance serializes mutating operations for one instance.
func (s *InstanceService) lockInstance(instanceID string) func() {
	v, _ := s.locks.LoadOrStore(instanceID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// setStatus transitions an instance with an optimistic version check.
func setStatus(instance *models.Instance, to models.InstanceStatus, extra map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":  to,
		"version": instance.Version + 1,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := database.DB.Model(&models.Instance{}).
		Where("id = ? AND version = ?", instance.ID, instance.Version).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	logger.Log.Info("instance transition",
		zap.String("instance_id", instance.ID),
		zap.String("from", string(instance.Status)),
		zap.String("to", string(to)))
	metrics.StateTransitions.WithLabelValues(string(to)).Inc()

	instance.Status = to
	instance.Version++
	return nil
}

type CreateInstanceRequest struct {
	GPUType string
	Count   int
	Region  string
	Name    string
}

// Create validates the request, obtains a fresh quote, holds the estimated
// cost for the minimum lease, then provisions upstream. On insufficient
// credits it fails before any upstream call. A hold taken before a failed
// upstream create is always released.
func (s *InstanceService) Create(ctx context.Context, account *models.Account, req CreateInstanceRequest) (*models.Instance, error) {
	quote, err := s.Pricing.Quote(req.GPUType, req.Count, req.Region)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	instance := &models.Instance{
		ID:            uuid.New().String(),
		AccountID:     account.ID,
		GPUType:       req.GPUType,
		Count:         req.Count,
		Region:        req.Region,
		Name:          req.Name,
		Status:        models.InstanceStatusRequested,
		HourlyPrice:   quote.HourlyPrice,
		PolicyVersion: quote.PolicyVersion,
		QuoteID:       quote.ID,
		Version:       1,
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := consumeQuote(tx, quote.ID, now); err != nil {
			return err
		}
		return tx.Create(instance).Error
	})
	if err != nil {
		return nil, err
	}
	metrics.StateTransitions.WithLabelValues(string(models.InstanceStatusRequested)).Inc()

	unlock := s.lockInstance(instance.ID)
	defer unlock()

	estimate := EstimateAt(quote.HourlyPrice, s.MinLease)
	_, err = HoldCredits(account.ID, instance.ID, estimate, now, now.Add(s.MinLease),
		fmt.Sprintf("initial lease for instance %s", instance.ID))
	if err != nil {
		if statusErr := setStatus(instance, models.InstanceStatusFailed, nil); statusErr != nil {
			logger.Log.Error("failed to mark instance failed after hold failure",
				zap.String("instance_id", instance.ID), zap.Error(statusErr))
		}
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.UpstreamTimeout)
	defer cancel()

	providerID, createErr := s.Provider.Create(callCtx, upstream.CreateSpec{
		ClientRef: instance.ID,
		GPUType:   req.GPUType,
		Count:     req.Count,
		Region:    req.Region,
		Name:      req.Name,
	})
	if createErr != nil {
		metrics.UpstreamCalls.WithLabelValues("create", "error").Inc()
		providerID, createErr = s.reconcileCreate(ctx, instance, createErr)
	} else {
		metrics.UpstreamCalls.WithLabelValues("create", "ok").Inc()
	}

	if createErr != nil {
		if err := ReleaseHold(instance, 0); err != nil {
			logger.Log.Error("failed to release hold after create failure",
				zap.String("instance_id", instance.ID), zap.Error(err))
		}
		if statusErr := setStatus(instance, models.InstanceStatusFailed, nil); statusErr != nil {
			logger.Log.Error("failed to mark instance failed after create failure",
				zap.String("instance_id", instance.ID), zap.Error(statusErr))
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, createErr)
	}

	if err := s.setProviderID(instance, providerID); err != nil {
		return nil, err
	}
	if err := setStatus(instance, models.InstanceStatusProvisioning, nil); err != nil {
		return nil, err
	}
	return instance, nil
}

// reconcileCreate answers "does upstream already have this instance?" after
// a timed-out or failed create, instead of blindly retrying a non-idempotent
// call.
func (s *InstanceService) reconcileCreate(ctx context.Context, instance *models.Instance, createErr error) (string, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.UpstreamTimeout)
	defer cancel()

	state, err := s.Provider.FindByClientRef(lookupCtx, instance.ID)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return "", createErr
		}
		return "", err
	}

	logger.Log.Warn("create call failed but upstream holds the instance, adopting",
		zap.String("instance_id", instance.ID),
		zap.String("provider_id", state.ProviderID))
	return state.ProviderID, nil
}

// setProviderID records the provider identifier exactly once.
func (s *InstanceService) setProviderID(instance *models.Instance, providerID string) error {
	result := database.DB.Model(&models.Instance{}).
		Where("id = ? AND provider_id IS NULL", instance.ID).
		Update("provider_id", providerID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("provider id already set for instance %s", instance.ID)
	}
	instance.ProviderID = &providerID
	return nil
}

// Action performs start/stop/restart. Disallowed transitions fail with
// ErrInvalidStateTransition and mutate nothing.
func (s *InstanceService) Action(ctx context.Context, instanceID string, accountID uint, action models.InstanceAction) (*models.Instance, error) {
	unlock := s.lockInstance(instanceID)
	defer unlock()

	instance, err := loadOwnedInstance(instanceID, accountID)
	if err != nil {
		return nil, err
	}

	targets, ok := actionTransitions[action]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidStateTransition, action)
	}
	target, ok := targets[instance.Status]
	if !ok {
		return nil, fmt.Errorf("%w: cannot %s an instance in state %s", ErrInvalidStateTransition, action, instance.Status)
	}

	// Starting a stopped instance opens a fresh hold before upstream is
	// contacted; without funds the instance stays stopped.
	if action == models.ActionStart {
		now := time.Now()
		estimate := EstimateAt(instance.HourlyPrice, s.BillingInterval)
		if _, err := HoldCredits(accountID, instance.ID, estimate, now, now.Add(s.BillingInterval),
			fmt.Sprintf("restart lease for instance %s", instance.ID)); err != nil {
			return nil, err
		}
	}

	if err := s.dispatchAction(ctx, instance, string(action)); err != nil {
		if action == models.ActionStart {
			if relErr := ReleaseHold(instance, 0); relErr != nil {
				logger.Log.Error("failed to release hold after start failure",
					zap.String("instance_id", instance.ID), zap.Error(relErr))
			}
		}
		return nil, err
	}

	extra := map[string]interface{}{}
	if action == models.ActionStop {
		now := time.Now()
		extra["stopped_at"] = &now
	}
	if err := setStatus(instance, target, extra); err != nil {
		return nil, err
	}

	// Stopping ends the lease period early: unused reservation is returned
	// prorated for the elapsed time.
	if action == models.ActionStop {
		if err := s.releaseProrated(instance); err != nil {
			logger.Log.Error("failed to release hold on stop",
				zap.String("instance_id", instance.ID), zap.Error(err))
		}
	}

	return instance, nil
}

func (s *InstanceService) dispatchAction(ctx context.Context, instance *models.Instance, action string) error {
	if instance.ProviderID == nil {
		return fmt.Errorf("%w: instance %s has no provider id", ErrInvalidStateTransition, instance.ID)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.UpstreamTimeout)
	defer cancel()

	if err := s.Provider.Action(callCtx, *instance.ProviderID, action); err != nil {
		metrics.UpstreamCalls.WithLabelValues(action, "error").Inc()
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	metrics.UpstreamCalls.WithLabelValues(action, "ok").Inc()
	return nil
}

func (s *InstanceService) releaseProrated(instance *models.Instance) error {
	hold, err := OpenHold(instance.ID)
	if err != nil || hold == nil {
		return err
	}
	elapsed := time.Since(hold.PeriodStart)
	return ReleaseHold(instance, elapsed)
}

// Terminate is allowed from any non-terminal state and is idempotent: an
// instance already terminating or terminated succeeds without a second
// upstream call.
func (s *InstanceService) Terminate(ctx context.Context, instanceID string, accountID uint) (*models.Instance, error) {
	unlock := s.lockInstance(instanceID)
	defer unlock()

	instance, err := loadOwnedInstance(instanceID, accountID)
	if err != nil {
		return nil, err
	}

	switch instance.Status {
	case models.InstanceStatusTerminating, models.InstanceStatusTerminated:
		return instance, nil
	case models.InstanceStatusFailed:
		return nil, fmt.Errorf("%w: cannot terminate an instance in state %s", ErrInvalidStateTransition, instance.Status)
	}

	if instance.ProviderID != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.UpstreamTimeout)
		defer cancel()

		if err := s.Provider.Terminate(callCtx, *instance.ProviderID); err != nil {
			metrics.UpstreamCalls.WithLabelValues("terminate", "error").Inc()
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		metrics.UpstreamCalls.WithLabelValues("terminate", "ok").Inc()
	}

	if err := s.releaseProrated(instance); err != nil {
		logger.Log.Error("failed to release hold on terminate",
			zap.String("instance_id", instance.ID), zap.Error(err))
	}

	target := models.InstanceStatusTerminating
	if instance.ProviderID == nil {
		// Never reached upstream; nothing to wait for.
		target = models.InstanceStatusTerminated
	}
	if err := setStatus(instance, target, nil); err != nil {
		return nil, err
	}
	return instance, nil
}

// AutoStop is invoked by the billing scheduler when a renewal hold cannot be
// funded. The instance is stopped, never deleted, preserving history for
// invoicing.
func (s *InstanceService) AutoStop(ctx context.Context, instanceID string) error {
	unlock := s.lockInstance(instanceID)
	defer unlock()

	instance, err := loadInstance(instanceID)
	if err != nil {
		return err
	}
	if instance.Status != models.InstanceStatusRunning {
		return nil
	}

	logger.Log.Warn("auto-stopping instance: renewal hold could not be funded",
		zap.String("instance_id", instance.ID),
		zap.Uint("account_id", instance.AccountID))

	if err := s.dispatchAction(ctx, instance, "stop"); err != nil {
		return err
	}

	now := time.Now()
	return setStatus(instance, models.InstanceStatusStopping, map[string]interface{}{"stopped_at": &now})
}

// SyncStatus polls upstream truth for one instance and applies it. Unmapped
// upstream states flag the instance degraded rather than being coerced.
func (s *InstanceService) SyncStatus(ctx context.Context, instanceID string) error {
	unlock := s.lockInstance(instanceID)
	defer unlock()

	instance, err := loadInstance(instanceID)
	if err != nil {
		return err
	}
	if instance.Status.Terminal() || instance.ProviderID == nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.UpstreamTimeout)
	defer cancel()

	state, err := s.Provider.Status(callCtx, *instance.ProviderID)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("status", "error").Inc()
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	metrics.UpstreamCalls.WithLabelValues("status", "ok").Inc()

	return s.applyUpstreamState(instance, state)
}

func (s *InstanceService) applyUpstreamState(instance *models.Instance, state upstream.InstanceState) error {
	now := time.Now()

	observed, ok := upstream.MapStatus(state.Status)
	if !ok {
		logger.Log.Error("unmapped upstream state, flagging degraded",
			zap.String("instance_id", instance.ID),
			zap.String("raw_status", state.Status))
		if !instance.Degraded {
			metrics.DegradedInstances.Inc()
		}
		return database.DB.Model(&models.Instance{}).
			Where("id = ?", instance.ID).
			Updates(map[string]interface{}{
				"degraded":            true,
				"raw_upstream_status": state.Status,
				"last_synced_at":      &now,
			}).Error
	}

	extra := map[string]interface{}{
		"degraded":            false,
		"raw_upstream_status": state.Status,
		"last_synced_at":      &now,
	}
	if instance.Degraded {
		metrics.DegradedInstances.Dec()
	}

	if observed == instance.Status {
		return database.DB.Model(&models.Instance{}).
			Where("id = ?", instance.ID).Updates(extra).Error
	}

	switch observed {
	case models.InstanceStatusRunning:
		if instance.StartedAt == nil {
			extra["started_at"] = &now
		}
	case models.InstanceStatusStopped:
		if instance.StoppedAt == nil {
			extra["stopped_at"] = &now
		}
		// Upstream stopped the instance without a gateway action; resolve
		// the open hold here or the reservation stays locked forever.
		if err := s.releaseProrated(instance); err != nil {
			logger.Log.Error("failed to release hold on stop sync",
				zap.String("instance_id", instance.ID), zap.Error(err))
		}
	case models.InstanceStatusTerminated, models.InstanceStatusFailed:
		// Upstream ended the lease; resolve any outstanding hold so the
		// instance can settle.
		if err := s.releaseProrated(instance); err != nil {
			logger.Log.Error("failed to release hold on terminal sync",
				zap.String("instance_id", instance.ID), zap.Error(err))
		}
	}

	return setStatus(instance, observed, extra)
}

func loadInstance(instanceID string) (*models.Instance, error) {
	var instance models.Instance
	if err := database.DB.First(&instance, "id = ?", instanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return &instance, nil
}

func loadOwnedInstance(instanceID string, accountID uint) (*models.Instance, error) {
	instance, err := loadInstance(instanceID)
	if err != nil {
		return nil, err
	}
	if accountID != 0 && instance.AccountID != accountID {
		return nil, ErrInstanceNotFound
	}
	return instance, nil
}

// GetInstance returns one instance owned by the account (accountID 0 skips
// the ownership check, for admin use).
func GetInstance(instanceID string, accountID uint) (*models.Instance, error) {
	return loadOwnedInstance(instanceID, accountID)
}

// FindInstances retrieves a paginated list of instances for an account.
func FindInstances(accountID uint, status *models.InstanceStatus, page, limit int) ([]models.Instance, int64, error) {
	var instances []models.Instance
	var total int64

	query := database.DB.Model(&models.Instance{})
	if accountID != 0 {
		query = query.Where("account_id = ?", accountID)
	}
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&instances).Error; err != nil {
		return nil, 0, err
	}

	return instances, total, nil
}
