package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
)

func TestReconcilerConvergesDivergedInstance(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")
	instance := createRunningInstance(t, svc, account)

	// Upstream quietly stopped the instance.
	provider.setStatus(*instance.ProviderID, "stopped")

	reconciler := services.NewReconciler(svc, time.Hour, 10*time.Minute)
	reconciler.Sweep(context.Background())

	fresh, err := services.GetInstance(instance.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusStopped, fresh.Status)

	// The disputed period is shielded from billing.
	require.NotNil(t, fresh.GraceUntil)
	assert.True(t, fresh.GraceUntil.After(time.Now()))
}

func TestReconcilerLeavesConsistentInstancesAlone(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")
	instance := createRunningInstance(t, svc, account)
	provider.setStatus(*instance.ProviderID, "running")

	reconciler := services.NewReconciler(svc, time.Hour, 10*time.Minute)
	reconciler.Sweep(context.Background())

	fresh, err := services.GetInstance(instance.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRunning, fresh.Status)
	assert.Nil(t, fresh.GraceUntil)
}

func TestReconcilerFlagsUnmappedState(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")
	instance := createRunningInstance(t, svc, account)
	provider.setStatus(*instance.ProviderID, "maintenance")

	reconciler := services.NewReconciler(svc, time.Hour, 10*time.Minute)
	reconciler.Sweep(context.Background())

	fresh, err := services.GetInstance(instance.ID, account.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Degraded)
	assert.Equal(t, "maintenance", fresh.RawUpstreamStatus)
	// Unmapped upstream truth never overwrites the tracked state.
	assert.Equal(t, models.InstanceStatusRunning, fresh.Status)
	assert.NotNil(t, fresh.GraceUntil)
}
