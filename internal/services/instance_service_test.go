package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/database"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/upstream"
	"gorm.io/gorm"
)

func setupInstanceService(t *testing.T, balance string) (*services.InstanceService, *fakeProvider, *models.Account) {
	t.Helper()
	setupTestDB()

	provider := newFakeProvider()
	provider.offers = []upstream.Offer{availableOffer("A100", "us-east", "1.00")}

	catalog := services.NewCatalogService(provider, 3)
	require.NoError(t, catalog.Refresh(context.Background()))
	require.NoError(t, services.EnsureDefaultPolicy(2.0))

	pricing := services.NewPricingService(catalog, time.Minute)
	svc := services.NewInstanceService(provider, pricing, time.Hour, time.Hour, 5*time.Second)

	account := createTestAccount(balance)
	return svc, provider, account
}

func forceStatus(t *testing.T, instance *models.Instance, status models.InstanceStatus) *models.Instance {
	t.Helper()
	err := database.DB.Model(&models.Instance{}).
		Where("id = ?", instance.ID).
		Updates(map[string]interface{}{"status": status, "version": gorm.Expr("version + 1")}).Error
	require.NoError(t, err)

	fresh, err := services.GetInstance(instance.ID, 0)
	require.NoError(t, err)
	return fresh
}

func TestCreateInstance(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east", Name: "train-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusProvisioning, instance.Status)
	require.NotNil(t, instance.ProviderID)
	assert.Equal(t, "prov-1", *instance.ProviderID)
	decEqual(t, "2.00", instance.HourlyPrice)
	assert.Equal(t, 1, provider.createCalls)

	// Minimum lease is reserved up front.
	fresh := reloadAccount(account.ID)
	decEqual(t, "10.00", fresh.Balance)
	decEqual(t, "2.00", fresh.Reserved)

	// The quote that priced this instance is spent.
	quote, err := services.GetQuote(instance.QuoteID)
	require.NoError(t, err)
	assert.NotNil(t, quote.ConsumedAt)
}

func TestCreateInstanceInsufficientCredits(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "1.00")

	_, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	assert.ErrorIs(t, err, services.ErrInsufficientCredits)

	// Refused before upstream was ever contacted.
	assert.Equal(t, 0, provider.createCalls)

	var instance models.Instance
	require.NoError(t, database.DB.First(&instance, "account_id = ?", account.ID).Error)
	assert.Equal(t, models.InstanceStatusFailed, instance.Status)
}

func TestCreateInstanceUpstreamFailure(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")
	provider.createErr = upstream.ErrUnavailable

	_, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	assert.ErrorIs(t, err, services.ErrUpstreamUnavailable)

	// Hold released in full, instance marked failed.
	fresh := reloadAccount(account.ID)
	decEqual(t, "10.00", fresh.Balance)
	decEqual(t, "0", fresh.Reserved)

	var instance models.Instance
	require.NoError(t, database.DB.First(&instance, "account_id = ?", account.ID).Error)
	assert.Equal(t, models.InstanceStatusFailed, instance.Status)

	var releases int64
	database.DB.Model(&models.LedgerEntry{}).
		Where("account_id = ? AND kind = ?", account.ID, models.LedgerEntryRelease).Count(&releases)
	assert.Equal(t, int64(1), releases)
}

func TestCreateInstanceAdoptsAfterTimeout(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")
	provider.createErr = context.DeadlineExceeded
	provider.adoptOnFailure = true

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusProvisioning, instance.Status)
	require.NotNil(t, instance.ProviderID)
	assert.Equal(t, "prov-1", *instance.ProviderID)

	// The lease hold stays in place; the instance exists upstream.
	fresh := reloadAccount(account.ID)
	decEqual(t, "2.00", fresh.Reserved)
}

func TestActionInvalidTransition(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	instance = forceStatus(t, instance, models.InstanceStatusTerminated)

	_, err = svc.Action(context.Background(), instance.ID, account.ID, models.ActionStart)
	assert.ErrorIs(t, err, services.ErrInvalidStateTransition)

	// Nothing moved.
	fresh, err := services.GetInstance(instance.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusTerminated, fresh.Status)
	assert.Empty(t, provider.actions)
}

func TestActionStopReleasesProrated(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	instance = forceStatus(t, instance, models.InstanceStatusRunning)

	stopped, err := svc.Action(context.Background(), instance.ID, account.ID, models.ActionStop)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusStopping, stopped.Status)
	assert.NotNil(t, stopped.StoppedAt)
	assert.Equal(t, []string{"stop"}, provider.actions)

	// The open hold is resolved; only the elapsed sliver is charged.
	fresh := reloadAccount(account.ID)
	decEqual(t, "0", fresh.Reserved)
	assert.True(t, fresh.Balance.GreaterThanOrEqual(fresh.Reserved))

	hold, err := services.OpenHold(instance.ID)
	require.NoError(t, err)
	assert.Nil(t, hold)
}

func TestActionStartOpensNewHold(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	require.NoError(t, services.ReleaseHold(instance, 0))
	instance = forceStatus(t, instance, models.InstanceStatusStopped)

	started, err := svc.Action(context.Background(), instance.ID, account.ID, models.ActionStart)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusProvisioning, started.Status)
	assert.Equal(t, []string{"start"}, provider.actions)

	fresh := reloadAccount(account.ID)
	decEqual(t, "2.00", fresh.Reserved)
}

func TestActionStartWithoutFundsLeavesInstanceStopped(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "2.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)

	// Burn the balance so a restart cannot be funded.
	_, err = services.TickInstance(instance, time.Hour)
	assert.ErrorIs(t, err, services.ErrInsufficientCredits)
	instance = forceStatus(t, instance, models.InstanceStatusStopped)

	_, err = svc.Action(context.Background(), instance.ID, account.ID, models.ActionStart)
	assert.ErrorIs(t, err, services.ErrInsufficientCredits)

	fresh, err := services.GetInstance(instance.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusStopped, fresh.Status)
	assert.Empty(t, provider.actions)
}

func TestTerminateIdempotent(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	instance = forceStatus(t, instance, models.InstanceStatusRunning)

	first, err := svc.Terminate(context.Background(), instance.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusTerminating, first.Status)
	assert.Equal(t, 1, provider.terminateCalls)

	// A second terminate succeeds without touching upstream again.
	second, err := svc.Terminate(context.Background(), instance.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusTerminating, second.Status)
	assert.Equal(t, 1, provider.terminateCalls)

	hold, err := services.OpenHold(instance.ID)
	require.NoError(t, err)
	assert.Nil(t, hold)
}

func TestTerminateFailedInstance(t *testing.T) {
	svc, _, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	instance = forceStatus(t, instance, models.InstanceStatusFailed)

	_, err = svc.Terminate(context.Background(), instance.ID, account.ID)
	assert.ErrorIs(t, err, services.ErrInvalidStateTransition)
}

func TestTerminateOwnershipEnforced(t *testing.T) {
	svc, _, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)

	_, err = svc.Terminate(context.Background(), instance.ID, account.ID+1)
	assert.ErrorIs(t, err, services.ErrInstanceNotFound)
}

func TestAutoStop(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	instance = forceStatus(t, instance, models.InstanceStatusRunning)

	require.NoError(t, svc.AutoStop(context.Background(), instance.ID))

	fresh, err := services.GetInstance(instance.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusStopping, fresh.Status)
	assert.NotNil(t, fresh.StoppedAt)
	assert.Equal(t, []string{"stop"}, provider.actions)

	// Stopped, never deleted.
	require.NoError(t, svc.AutoStop(context.Background(), instance.ID))
	assert.Equal(t, []string{"stop"}, provider.actions)
}

func TestSyncStatusUnmappedStateFlagsDegraded(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	provider.setStatus(*instance.ProviderID, "rebalancing")

	require.NoError(t, svc.SyncStatus(context.Background(), instance.ID))

	fresh, err := services.GetInstance(instance.ID, account.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Degraded)
	assert.Equal(t, "rebalancing", fresh.RawUpstreamStatus)
	// Internal state is never coerced from an unknown upstream string.
	assert.Equal(t, models.InstanceStatusProvisioning, fresh.Status)

	// A recognized state clears the flag and transitions.
	provider.setStatus(*instance.ProviderID, "running")
	require.NoError(t, svc.SyncStatus(context.Background(), instance.ID))

	fresh, err = services.GetInstance(instance.ID, account.ID)
	require.NoError(t, err)
	assert.False(t, fresh.Degraded)
	assert.Equal(t, models.InstanceStatusRunning, fresh.Status)
	assert.NotNil(t, fresh.StartedAt)
}

func TestSyncStatusTerminalReleasesHold(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	provider.setStatus(*instance.ProviderID, "terminated")

	require.NoError(t, svc.SyncStatus(context.Background(), instance.ID))

	fresh, err := services.GetInstance(instance.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusTerminated, fresh.Status)

	hold, err := services.OpenHold(instance.ID)
	require.NoError(t, err)
	assert.Nil(t, hold)

	account2 := reloadAccount(account.ID)
	decEqual(t, "0", account2.Reserved)
}

func TestSyncStatusUpstreamStopReleasesHold(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	instance = forceStatus(t, instance, models.InstanceStatusRunning)

	// Upstream stopped the instance on its own; no gateway stop action ever
	// ran, so the sync must resolve the open hold itself.
	provider.setStatus(*instance.ProviderID, "stopped")
	require.NoError(t, svc.SyncStatus(context.Background(), instance.ID))

	fresh, err := services.GetInstance(instance.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusStopped, fresh.Status)
	assert.NotNil(t, fresh.StoppedAt)

	hold, err := services.OpenHold(instance.ID)
	require.NoError(t, err)
	assert.Nil(t, hold)

	account2 := reloadAccount(account.ID)
	decEqual(t, "0", account2.Reserved)
}

func TestSyncStatusUpstreamErrorWrapped(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	provider.statusErr = errors.New("boom")

	err = svc.SyncStatus(context.Background(), instance.ID)
	assert.ErrorIs(t, err, services.ErrUpstreamUnavailable)
}
