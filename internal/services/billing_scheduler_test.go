package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/database"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/services"
)

func createRunningInstance(t *testing.T, svc *services.InstanceService, account *models.Account) *models.Instance {
	t.Helper()
	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	return forceStatus(t, instance, models.InstanceStatusRunning)
}

func expireOpenHold(t *testing.T, instanceID string) {
	t.Helper()
	past := time.Now().Add(-time.Minute)
	err := database.DB.Model(&models.Hold{}).
		Where("instance_id = ? AND status = ?", instanceID, models.HoldStatusOpen).
		Update("period_end", past).Error
	require.NoError(t, err)
}

func TestBillingSweepTicksDueInstances(t *testing.T) {
	svc, _, account := setupInstanceService(t, "10.00")
	instance := createRunningInstance(t, svc, account)
	expireOpenHold(t, instance.ID)

	scheduler := services.NewBillingScheduler(svc, time.Hour)
	scheduler.Sweep()

	// Expired period debited, next period reserved.
	fresh := reloadAccount(account.ID)
	decEqual(t, "8.00", fresh.Balance)
	decEqual(t, "2.00", fresh.Reserved)

	var holds []models.Hold
	database.DB.Where("instance_id = ?", instance.ID).Order("created_at").Find(&holds)
	require.Len(t, holds, 2)
	assert.Equal(t, models.HoldStatusSettled, holds[0].Status)
	assert.Equal(t, models.HoldStatusOpen, holds[1].Status)
}

func TestBillingSweepSkipsUnexpiredHolds(t *testing.T) {
	svc, _, account := setupInstanceService(t, "10.00")
	createRunningInstance(t, svc, account)

	scheduler := services.NewBillingScheduler(svc, time.Hour)
	scheduler.Sweep()

	fresh := reloadAccount(account.ID)
	decEqual(t, "10.00", fresh.Balance)
	decEqual(t, "2.00", fresh.Reserved)
}

func TestBillingSweepSkipsGraceWindow(t *testing.T) {
	svc, _, account := setupInstanceService(t, "10.00")
	instance := createRunningInstance(t, svc, account)
	expireOpenHold(t, instance.ID)

	// A reconciliation window suspends ticks for this instance.
	grace := time.Now().Add(10 * time.Minute)
	require.NoError(t, database.DB.Model(&models.Instance{}).
		Where("id = ?", instance.ID).
		Update("grace_until", &grace).Error)

	scheduler := services.NewBillingScheduler(svc, time.Hour)
	scheduler.Sweep()

	fresh := reloadAccount(account.ID)
	decEqual(t, "10.00", fresh.Balance)
	decEqual(t, "2.00", fresh.Reserved)
}

func TestBillingSweepAutoStopsUnfunded(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "2.00")
	instance := createRunningInstance(t, svc, account)
	expireOpenHold(t, instance.ID)

	scheduler := services.NewBillingScheduler(svc, time.Hour)
	scheduler.Sweep()

	// The elapsed period was still charged before the stop went out.
	fresh := reloadAccount(account.ID)
	decEqual(t, "0", fresh.Balance)
	decEqual(t, "0", fresh.Reserved)

	stopped, err := services.GetInstance(instance.ID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusStopping, stopped.Status)
	assert.Equal(t, []string{"stop"}, provider.actions)
}
