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

func TestStatusPollerSyncsTrackedInstance(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	provider.setStatus(*instance.ProviderID, "running")

	poller := services.NewStatusPoller(svc, 20*time.Millisecond)
	poller.Start()
	defer poller.Stop()
	poller.Track(instance.ID)

	assert.Eventually(t, func() bool {
		fresh, err := services.GetInstance(instance.ID, account.ID)
		return err == nil && fresh.Status == models.InstanceStatusRunning
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStatusPollerResume(t *testing.T) {
	svc, provider, account := setupInstanceService(t, "10.00")

	instance, err := svc.Create(context.Background(), account, services.CreateInstanceRequest{
		GPUType: "A100", Count: 1, Region: "us-east",
	})
	require.NoError(t, err)
	instance = forceStatus(t, instance, models.InstanceStatusRunning)
	provider.setStatus(*instance.ProviderID, "stopped")

	// A restarted process picks up in-flight leases without explicit Track calls.
	poller := services.NewStatusPoller(svc, 20*time.Millisecond)
	require.NoError(t, poller.Resume())
	poller.Start()
	defer poller.Stop()

	assert.Eventually(t, func() bool {
		fresh, err := services.GetInstance(instance.ID, account.ID)
		return err == nil && fresh.Status == models.InstanceStatusStopped
	}, 2*time.Second, 20*time.Millisecond)
}
