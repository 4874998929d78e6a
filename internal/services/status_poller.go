package services

import (
	"context"
	"sync"
	"time"

	"github.com/taoshinakamoto/VOLTAGEGPU/internal/database"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/pkg/logger"
	"go.uber.org/zap"
)

// degradeAfterFailures marks an instance degraded once this many consecutive
// status polls fail.
const degradeAfterFailures = 5

// StatusPoller keeps non-terminal instances in sync with upstream truth on a
// fixed interval.
type StatusPoller struct {
	svc      *InstanceService
	interval time.Duration

	mu         sync.RWMutex
	tracked    map[string]*polledInstance
	addChan    chan string
	removeChan chan string
	stopChan   chan struct{}
	doneChan   chan struct{}
}

type polledInstance struct {
	ID         string
	RetryCount int
	LastPoll   time.Time
}

func NewStatusPoller(svc *InstanceService, interval time.Duration) *StatusPoller {
	return &StatusPoller{
		svc:        svc,
		interval:   interval,
		tracked:    make(map[string]*polledInstance),
		addChan:    make(chan string, 100),
		removeChan: make(chan string, 100),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

// Track adds an instance ID to the poller.
func (p *StatusPoller) Track(instanceID string) {
	p.addChan <- instanceID
}

// Untrack removes an instance ID from the poller.
func (p *StatusPoller) Untrack(instanceID string) {
	p.removeChan <- instanceID
}

// Resume loads all non-terminal instances at boot so a restart does not lose
// track of in-flight leases.
func (p *StatusPoller) Resume() error {
	var instances []models.Instance
	err := database.DB.
		Where("status NOT IN ?", []models.InstanceStatus{models.InstanceStatusTerminated, models.InstanceStatusFailed}).
		Find(&instances).Error
	if err != nil {
		return err
	}

	p.mu.Lock()
	for _, inst := range instances {
		p.tracked[inst.ID] = &polledInstance{ID: inst.ID}
	}
	p.mu.Unlock()

	logger.Log.Info("status poller resumed", zap.Int("tracked", len(instances)))
	return nil
}

// Start runs the polling loop until Stop is called.
func (p *StatusPoller) Start() {
	go func() {
		defer close(p.doneChan)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case id := <-p.addChan:
				p.mu.Lock()
				if _, exists := p.tracked[id]; !exists {
					p.tracked[id] = &polledInstance{ID: id}
				}
				p.mu.Unlock()

			case id := <-p.removeChan:
				p.mu.Lock()
				delete(p.tracked, id)
				p.mu.Unlock()

			case <-ticker.C:
				p.pollAll()

			case <-p.stopChan:
				return
			}
		}
	}()
}

// Stop halts the polling loop; an in-flight poll completes on its own.
func (p *StatusPoller) Stop() {
	close(p.stopChan)
	<-p.doneChan
}

func (p *StatusPoller) pollAll() {
	p.mu.RLock()
	batch := make([]*polledInstance, 0, len(p.tracked))
	for _, t := range p.tracked {
		batch = append(batch, t)
	}
	p.mu.RUnlock()

	for _, t := range batch {
		go p.pollInstance(t)
	}
}

func (p *StatusPoller) pollInstance(t *polledInstance) {
	instance, err := loadInstance(t.ID)
	if err != nil {
		p.Untrack(t.ID)
		return
	}
	if instance.Status.Terminal() {
		p.Untrack(t.ID)
		return
	}
	if instance.Status == models.InstanceStatusRequested || instance.ProviderID == nil {
		return
	}

	t.LastPoll = time.Now()
	if err := p.svc.SyncStatus(context.Background(), t.ID); err != nil {
		t.RetryCount++
		logger.Log.Warn("status poll failed",
			zap.String("instance_id", t.ID),
			zap.Int("retry_count", t.RetryCount),
			zap.Error(err))

		if t.RetryCount >= degradeAfterFailures {
			// Surfaced for reconciliation rather than guessed at.
			database.DB.Model(&models.Instance{}).
				Where("id = ?", t.ID).
				Update("degraded", true)
			t.RetryCount = 0
		}
		return
	}
	t.RetryCount = 0
}
