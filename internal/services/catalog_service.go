package services

import (
	"context"
	"sync"
	"time"

	"github.com/taoshinakamoto/VOLTAGEGPU/internal/metrics"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/upstream"
	"github.com/taoshinakamoto/VOLTAGEGPU/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CatalogService caches upstream GPU availability. It is constructed
// explicitly and injected where needed; refreshes are single-flighted so
// concurrent callers share one upstream call. After MaxFailures consecutive
// refresh failures, entries report availability unknown instead of serving
// stale data.
type CatalogService struct {
	provider    upstream.Provider
	maxFailures int

	mu           sync.RWMutex
	offers       map[string]models.GPUOffer // key: gpuType|region
	lastRefresh  time.Time
	failureCount int

	group    singleflight.Group
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewCatalogService(provider upstream.Provider, maxFailures int) *CatalogService {
	return &CatalogService{
		provider:    provider,
		maxFailures: maxFailures,
		offers:      make(map[string]models.GPUOffer),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
}

func catalogKey(gpuType, region string) string {
	return gpuType + "|" + region
}

// Refresh pulls availability from upstream. Concurrent calls collapse into a
// single in-flight refresh; every caller receives its result.
func (s *CatalogService) Refresh(ctx context.Context) error {
	_, err, _ := s.group.Do("refresh", func() (interface{}, error) {
		return nil, s.refresh(ctx)
	})
	return err
}

func (s *CatalogService) refresh(ctx context.Context) error {
	offers, err := s.provider.Availability(ctx)
	if err != nil {
		s.mu.Lock()
		s.failureCount++
		failures := s.failureCount
		if failures >= s.maxFailures {
			// Correctness over liveness: stop reporting stale availability.
			for k, o := range s.offers {
				o.Availability = models.AvailabilityUnknown
				o.Stale = true
				s.offers[k] = o
			}
		} else {
			for k, o := range s.offers {
				o.Stale = true
				s.offers[k] = o
			}
		}
		s.mu.Unlock()

		metrics.CatalogStale.Set(1)
		logger.Log.Warn("catalog refresh failed",
			zap.Int("consecutive_failures", failures),
			zap.Error(err))
		return err
	}

	now := time.Now()
	fresh := make(map[string]models.GPUOffer, len(offers))
	for _, o := range offers {
		availability := models.AvailabilityAvailable
		if o.AvailableCount <= 0 {
			availability = models.AvailabilityUnavailable
		}
		fresh[catalogKey(o.GPUType, o.Region)] = models.GPUOffer{
			GPUType:        o.GPUType,
			Region:         o.Region,
			VRAMGB:         o.VRAMGB,
			TFLOPS:         o.TFLOPS,
			BackendHourly:  o.PricePerHour,
			AvailableCount: o.AvailableCount,
			TotalCount:     o.TotalCount,
			Availability:   availability,
			FetchedAt:      now,
		}
	}

	s.mu.Lock()
	s.offers = fresh
	s.failureCount = 0
	s.lastRefresh = now
	s.mu.Unlock()

	metrics.CatalogStale.Set(0)
	return nil
}

// Get returns the offer for one GPU type in one region.
func (s *CatalogService) Get(gpuType, region string) (models.GPUOffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offer, ok := s.offers[catalogKey(gpuType, region)]
	return offer, ok
}

// List returns offers filtered by optional GPU type and region.
func (s *CatalogService) List(gpuType, region string) []models.GPUOffer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.GPUOffer, 0, len(s.offers))
	for _, o := range s.offers {
		if gpuType != "" && o.GPUType != gpuType {
			continue
		}
		if region != "" && o.Region != region {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Degraded reports whether availability can no longer be trusted.
func (s *CatalogService) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failureCount >= s.maxFailures
}

// Start runs the background refresh loop until Stop is called. The initial
// cold fill happens synchronously so the request path never sees an empty
// catalog on a healthy upstream.
func (s *CatalogService) Start(interval time.Duration) {
	if err := s.Refresh(context.Background()); err != nil {
		logger.Log.Warn("catalog cold fill failed", zap.Error(err))
	}

	go func() {
		defer close(s.doneChan)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Refresh(context.Background())
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop halts the refresh loop and drains any in-flight refresh.
func (s *CatalogService) Stop() {
	close(s.stopChan)
	<-s.doneChan
	// Wait for an in-flight single-flighted refresh to settle.
	s.group.Do("refresh", func() (interface{}, error) { return nil, nil })
}
