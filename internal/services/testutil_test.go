package services_test

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/database"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/upstream"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB() {
	// Use in-memory SQLite for testing
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}

	// Drop tables if exist to ensure clean state and schema update
	db.Migrator().DropTable(
		&models.Account{},
		&models.PricingPolicy{},
		&models.PricingQuote{},
		&models.Instance{},
		&models.Hold{},
		&models.LedgerEntry{},
		&models.Invoice{},
	)

	err = db.AutoMigrate(
		&models.Account{},
		&models.PricingPolicy{},
		&models.PricingQuote{},
		&models.Instance{},
		&models.Hold{},
		&models.LedgerEntry{},
		&models.Invoice{},
	)
	if err != nil {
		panic("failed to migrate database")
	}

	database.DB = db
	database.RedisClient = nil
}

func createTestAccount(balance string) *models.Account {
	account := &models.Account{
		Email:    "billing@example.com",
		Password: "hashed",
		Role:     "user",
		Balance:  decimal.RequireFromString(balance),
		Reserved: decimal.Zero,
		IsActive: true,
	}
	if err := database.DB.Create(account).Error; err != nil {
		panic(err)
	}
	return account
}

func reloadAccount(id uint) *models.Account {
	var account models.Account
	if err := database.DB.First(&account, id).Error; err != nil {
		panic(err)
	}
	return &account
}

// fakeProvider is an in-memory upstream used by service tests.
type fakeProvider struct {
	mu sync.Mutex

	offers    []upstream.Offer
	offersErr error

	createID       string
	createErr      error
	createCalls    int
	adoptOnFailure bool

	statuses  map[string]string
	statusErr error

	actions   []string
	actionErr error

	terminateCalls int
	terminateErr   error

	byClientRef map[string]upstream.InstanceState
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		createID:    "prov-1",
		statuses:    make(map[string]string),
		byClientRef: make(map[string]upstream.InstanceState),
	}
}

func (f *fakeProvider) Availability(ctx context.Context) ([]upstream.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offersErr != nil {
		return nil, f.offersErr
	}
	out := make([]upstream.Offer, len(f.offers))
	copy(out, f.offers)
	return out, nil
}

func (f *fakeProvider) Create(ctx context.Context, spec upstream.CreateSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		if f.adoptOnFailure {
			// Simulates a timed-out create that did land upstream.
			f.byClientRef[spec.ClientRef] = upstream.InstanceState{ProviderID: f.createID, Status: "pending"}
			f.statuses[f.createID] = "pending"
		}
		return "", f.createErr
	}
	f.statuses[f.createID] = "pending"
	return f.createID, nil
}

func (f *fakeProvider) Status(ctx context.Context, providerID string) (upstream.InstanceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return upstream.InstanceState{}, f.statusErr
	}
	status, ok := f.statuses[providerID]
	if !ok {
		return upstream.InstanceState{}, upstream.ErrNotFound
	}
	return upstream.InstanceState{ProviderID: providerID, Status: status}, nil
}

func (f *fakeProvider) Action(ctx context.Context, providerID string, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return f.actionErr
	}
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeProvider) Terminate(ctx context.Context, providerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminateCalls++
	if f.terminateErr != nil {
		return f.terminateErr
	}
	f.statuses[providerID] = "terminated"
	return nil
}

func (f *fakeProvider) FindByClientRef(ctx context.Context, clientRef string) (upstream.InstanceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.byClientRef[clientRef]
	if !ok {
		return upstream.InstanceState{}, upstream.ErrNotFound
	}
	return state, nil
}

func (f *fakeProvider) setStatus(providerID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[providerID] = status
}

func availableOffer(gpuType, region, hourly string) upstream.Offer {
	return upstream.Offer{
		GPUType:        gpuType,
		Region:         region,
		VRAMGB:         80,
		TFLOPS:         312,
		PricePerHour:   decimal.RequireFromString(hourly),
		AvailableCount: 4,
		TotalCount:     8,
	}
}
