package services

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/database"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// currency precision: hourly prices carry 4 decimal places, totals 2.
// Both round half-to-even.
const (
	hourlyPrecision = 4
	totalPrecision  = 2
)

// PricingService issues time-boxed, price-locked quotes from backend cost
// and the active markup policy.
type PricingService struct {
	Catalog  *CatalogService
	QuoteTTL time.Duration
}

func NewPricingService(catalog *CatalogService, quoteTTL time.Duration) *PricingService {
	return &PricingService{Catalog: catalog, QuoteTTL: quoteTTL}
}

// ActivePolicy returns the highest-version pricing policy.
func ActivePolicy() (*models.PricingPolicy, error) {
	var policy models.PricingPolicy
	if err := database.DB.Order("version desc").First(&policy).Error; err != nil {
		return nil, err
	}
	return &policy, nil
}

// CreatePolicy inserts a new immutable policy version. Existing instances
// keep billing at their snapshot price regardless.
func CreatePolicy(markup decimal.Decimal, rules []models.DiscountRule, createdBy string) (*models.PricingPolicy, error) {
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return nil, err
	}

	var latest models.PricingPolicy
	version := 1
	err = database.DB.Order("version desc").First(&latest).Error
	if err == nil {
		version = latest.Version + 1
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	policy := &models.PricingPolicy{
		Version:       version,
		Markup:        markup,
		DiscountRules: datatypes.JSON(rulesJSON),
		CreatedBy:     createdBy,
	}
	if err := database.DB.Create(policy).Error; err != nil {
		return nil, err
	}
	return policy, nil
}

// EnsureDefaultPolicy seeds version 1 from configuration on first boot.
func EnsureDefaultPolicy(markup float64) error {
	_, err := ActivePolicy()
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	_, err = CreatePolicy(decimal.NewFromFloat(markup), nil, "system")
	return err
}

func policyRules(policy *models.PricingPolicy) ([]models.DiscountRule, error) {
	if len(policy.DiscountRules) == 0 {
		return nil, nil
	}
	var rules []models.DiscountRule
	if err := json.Unmarshal(policy.DiscountRules, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// matchDiscount evaluates rules by descending count threshold; the first
// matching rule wins.
func matchDiscount(rules []models.DiscountRule, count int) decimal.Decimal {
	sorted := make([]models.DiscountRule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinCount > sorted[j].MinCount })

	for _, r := range sorted {
		if count >= r.MinCount {
			return r.Discount
		}
	}
	return decimal.Zero
}

// computeHourly is the pure pricing function:
// backend * count * markup * (1 - discount), rounded half-to-even.
func computeHourly(backendHourly decimal.Decimal, count int, markup, discount decimal.Decimal) decimal.Decimal {
	price := backendHourly.
		Mul(decimal.NewFromInt(int64(count))).
		Mul(markup).
		Mul(decimal.NewFromInt(1).Sub(discount))
	return price.RoundBank(hourlyPrecision)
}

// Quote prices one GPU type/count/region combination against the active
// policy and persists an immutable quote with a fixed validity window.
func (s *PricingService) Quote(gpuType string, count int, region string) (*models.PricingQuote, error) {
	offer, ok := s.Catalog.Get(gpuType, region)
	if !ok || offer.Availability != models.AvailabilityAvailable {
		return nil, ErrGPUNotOffered
	}

	policy, err := ActivePolicy()
	if err != nil {
		return nil, err
	}
	rules, err := policyRules(policy)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	quote := &models.PricingQuote{
		ID:            uuid.New().String(),
		GPUType:       gpuType,
		Count:         count,
		Region:        region,
		PolicyVersion: policy.Version,
		BackendHourly: offer.BackendHourly,
		HourlyPrice:   computeHourly(offer.BackendHourly, count, policy.Markup, matchDiscount(rules, count)),
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.QuoteTTL),
	}

	if err := database.DB.Create(quote).Error; err != nil {
		return nil, err
	}
	return quote, nil
}

func GetQuote(id string) (*models.PricingQuote, error) {
	var quote models.PricingQuote
	if err := database.DB.First(&quote, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuoteNotFound
		}
		return nil, err
	}
	return &quote, nil
}

// Estimate projects the total cost of a quote over a duration; it sizes the
// initial credit hold.
func Estimate(quote *models.PricingQuote, duration time.Duration) (decimal.Decimal, error) {
	if quote.Expired(time.Now()) {
		return decimal.Zero, ErrQuoteExpired
	}
	return EstimateAt(quote.HourlyPrice, duration), nil
}

// EstimateAt is the pure projection: hourly * hours, currency-rounded.
func EstimateAt(hourly decimal.Decimal, duration time.Duration) decimal.Decimal {
	hours := decimal.NewFromFloat(duration.Hours())
	return hourly.Mul(hours).RoundBank(totalPrecision)
}

// consumeQuote marks a quote used inside the caller's transaction. A quote
// prices at most one instance.
func consumeQuote(tx *gorm.DB, quoteID string, now time.Time) error {
	result := tx.Model(&models.PricingQuote{}).
		Where("id = ? AND consumed_at IS NULL", quoteID).
		Update("consumed_at", now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQuoteConsumed
	}
	return nil
}

// TierPrices returns the marked-up price per commitment tier for one offer.
var tierDiscounts = []struct {
	Tier     string
	Discount decimal.Decimal
}{
	{"on_demand", decimal.Zero},
	{"spot", decimal.NewFromFloat(0.3)},
	{"reserved_monthly", decimal.NewFromFloat(0.4)},
	{"reserved_yearly", decimal.NewFromFloat(0.5)},
}

func (s *PricingService) TierPrices(gpuType, region string) (map[string]decimal.Decimal, error) {
	offer, ok := s.Catalog.Get(gpuType, region)
	if !ok || offer.Availability == models.AvailabilityUnknown {
		return nil, ErrGPUNotOffered
	}

	policy, err := ActivePolicy()
	if err != nil {
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(tierDiscounts))
	for _, t := range tierDiscounts {
		out[t.Tier] = computeHourly(offer.BackendHourly, 1, policy.Markup, t.Discount)
	}
	return out, nil
}
