package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/database"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/metrics"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ledgerMaxRetries bounds optimistic-lock retries; account mutations are
// serialized by the account version column, not by a process-wide lock.
const ledgerMaxRetries = 5

// accountMutation applies balance/reserved deltas and appends entries inside
// one transaction. The version check makes concurrent mutations for the same
// account serializable; losers retry.
type accountMutation func(tx *gorm.DB, account *models.Account) error

func mutateAccount(accountID uint, fn accountMutation) error {
	var err error
	for attempt := 0; attempt < ledgerMaxRetries; attempt++ {
		err = func() error {
			tx := database.DB.Begin()
			defer func() {
				if r := recover(); r != nil {
					tx.Rollback()
					panic(r)
				}
			}()

			var account models.Account
			if findErr := tx.First(&account, accountID).Error; findErr != nil {
				tx.Rollback()
				if errors.Is(findErr, gorm.ErrRecordNotFound) {
					return ErrAccountNotFound
				}
				return findErr
			}

			if fnErr := fn(tx, &account); fnErr != nil {
				tx.Rollback()
				return fnErr
			}

			return tx.Commit().Error
		}()

		if !errors.Is(err, ErrOptimisticLock) {
			break
		}
	}

	if err == nil {
		InvalidateAccountCache(accountID)
	}
	return err
}

// applyAccountDelta writes the new balance/reserved with a version check.
func applyAccountDelta(tx *gorm.DB, account *models.Account, balance, reserved decimal.Decimal) error {
	result := tx.Model(&models.Account{}).
		Where("id = ? AND version = ?", account.ID, account.Version).
		Updates(map[string]interface{}{
			"balance":  balance,
			"reserved": reserved,
			"version":  account.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	account.Balance = balance
	account.Reserved = reserved
	account.Version++
	return nil
}

func appendEntry(tx *gorm.DB, entry *models.LedgerEntry) error {
	if err := tx.Create(entry).Error; err != nil {
		return err
	}
	metrics.LedgerEntries.WithLabelValues(string(entry.Kind)).Inc()
	return nil
}

func logEntry(entry *models.LedgerEntry) {
	logger.Log.Info("ledger entry",
		zap.Uint("entry_id", entry.ID),
		zap.Uint("account_id", entry.AccountID),
		zap.String("kind", string(entry.Kind)),
		zap.String("amount", entry.Amount.String()),
		zap.String("balance_after", entry.BalanceAfter.String()),
		zap.String("reserved_after", entry.ReservedAfter.String()))
}

// HoldCredits reserves credits for one billing period. Fails with
// ErrInsufficientCredits when spendable credits cannot cover the amount;
// nothing is written in that case.
func HoldCredits(accountID uint, instanceID string, amount decimal.Decimal, periodStart, periodEnd time.Time, reason string) (*models.Hold, error) {
	var hold *models.Hold

	err := mutateAccount(accountID, func(tx *gorm.DB, account *models.Account) error {
		if account.Spendable().LessThan(amount) {
			return ErrInsufficientCredits
		}

		newReserved := account.Reserved.Add(amount)
		if err := applyAccountDelta(tx, account, account.Balance, newReserved); err != nil {
			return err
		}

		hold = &models.Hold{
			ID:          uuid.New().String(),
			AccountID:   accountID,
			InstanceID:  instanceID,
			Amount:      amount,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			Status:      models.HoldStatusOpen,
		}
		if err := tx.Create(hold).Error; err != nil {
			return err
		}

		entry := &models.LedgerEntry{
			AccountID:     accountID,
			InstanceID:    &instanceID,
			HoldID:        &hold.ID,
			Kind:          models.LedgerEntryHold,
			Amount:        amount,
			BalanceAfter:  account.Balance,
			ReservedAfter: newReserved,
			Reason:        reason,
			Operator:      "system",
		}
		if err := appendEntry(tx, entry); err != nil {
			return err
		}
		logEntry(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hold, nil
}

// OpenHold returns the outstanding hold for an instance, if any.
func OpenHold(instanceID string) (*models.Hold, error) {
	var hold models.Hold
	err := database.DB.
		Where("instance_id = ? AND status = ?", instanceID, models.HoldStatusOpen).
		First(&hold).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &hold, nil
}

// settleHold converts the instance's open hold into a full debit and
// returns the settled hold so callers can anchor the next period at its
// boundary.
func settleHold(instance *models.Instance) (*models.Hold, error) {
	hold, err := OpenHold(instance.ID)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, nil
	}

	err = mutateAccount(instance.AccountID, func(tx *gorm.DB, account *models.Account) error {
		newBalance := account.Balance.Sub(hold.Amount)
		newReserved := account.Reserved.Sub(hold.Amount)
		if err := applyAccountDelta(tx, account, newBalance, newReserved); err != nil {
			return err
		}

		result := tx.Model(&models.Hold{}).
			Where("id = ? AND status = ?", hold.ID, models.HoldStatusOpen).
			Update("status", models.HoldStatusSettled)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Resolved by a concurrent path; charging again would double-bill.
			return ErrReconciliationConflict
		}

		entry := &models.LedgerEntry{
			AccountID:     instance.AccountID,
			InstanceID:    &instance.ID,
			HoldID:        &hold.ID,
			Kind:          models.LedgerEntryDebit,
			Amount:        hold.Amount,
			BalanceAfter:  newBalance,
			ReservedAfter: newReserved,
			Reason:        fmt.Sprintf("billing period %s to %s", hold.PeriodStart.Format(time.RFC3339), hold.PeriodEnd.Format(time.RFC3339)),
			Operator:      "system",
		}
		if err := appendEntry(tx, entry); err != nil {
			return err
		}
		logEntry(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hold, nil
}

// TickInstance realizes the current hold as a debit and opens the hold for
// the next billing interval. ErrInsufficientCredits means the debit went
// through but the renewal could not be funded; the caller must auto-stop the
// instance.
func TickInstance(instance *models.Instance, interval time.Duration) (decimal.Decimal, error) {
	settled, err := settleHold(instance)
	if err != nil {
		return decimal.Zero, err
	}

	// The renewal starts where the settled period ended, not at the sweep
	// time; otherwise the lag between period end and the sweep firing is
	// running but belongs to no hold.
	debited := decimal.Zero
	periodStart := time.Now()
	if settled != nil {
		debited = settled.Amount
		periodStart = settled.PeriodEnd
	}

	nextAmount := EstimateAt(instance.HourlyPrice, interval)
	_, err = HoldCredits(instance.AccountID, instance.ID, nextAmount, periodStart, periodStart.Add(interval),
		fmt.Sprintf("renewal for instance %s", instance.ID))
	if err != nil {
		return debited, err
	}
	return debited, nil
}

// ReleaseHold resolves the instance's open hold when it stops or terminates
// mid-period: the elapsed fraction is debited, the remainder released. A
// zero elapsed duration restores the reservation in full.
func ReleaseHold(instance *models.Instance, elapsed time.Duration) error {
	hold, err := OpenHold(instance.ID)
	if err != nil || hold == nil {
		return err
	}

	period := hold.PeriodEnd.Sub(hold.PeriodStart)
	debitPart := decimal.Zero
	if period > 0 && elapsed > 0 {
		if elapsed > period {
			elapsed = period
		}
		fraction := decimal.NewFromFloat(elapsed.Seconds() / period.Seconds())
		debitPart = hold.Amount.Mul(fraction).RoundBank(totalPrecision)
		if debitPart.GreaterThan(hold.Amount) {
			debitPart = hold.Amount
		}
	}
	releasePart := hold.Amount.Sub(debitPart)

	return mutateAccount(instance.AccountID, func(tx *gorm.DB, account *models.Account) error {
		newBalance := account.Balance.Sub(debitPart)
		newReserved := account.Reserved.Sub(hold.Amount)
		if err := applyAccountDelta(tx, account, newBalance, newReserved); err != nil {
			return err
		}

		result := tx.Model(&models.Hold{}).
			Where("id = ? AND status = ?", hold.ID, models.HoldStatusOpen).
			Update("status", models.HoldStatusReleased)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrReconciliationConflict
		}

		if debitPart.IsPositive() {
			entry := &models.LedgerEntry{
				AccountID:     instance.AccountID,
				InstanceID:    &instance.ID,
				HoldID:        &hold.ID,
				Kind:          models.LedgerEntryDebit,
				Amount:        debitPart,
				BalanceAfter:  newBalance,
				ReservedAfter: newReserved,
				Reason:        fmt.Sprintf("prorated charge: %s elapsed", elapsed),
				Operator:      "system",
			}
			if err := appendEntry(tx, entry); err != nil {
				return err
			}
			logEntry(entry)
		}

		entry := &models.LedgerEntry{
			AccountID:     instance.AccountID,
			InstanceID:    &instance.ID,
			HoldID:        &hold.ID,
			Kind:          models.LedgerEntryRelease,
			Amount:        releasePart,
			BalanceAfter:  newBalance,
			ReservedAfter: newReserved,
			Reason:        "unused reservation returned",
			Operator:      "system",
		}
		if err := appendEntry(tx, entry); err != nil {
			return err
		}
		logEntry(entry)
		return nil
	})
}

// CreditAccount tops up an account balance (deposit or admin adjustment).
func CreditAccount(accountID uint, amount decimal.Decimal, reason, operator string) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive")
	}

	var entry *models.LedgerEntry
	err := mutateAccount(accountID, func(tx *gorm.DB, account *models.Account) error {
		newBalance := account.Balance.Add(amount)
		if err := applyAccountDelta(tx, account, newBalance, account.Reserved); err != nil {
			return err
		}

		entry = &models.LedgerEntry{
			AccountID:     accountID,
			Kind:          models.LedgerEntryCredit,
			Amount:        amount,
			BalanceAfter:  newBalance,
			ReservedAfter: account.Reserved,
			Reason:        reason,
			Operator:      operator,
		}
		if err := appendEntry(tx, entry); err != nil {
			return err
		}
		logEntry(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// LedgerFilter defines criteria for filtering ledger entries
type LedgerFilter struct {
	AccountID  *uint
	InstanceID *string
	Kind       *models.LedgerEntryKind
	StartTime  *time.Time
	EndTime    *time.Time
	Page       int
	Limit      int
}

// FindLedgerEntries retrieves a paginated list of ledger entries with filtering
func FindLedgerEntries(filter LedgerFilter) ([]models.LedgerEntry, int64, error) {
	var entries []models.LedgerEntry
	var total int64

	query := database.DB.Model(&models.LedgerEntry{})

	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.InstanceID != nil {
		query = query.Where("instance_id = ?", *filter.InstanceID)
	}
	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", *filter.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("created_at desc")
	if filter.Limit > 0 {
		offset := (filter.Page - 1) * filter.Limit
		if offset < 0 {
			offset = 0
		}
		query = query.Limit(filter.Limit).Offset(offset)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// GenerateLedgerCSV generates a CSV export of ledger entries
func GenerateLedgerCSV(entries []models.LedgerEntry) ([]byte, error) {
	b := &bytes.Buffer{}
	w := csv.NewWriter(b)

	header := []string{
		"ID", "Time", "Account ID", "Instance ID", "Hold ID",
		"Kind", "Amount", "Balance After", "Reserved After", "Reason", "Operator",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, e := range entries {
		instanceID := ""
		if e.InstanceID != nil {
			instanceID = *e.InstanceID
		}
		holdID := ""
		if e.HoldID != nil {
			holdID = *e.HoldID
		}
		record := []string{
			fmt.Sprintf("%d", e.ID),
			e.CreatedAt.Format(time.RFC3339Nano),
			fmt.Sprintf("%d", e.AccountID),
			instanceID,
			holdID,
			string(e.Kind),
			e.Amount.String(),
			e.BalanceAfter.String(),
			e.ReservedAfter.String(),
			e.Reason,
			e.Operator,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}
