package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/taoshinakamoto/VOLTAGEGPU/internal/database"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func RegisterAccount(email, password string) (*models.Account, error) {
	var existing models.Account
	result := database.DB.Where("email = ?", email).First(&existing)
	if result.Error == nil {
		return nil, ErrAccountAlreadyExists
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, result.Error
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var accountCount int64
	database.DB.Model(&models.Account{}).Count(&accountCount)

	role := "user"
	if accountCount == 0 {
		role = "admin"
	}

	account := &models.Account{
		Email:    email,
		Password: string(hashedPassword),
		Role:     role,
		IsActive: true,
	}

	if err := database.DB.Create(account).Error; err != nil {
		return nil, err
	}

	return account, nil
}

func LoginAccount(email, password string) (string, *models.Account, error) {
	var account models.Account
	if err := database.DB.Where("email = ?", email).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if !account.IsActive {
		return "", nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := utils.GenerateToken(account.ID, account.Role)
	if err != nil {
		return "", nil, err
	}

	return token, &account, nil
}

// FindAccountByID reads through the redis cache when available.
func FindAccountByID(accountID uint) (models.Account, error) {
	cacheKey := fmt.Sprintf("account:%d", accountID)
	if database.RedisClient != nil {
		val, err := database.RedisClient.Get(database.Ctx, cacheKey).Result()
		if err == nil {
			var account models.Account
			if err := json.Unmarshal([]byte(val), &account); err == nil {
				return account, nil
			}
		}
	}

	var account models.Account
	if err := database.DB.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return account, ErrAccountNotFound
		}
		return account, err
	}

	if database.RedisClient != nil {
		if data, err := json.Marshal(account); err == nil {
			database.RedisClient.Set(database.Ctx, cacheKey, data, time.Hour)
		}
	}

	return account, nil
}

// InvalidateAccountCache drops the cached account after a ledger mutation.
func InvalidateAccountCache(accountID uint) {
	if database.RedisClient != nil {
		database.RedisClient.Del(database.Ctx, fmt.Sprintf("account:%d", accountID))
	}
}

// FindAccounts retrieves a paginated list of accounts.
func FindAccounts(page, limit int) ([]models.Account, int64, error) {
	var accounts []models.Account
	var total int64

	offset := (page - 1) * limit

	if err := database.DB.Model(&models.Account{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := database.DB.Limit(limit).Offset(offset).Find(&accounts).Error; err != nil {
		return nil, 0, err
	}

	return accounts, total, nil
}
