package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v1auth "github.com/taoshinakamoto/VOLTAGEGPU/internal/api/v1/auth"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/database"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}

	db.Migrator().DropTable(&models.Account{})
	if err := db.AutoMigrate(&models.Account{}); err != nil {
		panic("failed to migrate database")
	}

	database.DB = db
	database.RedisClient = nil
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/api/v1")
	v1auth.RegisterRoutes(group)
	return router
}

func postJSON(router *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestRegister(t *testing.T) {
	setupTestDB()
	t.Setenv("JWT_SECRET", "test-secret")
	router := setupRouter()

	w := postJSON(router, "/api/v1/auth/register", map[string]string{
		"email":    "user@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Status int                    `json:"status"`
		Data   v1auth.AccountResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "user@example.com", resp.Data.Email)
	assert.NotEmpty(t, resp.Data.Token)
	// First account bootstraps as admin.
	assert.Equal(t, "admin", resp.Data.Role)

	// Duplicate email is rejected.
	w = postJSON(router, "/api/v1/auth/register", map[string]string{
		"email":    "user@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	setupTestDB()
	router := setupRouter()

	tests := []struct {
		name    string
		payload map[string]string
	}{
		{"missing email", map[string]string{"password": "password123"}},
		{"bad email", map[string]string{"email": "not-an-email", "password": "password123"}},
		{"short password", map[string]string{"email": "user@example.com", "password": "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(router, "/api/v1/auth/register", tt.payload)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
		})
	}
}

func TestLogin(t *testing.T) {
	setupTestDB()
	t.Setenv("JWT_SECRET", "test-secret")
	router := setupRouter()

	w := postJSON(router, "/api/v1/auth/register", map[string]string{
		"email":    "user@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(router, "/api/v1/auth/login", map[string]string{
		"email":    "user@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data v1auth.AccountResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.Token)

	w = postJSON(router, "/api/v1/auth/login", map[string]string{
		"email":    "user@example.com",
		"password": "wrongpassword",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_ERROR")
}
