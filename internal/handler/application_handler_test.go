package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgc-kenya/admissions-api/internal/middleware"
	"github.com/fgc-kenya/admissions-api/internal/models"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
)

type applicationServiceMock struct {
	app        *models.Application
	bulkResp   *models.BulkTransitionResult
	listResp   []models.Application
	listTotal  int
	err        error
	lastFilter models.ApplicationFilter
	submitted  bool
}

func (m *applicationServiceMock) StartDraft(ctx context.Context, actor *models.JWTClaims, req models.CreateApplicationRequest) (*models.Application, error) {
	return m.app, m.err
}

func (m *applicationServiceMock) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Application, error) {
	return m.app, m.err
}

func (m *applicationServiceMock) UpdateDraft(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateDraftRequest) (*models.Application, error) {
	return m.app, m.err
}

func (m *applicationServiceMock) Submit(ctx context.Context, actor *models.JWTClaims, id string, meta models.RequestMeta) (*models.Application, error) {
	m.submitted = true
	return m.app, m.err
}

func (m *applicationServiceMock) Withdraw(ctx context.Context, actor *models.JWTClaims, id string, meta models.RequestMeta) (*models.Application, error) {
	return m.app, m.err
}

func (m *applicationServiceMock) Transition(ctx context.Context, actor *models.JWTClaims, id string, req models.TransitionRequest, meta models.RequestMeta) (*models.Application, error) {
	return m.app, m.err
}

func (m *applicationServiceMock) BulkTransition(ctx context.Context, actor *models.JWTClaims, req models.BulkTransitionRequest, meta models.RequestMeta) (*models.BulkTransitionResult, error) {
	return m.bulkResp, m.err
}

func (m *applicationServiceMock) History(ctx context.Context, actor *models.JWTClaims, id string) ([]models.ApplicationStatusHistory, error) {
	return nil, m.err
}

func (m *applicationServiceMock) List(ctx context.Context, actor *models.JWTClaims, filter models.ApplicationFilter) ([]models.Application, int, error) {
	m.lastFilter = filter
	return m.listResp, m.listTotal, m.err
}

func testClaims(role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Email: "amina@fgc-kenya.org", Role: role}
}

func TestApplicationHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &applicationServiceMock{
		app: &models.Application{ID: "app-1", Status: models.StatusDraft},
	}
	handler := NewApplicationHandler(mockSvc)

	payload, _ := json.Marshal(models.CreateApplicationRequest{SeasonID: "season-2026"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/applications", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, testClaims(models.RoleStudent))

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "app-1")
}

func TestApplicationHandlerCreateUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApplicationHandler(&applicationServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/applications", bytes.NewBufferString(`{}`))
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApplicationHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApplicationHandler(&applicationServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/applications", bytes.NewBufferString(`{"season_id":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, testClaims(models.RoleStudent))

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplicationHandlerSubmitServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &applicationServiceMock{err: appErrors.ErrInvalidState}
	handler := NewApplicationHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/applications/app-1/submit", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	c.Set(middleware.ContextUserKey, testClaims(models.RoleStudent))

	handler.Submit(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.True(t, mockSvc.submitted)
}

func TestApplicationHandlerListParsesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &applicationServiceMock{
		listResp:  []models.Application{{ID: "app-1"}},
		listTotal: 1,
	}
	handler := NewApplicationHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/applications?season_id=season-2026&status=SUBMITTED&page=2&page_size=10", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, testClaims(models.RoleAdmin))

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "season-2026", mockSvc.lastFilter.SeasonID)
	require.NotNil(t, mockSvc.lastFilter.Status)
	assert.Equal(t, models.StatusSubmitted, *mockSvc.lastFilter.Status)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
	assert.Equal(t, 10, mockSvc.lastFilter.PageSize)
}

func TestApplicationHandlerListRejectsUnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApplicationHandler(&applicationServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/applications?status=LOST", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, testClaims(models.RoleAdmin))

	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplicationHandlerBulkTransition(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &applicationServiceMock{
		bulkResp: &models.BulkTransitionResult{Updated: 2, Skipped: []string{"app-9"}},
	}
	handler := NewApplicationHandler(mockSvc)

	payload, _ := json.Marshal(models.BulkTransitionRequest{
		ApplicationIDs: []string{"11111111-1111-4111-8111-111111111111"},
		Status:         "SHORTLISTED",
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/applications/bulk-status", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, testClaims(models.RoleAdmin))

	handler.BulkTransition(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"updated":2`)
	assert.Contains(t, w.Body.String(), "app-9")
}
