package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strainlens/hub/internal/models"
	"github.com/strainlens/hub/internal/scanerrors"
)

type mockScansService struct {
	createFn func(ctx context.Context, req models.CreateScanRequest) (*models.ScanRecord, error)
	getFn    func(ctx context.Context, scanID uuid.UUID) (*models.ScanRecord, error)
	listFn   func(ctx context.Context, filters models.ListScansFilters) (*models.ListScansResponse, error)
	countFn  func(ctx context.Context, ownerID string) (int64, error)
}

func (m *mockScansService) CreateScan(ctx context.Context, req models.CreateScanRequest) (*models.ScanRecord, error) {
	return m.createFn(ctx, req)
}

func (m *mockScansService) GetScan(ctx context.Context, scanID uuid.UUID) (*models.ScanRecord, error) {
	return m.getFn(ctx, scanID)
}

func (m *mockScansService) ListScans(ctx context.Context, filters models.ListScansFilters) (*models.ListScansResponse, error) {
	return m.listFn(ctx, filters)
}

func (m *mockScansService) ScanCount(ctx context.Context, ownerID string) (int64, error) {
	return m.countFn(ctx, ownerID)
}

func TestScansHandler_Create(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		svc := &mockScansService{
			createFn: func(_ context.Context, req models.CreateScanRequest) (*models.ScanRecord, error) {
				return &models.ScanRecord{
					ID:       uuid.Must(uuid.NewV7()),
					OwnerID:  req.OwnerID,
					Stage:    models.ScanStagePending,
					ImageRef: req.ImageRef,
				}, nil
			},
		}
		handler := NewScansHandler(svc)

		req := httptest.NewRequest(http.MethodPost, "/v1/scans",
			strings.NewReader(`{"owner_id":"owner-1","image_ref":"https://img.example/a.jpg"}`))
		rec := httptest.NewRecorder()

		handler.Create(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Contains(t, rec.Body.String(), `"stage":"pending"`)
	})

	t.Run("missing image_ref is rejected before the service", func(t *testing.T) {
		handler := NewScansHandler(&mockScansService{
			createFn: func(context.Context, models.CreateScanRequest) (*models.ScanRecord, error) {
				t.Fatal("service must not be called")
				return nil, nil
			},
		})

		req := httptest.NewRequest(http.MethodPost, "/v1/scans",
			strings.NewReader(`{"owner_id":"owner-1"}`))
		rec := httptest.NewRecorder()

		handler.Create(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		handler := NewScansHandler(&mockScansService{})

		req := httptest.NewRequest(http.MethodPost, "/v1/scans", strings.NewReader(`{not json`))
		rec := httptest.NewRecorder()

		handler.Create(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestScansHandler_Get(t *testing.T) {
	t.Run("invalid uuid", func(t *testing.T) {
		handler := NewScansHandler(&mockScansService{})

		req := httptest.NewRequest(http.MethodGet, "/v1/scans/not-a-uuid", nil)
		req.SetPathValue("id", "not-a-uuid")
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		handler := NewScansHandler(&mockScansService{
			getFn: func(context.Context, uuid.UUID) (*models.ScanRecord, error) {
				return nil, scanerrors.NewNotFoundError("scan", "")
			},
		})

		id := uuid.Must(uuid.NewV7()).String()
		req := httptest.NewRequest(http.MethodGet, "/v1/scans/"+id, nil)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestScansHandler_List(t *testing.T) {
	t.Run("decodes stage filter", func(t *testing.T) {
		var gotFilters models.ListScansFilters

		handler := NewScansHandler(&mockScansService{
			listFn: func(_ context.Context, filters models.ListScansFilters) (*models.ListScansResponse, error) {
				gotFilters = filters
				return &models.ListScansResponse{}, nil
			},
		})

		req := httptest.NewRequest(http.MethodGet, "/v1/scans?owner_id=owner-1&stage=done&limit=10", nil)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotFilters.OwnerID)
		assert.Equal(t, "owner-1", *gotFilters.OwnerID)
		require.NotNil(t, gotFilters.Stage)
		assert.Equal(t, models.ScanStageDone, *gotFilters.Stage)
		assert.Equal(t, 10, gotFilters.Limit)
	})

	t.Run("rejects unknown stage", func(t *testing.T) {
		handler := NewScansHandler(&mockScansService{
			listFn: func(context.Context, models.ListScansFilters) (*models.ListScansResponse, error) {
				t.Fatal("service must not be called")
				return nil, nil
			},
		})

		req := httptest.NewRequest(http.MethodGet, "/v1/scans?stage=bogus", nil)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestScansHandler_Count(t *testing.T) {
	handler := NewScansHandler(&mockScansService{
		countFn: func(_ context.Context, ownerID string) (int64, error) {
			assert.Equal(t, "owner-1", ownerID)
			return 42, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/scans/count?owner_id=owner-1", nil)
	rec := httptest.NewRecorder()

	handler.Count(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"scan_count":42`)
}
