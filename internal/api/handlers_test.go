package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dnac-sync/internal/ciscodnac"
	"dnac-sync/internal/database"
	"dnac-sync/internal/dnac/dnactest"
	"dnac-sync/internal/syncer"
)

// MockSyncer is a mock implementation of Syncer
type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) SyncAll(ctx context.Context) ([]*database.SyncRun, error) {
	args := m.Called(ctx)
	if runs := args.Get(0); runs != nil {
		return runs.([]*database.SyncRun), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSyncer) SyncTenant(ctx context.Context, id int64) (*database.SyncRun, error) {
	args := m.Called(ctx, id)
	if run := args.Get(0); run != nil {
		return run.(*database.SyncRun), args.Error(1)
	}
	return nil, args.Error(1)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestTenantSettings(t *testing.T) {
	env := newTestEnv(t, testConfig())

	var created database.Tenant

	t.Run("create", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/v1/settings", TenantRequest{
			Hostname: strPtr("dnac.example.com"),
			Username: strPtr("admin"),
			Password: strPtr("s3cret"),
			Enabled:  boolPtr(true),
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		assert.NotContains(t, rr.Body.String(), "s3cret", "password is write-only")

		created = decode[database.Tenant](t, rr)
		assert.NotZero(t, created.ID)
		assert.Equal(t, "dnac.example.com", created.Hostname)
		assert.True(t, created.Verify, "certificate verification defaults to on")
		assert.True(t, created.Enabled)
	})

	t.Run("create validation", func(t *testing.T) {
		tests := []struct {
			name         string
			body         interface{}
			expectedCode ErrorCode
		}{
			{name: "missing fields", body: TenantRequest{Hostname: strPtr("x.example.com")}, expectedCode: ErrorCodeValidationFailed},
			{name: "blank hostname", body: TenantRequest{Hostname: strPtr("  "), Username: strPtr("a"), Password: strPtr("b")}, expectedCode: ErrorCodeValidationFailed},
			{name: "unknown field", body: map[string]string{"hostname": "x", "colour": "blue"}, expectedCode: ErrorCodeInvalidJSON},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rr := env.do(t, http.MethodPost, "/api/v1/settings", tt.body)
				assert.Equal(t, http.StatusBadRequest, rr.Code)
				assert.Equal(t, string(tt.expectedCode), decode[ErrorResponse](t, rr).Code)
			})
		}
	})

	t.Run("duplicate hostname", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/v1/settings", TenantRequest{
			Hostname: strPtr("dnac.example.com"),
			Username: strPtr("other"),
			Password: strPtr("pw"),
		})
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, string(ErrorCodeResourceExists), decode[ErrorResponse](t, rr).Code)
	})

	t.Run("list", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/settings", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		list := decode[TenantsResponse](t, rr)
		assert.Equal(t, 1, list.Total)
		assert.NotContains(t, rr.Body.String(), "s3cret")
	})

	t.Run("get", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/settings/%d", created.ID), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, created.Hostname, decode[database.Tenant](t, rr).Hostname)

		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/settings/999", nil).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/settings/abc", nil).Code)
	})

	t.Run("update", func(t *testing.T) {
		rr := env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/settings/%d", created.ID), TenantRequest{
			Password: strPtr("rotated"),
			Enabled:  boolPtr(false),
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		updated := decode[database.Tenant](t, rr)
		assert.False(t, updated.Enabled)
		assert.Equal(t, "admin", updated.Username, "omitted fields are unchanged")

		stored, err := env.db.GetTenant(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, "rotated", stored.Password)

		rr = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/settings/%d", created.ID), TenantRequest{Username: strPtr("")})
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = env.do(t, http.MethodPut, "/api/v1/settings/999", TenantRequest{Enabled: boolPtr(true)})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("delete", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/settings/%d", created.ID)
		assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil).Code)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, nil).Code)
	})
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, testConfig())

	good := env.addTenant(t, env.controller.Hostname(), "secret", true)
	other := dnactest.NewServer("admin", "different")
	t.Cleanup(other.Close)
	wrongPassword := env.addTenant(t, other.Hostname(), "secret", true)
	disabled := env.addTenant(t, "disabled.example.com", "secret", false)

	rr := env.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	status := decode[StatusResponse](t, rr)
	require.Len(t, status.Tenants, 3)

	byID := make(map[int64]TenantStatus)
	for _, s := range status.Tenants {
		byID[s.ID] = s
	}

	assert.Equal(t, ciscodnac.StatusSuccess, byID[good.ID].Status)
	require.NotNil(t, byID[good.ID].SiteCount)
	assert.Equal(t, 2, *byID[good.ID].SiteCount)

	assert.Contains(t, byID[wrongPassword.ID].Status, "401")
	assert.Nil(t, byID[wrongPassword.ID].SiteCount)

	assert.Zero(t, byID[good.ID].StoredDevices, "nothing synced yet")

	assert.Equal(t, ciscodnac.StatusDisabled, byID[disabled.ID].Status)
	assert.False(t, byID[disabled.ID].Enabled)
}

func TestSyncAndInventory(t *testing.T) {
	env := newTestEnv(t, testConfig())
	tenant := env.addTenant(t, env.controller.Hostname(), "secret", true)

	rr := env.do(t, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	result := decode[SyncResponse](t, rr)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, database.SyncStatusSuccess, result.Runs[0].Status)
	assert.Equal(t, 3, result.Runs[0].Devices)
	assert.Equal(t, 2, result.Runs[0].Mapped)

	t.Run("single tenant", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sync/%d", tenant.ID), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode[SyncResponse](t, rr).Runs, 1)

		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/sync/999", nil).Code)
	})

	t.Run("status reports stored inventory", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/status", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		status := decode[StatusResponse](t, rr)
		require.Len(t, status.Tenants, 1)
		assert.Equal(t, 2, status.Tenants[0].StoredSites)
		assert.Equal(t, 3, status.Tenants[0].StoredDevices)
	})

	t.Run("runs", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/sync/runs?tenant=%d&limit=1", tenant.ID), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		runs := decode[SyncRunsResponse](t, rr)
		assert.Equal(t, 1, runs.Total)

		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/sync/runs?limit=-1", nil).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/sync/runs?tenant=x", nil).Code)
	})

	t.Run("sites", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/inventory/%d/sites", tenant.ID), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 2, decode[SitesResponse](t, rr).Total)
	})

	t.Run("devices", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/inventory/%d/devices", tenant.ID), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 3, decode[DevicesResponse](t, rr).Total)

		rr = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/inventory/%d/devices?site=s-1", tenant.ID), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		devices := decode[DevicesResponse](t, rr)
		require.Equal(t, 1, devices.Total)
		assert.Equal(t, "FOC1", devices.Devices[0].SerialNumber)

		rr = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/inventory/%d/devices?limit=1&offset=1", tenant.ID), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 1, decode[DevicesResponse](t, rr).Total)

		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/inventory/999/devices", nil).Code)
	})

	t.Run("mapping", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/inventory/%d/mapping", tenant.ID), nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		mapping := decode[MappingResponse](t, rr)
		assert.Equal(t, map[string]string{"FOC1": "s-1", "FOC2": "s-2"}, mapping.Mapping)
		assert.Equal(t, tenant.Hostname, mapping.Hostname)
	})
}

func TestDeviceMappingAuthFailure(t *testing.T) {
	env := newTestEnv(t, testConfig())
	tenant := env.addTenant(t, env.controller.Hostname(), "wrong", true)

	rr := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/inventory/%d/mapping", tenant.ID), nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	errResp := decode[ErrorResponse](t, rr)
	assert.Equal(t, string(ErrorCodeControllerError), errResp.Code)
	assert.Contains(t, errResp.Details["status"], "401")
}

func TestSyncErrors(t *testing.T) {
	db := setupTestDB(t)
	logger, _ := logtest.NewNullLogger()

	mockSyncer := &MockSyncer{}
	mockSyncer.On("SyncAll", mock.Anything).Return(nil, syncer.ErrSyncInProgress)
	mockSyncer.On("SyncTenant", mock.Anything, int64(7)).Return(nil, fmt.Errorf("wrapped: %w", database.ErrTenantNotFound))
	mockSyncer.On("SyncTenant", mock.Anything, int64(8)).Return(nil, fmt.Errorf("disk full"))

	cfg := testConfig()
	cfg.APIServer.Auth.Enabled = false
	server, err := NewServer(cfg, logger, Dependencies{Store: db, Syncer: mockSyncer})
	require.NoError(t, err)

	tests := []struct {
		path         string
		expectedCode int
	}{
		{path: "/api/v1/sync", expectedCode: http.StatusConflict},
		{path: "/api/v1/sync/7", expectedCode: http.StatusNotFound},
		{path: "/api/v1/sync/8", expectedCode: http.StatusInternalServerError},
		{path: "/api/v1/sync/zero", expectedCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(""))
			rr := httptest.NewRecorder()
			server.Handler().ServeHTTP(rr, req)
			assert.Equal(t, tt.expectedCode, rr.Code)
		})
	}

	mockSyncer.AssertExpectations(t)
}

func TestRecoveryMiddleware(t *testing.T) {
	env := newTestEnv(t, testConfig())

	env.server.router.HandleFunc("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, string(ErrorCodeInternalError), decode[ErrorResponse](t, rr).Code)
}
