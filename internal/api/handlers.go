package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"dnac-sync/internal/cache"
	"dnac-sync/internal/ciscodnac"
	"dnac-sync/internal/database"
	"dnac-sync/internal/syncer"
)

// Store is the part of the database used by the API
type Store interface {
	ciscodnac.TenantStore
	CreateTenant(ctx context.Context, tenant *database.Tenant) (*database.Tenant, error)
	UpdateTenant(ctx context.Context, id int64, update database.TenantUpdate) (*database.Tenant, error)
	DeleteTenant(ctx context.Context, id int64) error
	ListSites(ctx context.Context, tenantID int64) ([]database.InventorySite, error)
	InventoryCounts(ctx context.Context, tenantID int64) (sites int, devices int, err error)
	ListDevices(ctx context.Context, tenantID int64, filter database.DeviceFilter) ([]database.InventoryDevice, error)
	ListSyncRuns(ctx context.Context, tenantID int64, limit uint64) ([]database.SyncRun, error)
	Ping(ctx context.Context) error
}

// Syncer runs inventory syncs on demand
type Syncer interface {
	SyncAll(ctx context.Context) ([]*database.SyncRun, error)
	SyncTenant(ctx context.Context, id int64) (*database.SyncRun, error)
}

// Handlers contains the HTTP handlers for the API endpoints
type Handlers struct {
	logger    *logrus.Logger
	store     Store
	syncer    Syncer
	dnacOpts  ciscodnac.Options
	wsManager *WebSocketManager
	version   string
	startTime time.Time
}

// NewHandlers creates the API handlers
func NewHandlers(logger *logrus.Logger, deps Dependencies) *Handlers {
	opts := deps.DNAC
	opts.Logger = logger

	return &Handlers{
		logger:    logger,
		store:     deps.Store,
		syncer:    deps.Syncer,
		dnacOpts:  opts,
		wsManager: deps.WebSocket,
		version:   deps.Version,
		startTime: time.Now(),
	}
}

// HealthCheck handles GET /api/v1/health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthCheckResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    time.Since(h.startTime),
		Database:  "ok",
	}

	if h.wsManager != nil {
		response.WebSocketClients = h.wsManager.GetConnectionCount()
	}

	statusCode := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.WithError(err).Error("Database health check failed")
		response.Status = "unhealthy"
		response.Database = err.Error()
		statusCode = http.StatusServiceUnavailable
	}

	// Cache failures only cost extra controller calls, so the service stays up
	if checker, ok := h.dnacOpts.Cache.(cache.HealthChecker); ok {
		response.Cache = "ok"
		if err := checker.Health(r.Context()); err != nil {
			h.logger.WithError(err).Warn("Cache health check failed")
			response.Cache = err.Error()
			if statusCode == http.StatusOK {
				response.Status = "degraded"
			}
		}
	}

	h.writeJSONResponse(w, response, statusCode)
}

// Status handles GET /api/v1/status. Every tenant is authenticated afresh;
// tenants that authenticate also report their site count. Stored inventory
// counts are reported for every tenant.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenants, err := h.store.ListTenants(ctx)
	if err != nil {
		h.writeStoreError(w, r, err, "Failed to list tenants")
		return
	}

	client, err := ciscodnac.New(ctx, h.store, h.dnacOpts)
	if err != nil {
		h.writeStoreError(w, r, err, "Failed to authenticate tenants")
		return
	}
	defer client.Close()

	status := client.Status()
	response := StatusResponse{
		Tenants:   make([]TenantStatus, 0, len(tenants)),
		Timestamp: time.Now().UTC(),
	}

	for _, tenant := range tenants {
		entry := TenantStatus{
			ID:       tenant.ID,
			Hostname: tenant.Hostname,
			Enabled:  tenant.Enabled,
			Status:   status[tenant.Hostname],
		}

		entry.StoredSites, entry.StoredDevices, err = h.store.InventoryCounts(ctx, tenant.ID)
		if err != nil {
			h.writeStoreError(w, r, err, "Failed to count stored inventory")
			return
		}

		if entry.Status == ciscodnac.StatusSuccess {
			count, err := client.SitesCount(ctx, tenant.Hostname)
			if err != nil {
				h.logger.WithError(err).WithField("tenant", tenant.Hostname).Warn("Failed to count sites")
			} else {
				entry.SiteCount = &count
			}
		}

		response.Tenants = append(response.Tenants, entry)
	}

	h.writeJSONResponse(w, response, http.StatusOK)
}

// ListTenants handles GET /api/v1/settings
func (h *Handlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.store.ListTenants(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err, "Failed to list tenants")
		return
	}

	h.writeJSONResponse(w, TenantsResponse{Tenants: tenants, Total: len(tenants)}, http.StatusOK)
}

// CreateTenant handles POST /api/v1/settings
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req TenantRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := req.ValidateCreate(); err != nil {
		h.writeErrorResponse(w, r, ErrorCodeValidationFailed, err.Error())
		return
	}

	tenant, err := h.store.CreateTenant(r.Context(), req.Tenant())
	if err != nil {
		h.writeStoreError(w, r, err, "Failed to create tenant")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"tenant_id": tenant.ID,
		"tenant":    tenant.Hostname,
	}).Info("Tenant created")

	h.writeJSONResponse(w, tenant, http.StatusCreated)
}

// GetTenant handles GET /api/v1/settings/{id}
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	tenant, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err, "Failed to get tenant")
		return
	}

	h.writeJSONResponse(w, tenant, http.StatusOK)
}

// UpdateTenant handles PUT /api/v1/settings/{id}
func (h *Handlers) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var req TenantRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	tenant, err := h.store.UpdateTenant(r.Context(), id, req.Update())
	if err != nil {
		h.writeStoreError(w, r, err, "Failed to update tenant")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"tenant_id":        tenant.ID,
		"tenant":           tenant.Hostname,
		"password_changed": req.Password != nil,
	}).Info("Tenant updated")

	h.writeJSONResponse(w, tenant, http.StatusOK)
}

// DeleteTenant handles DELETE /api/v1/settings/{id}
func (h *Handlers) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteTenant(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err, "Failed to delete tenant")
		return
	}

	h.logger.WithField("tenant_id", id).Info("Tenant deleted")
	w.WriteHeader(http.StatusNoContent)
}

// SyncAll handles POST /api/v1/sync
func (h *Handlers) SyncAll(w http.ResponseWriter, r *http.Request) {
	runs, err := h.syncer.SyncAll(r.Context())
	if err != nil {
		h.writeSyncError(w, r, err)
		return
	}

	h.writeJSONResponse(w, SyncResponse{Runs: runs}, http.StatusOK)
}

// SyncTenant handles POST /api/v1/sync/{id}
func (h *Handlers) SyncTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	run, err := h.syncer.SyncTenant(r.Context(), id)
	if err != nil {
		h.writeSyncError(w, r, err)
		return
	}

	h.writeJSONResponse(w, SyncResponse{Runs: []*database.SyncRun{run}}, http.StatusOK)
}

// ListSyncRuns handles GET /api/v1/sync/runs?tenant=<id>&limit=<n>
func (h *Handlers) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var tenantID int64
	if v := query.Get("tenant"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			h.writeErrorResponse(w, r, ErrorCodeInvalidFormat, "tenant must be a positive integer")
			return
		}
		tenantID = parsed
	}

	limit, ok := h.uintParam(w, r, "limit", 50)
	if !ok {
		return
	}

	runs, err := h.store.ListSyncRuns(r.Context(), tenantID, limit)
	if err != nil {
		h.writeStoreError(w, r, err, "Failed to list sync runs")
		return
	}

	h.writeJSONResponse(w, SyncRunsResponse{Runs: runs, Total: len(runs)}, http.StatusOK)
}

// ListSites handles GET /api/v1/inventory/{id}/sites
func (h *Handlers) ListSites(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.lookupTenant(w, r)
	if !ok {
		return
	}

	sites, err := h.store.ListSites(r.Context(), tenant.ID)
	if err != nil {
		h.writeStoreError(w, r, err, "Failed to list sites")
		return
	}

	h.writeJSONResponse(w, SitesResponse{TenantID: tenant.ID, Sites: sites, Total: len(sites)}, http.StatusOK)
}

// ListDevices handles GET /api/v1/inventory/{id}/devices?site=<id>&limit=<n>&offset=<n>
func (h *Handlers) ListDevices(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.lookupTenant(w, r)
	if !ok {
		return
	}

	limit, ok := h.uintParam(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := h.uintParam(w, r, "offset", 0)
	if !ok {
		return
	}

	devices, err := h.store.ListDevices(r.Context(), tenant.ID, database.DeviceFilter{
		SiteID: r.URL.Query().Get("site"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeStoreError(w, r, err, "Failed to list devices")
		return
	}

	h.writeJSONResponse(w, DevicesResponse{TenantID: tenant.ID, Devices: devices, Total: len(devices)}, http.StatusOK)
}

// DeviceMapping handles GET /api/v1/inventory/{id}/mapping. The mapping is
// read live from the controller through the cache.
func (h *Handlers) DeviceMapping(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.lookupTenant(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	hostname := tenant.Hostname

	client, err := ciscodnac.NewForTenant(ctx, h.store, tenant.ID, h.dnacOpts)
	if err != nil {
		h.writeStoreError(w, r, err, "Failed to load tenant")
		return
	}
	defer client.Close()

	if status := client.Status()[hostname]; status != ciscodnac.StatusSuccess {
		resp := NewErrorResponse(ErrorCodeControllerError, "Authentication failed", r, requestIDFrom(ctx))
		resp.AddDetail("status", status)
		h.writeError(w, resp)
		return
	}

	mapping, err := client.DevicesToSites(ctx, hostname)
	if err != nil {
		h.logger.WithError(err).WithField("tenant", hostname).Error("Failed to map devices to sites")
		h.writeErrorResponse(w, r, ErrorCodeControllerError, "Failed to map devices to sites")
		return
	}

	h.writeJSONResponse(w, MappingResponse{
		TenantID: tenant.ID,
		Hostname: hostname,
		Mapping:  mapping,
		Total:    len(mapping),
	}, http.StatusOK)
}

// WebSocketHandler handles GET /api/v1/ws
func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if h.wsManager == nil {
		h.writeErrorResponse(w, r, ErrorCodeServiceUnavailable, "WebSocket functionality not available")
		return
	}

	// The upgrader writes its own error response on failure
	if err := h.wsManager.HandleWebSocketConnection(w, r, authInfoFrom(r.Context())); err != nil {
		h.logger.WithError(err).WithField("request_id", requestIDFrom(r.Context())).Warn("WebSocket upgrade failed")
	}
}

func (h *Handlers) lookupTenant(w http.ResponseWriter, r *http.Request) (*database.Tenant, bool) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return nil, false
	}

	tenant, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err, "Failed to get tenant")
		return nil, false
	}
	return tenant, true
}

func (h *Handlers) tenantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.writeErrorResponse(w, r, ErrorCodeInvalidFormat, "Tenant id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handlers) uintParam(w http.ResponseWriter, r *http.Request, name string, def uint64) (uint64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		h.writeErrorResponse(w, r, ErrorCodeInvalidFormat, name+" must be a non-negative integer")
		return 0, false
	}
	return parsed, true
}

func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		h.writeErrorResponse(w, r, ErrorCodeInvalidJSON, "Invalid JSON in request body")
		return false
	}
	return true
}

// writeStoreError maps database errors onto API error codes
func (h *Handlers) writeStoreError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, database.ErrTenantNotFound):
		h.writeErrorResponse(w, r, ErrorCodeNotFound, "Tenant not found")
	case errors.Is(err, database.ErrTenantExists):
		h.writeErrorResponse(w, r, ErrorCodeResourceExists, "A tenant with this hostname already exists")
	case errors.Is(err, database.ErrInvalidTenant):
		h.writeErrorResponse(w, r, ErrorCodeValidationFailed, err.Error())
	default:
		h.logger.WithError(err).WithField("request_id", requestIDFrom(r.Context())).Error(message)
		h.writeErrorResponse(w, r, ErrorCodeDatabaseError, message)
	}
}

func (h *Handlers) writeSyncError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, syncer.ErrSyncInProgress) {
		h.writeErrorResponse(w, r, ErrorCodeSyncInProgress, "A sync is already running")
		return
	}
	h.writeStoreError(w, r, err, "Sync failed")
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes a standardized JSON error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, r *http.Request, code ErrorCode, message string) {
	h.writeError(w, NewErrorResponse(code, message, r, requestIDFrom(r.Context())))
}

func (h *Handlers) writeError(w http.ResponseWriter, response *ErrorResponse) {
	h.logger.WithFields(logrus.Fields{
		"error_code":  response.Code,
		"message":     response.Message,
		"status_code": response.Status,
		"path":        response.Path,
		"method":      response.Method,
		"request_id":  response.RequestID,
	}).Debug("API error response")

	h.writeJSONResponse(w, response, response.Status)
}
