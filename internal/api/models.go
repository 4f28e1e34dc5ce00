package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"dnac-sync/internal/database"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"requestId,omitempty"`
	Path      string            `json:"path,omitempty"`
	Method    string            `json:"method,omitempty"`
	Status    int               `json:"status"`
}

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	// Authentication errors
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrorCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Validation errors
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrorCodeInvalidJSON      ErrorCode = "INVALID_JSON"
	ErrorCodeInvalidFormat    ErrorCode = "INVALID_FORMAT"

	// Resource errors
	ErrorCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrorCodeResourceExists ErrorCode = "RESOURCE_EXISTS"
	ErrorCodeSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"

	// Rate limiting
	ErrorCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Service errors
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError      ErrorCode = "DATABASE_ERROR"
	ErrorCodeControllerError    ErrorCode = "CONTROLLER_ERROR"
)

// HTTPStatusMapping maps error codes to HTTP status codes
var HTTPStatusMapping = map[ErrorCode]int{
	ErrorCodeValidationFailed: http.StatusBadRequest,
	ErrorCodeInvalidJSON:      http.StatusBadRequest,
	ErrorCodeInvalidFormat:    http.StatusBadRequest,

	ErrorCodeUnauthorized: http.StatusUnauthorized,
	ErrorCodeInvalidToken: http.StatusUnauthorized,

	ErrorCodeNotFound: http.StatusNotFound,

	ErrorCodeResourceExists: http.StatusConflict,
	ErrorCodeSyncInProgress: http.StatusConflict,

	ErrorCodeRateLimitExceeded: http.StatusTooManyRequests,

	ErrorCodeInternalError: http.StatusInternalServerError,
	ErrorCodeDatabaseError: http.StatusInternalServerError,

	ErrorCodeControllerError: http.StatusBadGateway,

	ErrorCodeServiceUnavailable: http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
func (ec ErrorCode) GetHTTPStatus() int {
	if status, exists := HTTPStatusMapping[ec]; exists {
		return status
	}
	return http.StatusInternalServerError
}

// NewErrorResponse creates a standardized error response
func NewErrorResponse(code ErrorCode, message string, r *http.Request, requestID string) *ErrorResponse {
	response := &ErrorResponse{
		Error:     "true",
		Code:      string(code),
		Message:   message,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
		Status:    code.GetHTTPStatus(),
	}

	if r != nil {
		response.Path = r.URL.Path
		response.Method = r.Method
	}

	return response
}

// AddDetail adds a detail to the error response
func (er *ErrorResponse) AddDetail(key, value string) *ErrorResponse {
	if er.Details == nil {
		er.Details = make(map[string]string)
	}
	er.Details[key] = value
	return er
}

// HealthCheckResponse is returned by GET /health
type HealthCheckResponse struct {
	Status           string        `json:"status"`
	Timestamp        time.Time     `json:"timestamp"`
	Version          string        `json:"version"`
	Uptime           time.Duration `json:"uptime"`
	Database         string        `json:"database"`
	Cache            string        `json:"cache,omitempty"`
	WebSocketClients int           `json:"websocketClients"`
}

// TenantStatus is the authentication state of one tenant
type TenantStatus struct {
	ID        int64  `json:"id"`
	Hostname  string `json:"hostname"`
	Enabled   bool   `json:"enabled"`
	Status    string `json:"status"`
	SiteCount *int   `json:"siteCount,omitempty"`

	// Inventory held locally since the last sync
	StoredSites   int `json:"storedSites"`
	StoredDevices int `json:"storedDevices"`
}

// StatusResponse is returned by GET /status
type StatusResponse struct {
	Tenants   []TenantStatus `json:"tenants"`
	Timestamp time.Time      `json:"timestamp"`
}

// TenantRequest is the body of tenant create and update calls. On update,
// omitted fields are left untouched.
type TenantRequest struct {
	Hostname *string `json:"hostname,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Verify   *bool   `json:"verify,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
}

// ValidateCreate checks that every field required to create a tenant is set
func (r *TenantRequest) ValidateCreate() error {
	var missing []string
	if r.Hostname == nil || strings.TrimSpace(*r.Hostname) == "" {
		missing = append(missing, "hostname")
	}
	if r.Username == nil || *r.Username == "" {
		missing = append(missing, "username")
	}
	if r.Password == nil || *r.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Tenant builds the tenant to create. Verify defaults to true.
func (r *TenantRequest) Tenant() *database.Tenant {
	tenant := &database.Tenant{
		Hostname: strings.TrimSpace(*r.Hostname),
		Username: *r.Username,
		Password: *r.Password,
		Verify:   true,
	}
	if r.Verify != nil {
		tenant.Verify = *r.Verify
	}
	if r.Enabled != nil {
		tenant.Enabled = *r.Enabled
	}
	return tenant
}

// Update converts the request to a partial tenant update
func (r *TenantRequest) Update() database.TenantUpdate {
	return database.TenantUpdate{
		Hostname: r.Hostname,
		Username: r.Username,
		Password: r.Password,
		Verify:   r.Verify,
		Enabled:  r.Enabled,
	}
}

// TenantsResponse lists configured tenants; passwords are never included
type TenantsResponse struct {
	Tenants []*database.Tenant `json:"tenants"`
	Total   int                `json:"total"`
}

// SyncResponse is returned by the sync endpoints
type SyncResponse struct {
	Runs []*database.SyncRun `json:"runs"`
}

// SyncRunsResponse lists recorded sync runs
type SyncRunsResponse struct {
	Runs  []database.SyncRun `json:"runs"`
	Total int                `json:"total"`
}

// SitesResponse lists the stored sites of a tenant
type SitesResponse struct {
	TenantID int64                    `json:"tenantId"`
	Sites    []database.InventorySite `json:"sites"`
	Total    int                      `json:"total"`
}

// DevicesResponse lists the stored devices of a tenant
type DevicesResponse struct {
	TenantID int64                      `json:"tenantId"`
	Devices  []database.InventoryDevice `json:"devices"`
	Total    int                        `json:"total"`
}

// MappingResponse is the live serial number to site id mapping of a tenant
type MappingResponse struct {
	TenantID int64             `json:"tenantId"`
	Hostname string            `json:"hostname"`
	Mapping  map[string]string `json:"mapping"`
	Total    int               `json:"total"`
}
