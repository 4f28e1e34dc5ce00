package database

import (
	"errors"
	"time"
)

var (
	// ErrTenantNotFound is returned when no tenant matches the requested key
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrSyncRunNotFound is returned when no sync run matches the requested key
	ErrSyncRunNotFound = errors.New("sync run not found")
)

// Tenant is one configured controller endpoint plus its credentials
type Tenant struct {
	ID        int64     `json:"id"`
	Hostname  string    `json:"hostname"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Verify    bool      `json:"verify"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// String never includes the password
func (t Tenant) String() string {
	return t.Hostname
}

// TenantUpdate carries a partial tenant update; nil fields are left untouched
type TenantUpdate struct {
	Hostname *string `json:"hostname,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Verify   *bool   `json:"verify,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
}

// tenantRow is the stored form of a tenant, password still encrypted
type tenantRow struct {
	ID        int64     `db:"id"`
	Hostname  string    `db:"hostname"`
	Username  string    `db:"username"`
	Password  string    `db:"password"`
	Verify    bool      `db:"verify"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// InventorySite is a controller site as last seen by a sync
type InventorySite struct {
	TenantID      int64     `db:"tenant_id" json:"tenant_id"`
	SiteID        string    `db:"site_id" json:"site_id"`
	Name          string    `db:"name" json:"name"`
	NameHierarchy string    `db:"name_hierarchy" json:"name_hierarchy"`
	ParentID      string    `db:"parent_id" json:"parent_id,omitempty"`
	SiteType      string    `db:"site_type" json:"site_type,omitempty"`
	LastSeen      time.Time `db:"last_seen" json:"last_seen"`
}

// InventoryDevice is a controller device as last seen by a sync
type InventoryDevice struct {
	TenantID           int64     `db:"tenant_id" json:"tenant_id"`
	SerialNumber       string    `db:"serial_number" json:"serial_number"`
	DeviceID           string    `db:"device_id" json:"device_id"`
	Hostname           string    `db:"hostname" json:"hostname"`
	ManagementIP       string    `db:"management_ip" json:"management_ip"`
	PlatformID         string    `db:"platform_id" json:"platform_id"`
	Family             string    `db:"family" json:"family"`
	Role               string    `db:"role" json:"role"`
	SoftwareVersion    string    `db:"software_version" json:"software_version"`
	MacAddress         string    `db:"mac_address" json:"mac_address"`
	ReachabilityStatus string    `db:"reachability_status" json:"reachability_status"`
	SiteID             string    `db:"site_id" json:"site_id,omitempty"`
	LastSeen           time.Time `db:"last_seen" json:"last_seen"`
}

// DeviceFilter narrows ListDevices
type DeviceFilter struct {
	SiteID string
	Limit  uint64
	Offset uint64
}

// Sync run statuses
const (
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// SyncRun records one inventory sync of one tenant
type SyncRun struct {
	ID         int64      `db:"id" json:"id"`
	TenantID   int64      `db:"tenant_id" json:"tenant_id"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Status     string     `db:"status" json:"status"`
	Sites      int        `db:"sites" json:"sites"`
	Devices    int        `db:"devices" json:"devices"`
	Mapped     int        `db:"mapped" json:"mapped"`
	Error      string     `db:"error" json:"error,omitempty"`
}
