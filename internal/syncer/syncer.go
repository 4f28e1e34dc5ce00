// Package syncer copies DNA Center inventory into the local database.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dnac-sync/internal/ciscodnac"
	"dnac-sync/internal/database"
	"dnac-sync/internal/dnac"
	"dnac-sync/internal/logging"
	"dnac-sync/internal/metrics"
)

// Event types published while syncing
const (
	EventSyncStarted   = "sync_started"
	EventSyncCompleted = "sync_completed"
	EventSyncFailed    = "sync_failed"
)

// ErrSyncInProgress is returned when a sync is requested while another one runs
var ErrSyncInProgress = errors.New("sync already in progress")

// Store is the part of the database used by the syncer
type Store interface {
	ciscodnac.TenantStore
	ListEnabledTenants(ctx context.Context) ([]*database.Tenant, error)
	UpsertSites(ctx context.Context, sites []database.InventorySite) error
	UpsertDevices(ctx context.Context, devices []database.InventoryDevice) error
	PruneSites(ctx context.Context, tenantID int64, before time.Time) (int64, error)
	PruneDevices(ctx context.Context, tenantID int64, before time.Time) (int64, error)
	StartSyncRun(ctx context.Context, tenantID int64, startedAt time.Time) (*database.SyncRun, error)
	FinishSyncRun(ctx context.Context, run *database.SyncRun) error
}

// EventPublisher receives sync progress events
type EventPublisher interface {
	BroadcastEvent(eventType string, data interface{})
}

// Syncer runs inventory syncs. Only one sync runs at a time.
type Syncer struct {
	store     Store
	opts      ciscodnac.Options
	publisher EventPublisher
	logger    *logrus.Logger

	running sync.Mutex
}

// New creates a syncer. publisher may be nil.
func New(store Store, opts ciscodnac.Options, publisher EventPublisher, logger *logrus.Logger) *Syncer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	opts.Logger = logger

	return &Syncer{
		store:     store,
		opts:      opts,
		publisher: publisher,
		logger:    logger,
	}
}

// SyncAll syncs every enabled tenant, one after the other. A failing tenant is
// recorded in its run and does not stop the others; the returned error only
// reports problems reading the tenant table.
func (s *Syncer) SyncAll(ctx context.Context) ([]*database.SyncRun, error) {
	if !s.running.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.running.Unlock()

	client, err := ciscodnac.New(ctx, s.store, s.opts)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	tenants, err := s.store.ListEnabledTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled tenants: %w", err)
	}

	runs := make([]*database.SyncRun, 0, len(tenants))
	for _, tenant := range tenants {
		if ctx.Err() != nil {
			break
		}

		run, err := s.syncTenant(ctx, client, tenant)
		if err != nil {
			logging.LogStorageError(s.logger, err, "sync_run", true)
			continue
		}
		runs = append(runs, run)
	}

	return runs, ctx.Err()
}

// SyncTenant syncs a single tenant, enabled or not. An unknown id returns
// database.ErrTenantNotFound.
func (s *Syncer) SyncTenant(ctx context.Context, id int64) (*database.SyncRun, error) {
	if !s.running.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.running.Unlock()

	tenant, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}

	client, err := ciscodnac.NewForTenant(ctx, s.store, id, s.opts)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return s.syncTenant(ctx, client, tenant)
}

// Run calls SyncAll every interval until ctx is cancelled. A non-positive
// interval disables the loop.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	logger := logging.NewServiceLogger(s.logger, "syncer")
	logger.WithField("interval", interval.String()).Info("Starting periodic sync")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Periodic sync stopped")
			return
		case <-ticker.C:
			runs, err := s.SyncAll(ctx)
			if err != nil {
				if errors.Is(err, ErrSyncInProgress) {
					logger.Debug("Skipping periodic sync, another sync is running")
					continue
				}
				if ctx.Err() == nil {
					logger.WithError(err).Error("Periodic sync failed")
				}
				continue
			}
			logger.WithField("tenants", len(runs)).Info("Periodic sync finished")
		}
	}
}

// syncTenant records a run for the tenant and performs the sync. The error is
// only about recording the run; sync failures end up in the run itself.
func (s *Syncer) syncTenant(ctx context.Context, client *ciscodnac.CiscoDNAC, tenant *database.Tenant) (*database.SyncRun, error) {
	logger := logging.NewTenantLogger(s.logger, tenant.Hostname)
	started := time.Now().UTC()

	run, err := s.store.StartSyncRun(ctx, tenant.ID, started)
	if err != nil {
		return nil, err
	}

	s.publish(EventSyncStarted, map[string]interface{}{
		"tenant_id": tenant.ID,
		"tenant":    tenant.Hostname,
		"run_id":    run.ID,
	})
	logger.WithField("run_id", run.ID).Info("Starting inventory sync")

	syncErr := s.syncInventory(ctx, client, tenant, started, run)

	run.Status = database.SyncStatusSuccess
	if syncErr != nil {
		run.Status = database.SyncStatusFailed
		run.Error = syncErr.Error()
	}

	// The run must be closed even when ctx is already cancelled
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.FinishSyncRun(finishCtx, run); err != nil {
		return nil, err
	}

	duration := time.Since(started)
	metrics.RecordSync(tenant.Hostname, duration, syncErr)

	fields := logrus.Fields{
		"run_id":   run.ID,
		"sites":    run.Sites,
		"devices":  run.Devices,
		"mapped":   run.Mapped,
		"duration": duration.String(),
	}

	if syncErr != nil {
		fields["category"] = logging.ClassifyError(syncErr)
		logger.WithFields(fields).WithError(syncErr).Error("Inventory sync failed")
		s.publish(EventSyncFailed, map[string]interface{}{
			"tenant_id": tenant.ID,
			"tenant":    tenant.Hostname,
			"run_id":    run.ID,
			"error":     run.Error,
		})
		return run, nil
	}

	metrics.UpdateInventory(tenant.Hostname, run.Sites, run.Devices, run.Mapped)
	logger.WithFields(fields).Info("Inventory sync completed")
	s.publish(EventSyncCompleted, map[string]interface{}{
		"tenant_id": tenant.ID,
		"tenant":    tenant.Hostname,
		"run_id":    run.ID,
		"sites":     run.Sites,
		"devices":   run.Devices,
		"mapped":    run.Mapped,
	})

	return run, nil
}

func (s *Syncer) syncInventory(ctx context.Context, client *ciscodnac.CiscoDNAC, tenant *database.Tenant, seen time.Time, run *database.SyncRun) error {
	host := tenant.Hostname

	if status := client.Status()[host]; status != ciscodnac.StatusSuccess {
		return fmt.Errorf("authentication failed: %s", status)
	}

	sites, err := client.Sites(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to fetch sites: %w", err)
	}

	devices, err := client.Devices(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to fetch devices: %w", err)
	}

	mapping, err := client.DevicesToSitesIn(ctx, host, sites)
	if err != nil {
		return fmt.Errorf("failed to map devices to sites: %w", err)
	}

	siteRows := make([]database.InventorySite, 0, len(sites))
	for _, site := range sites {
		siteRows = append(siteRows, toInventorySite(tenant.ID, site, seen))
	}

	deviceRows := make([]database.InventoryDevice, 0, len(devices))
	mapped := 0
	for _, device := range devices {
		if device.SerialNumber == "" {
			logging.NewTenantLogger(s.logger, host).WithField("device_id", device.ID).Warn("Skipping device without serial number")
			continue
		}
		row := toInventoryDevice(tenant.ID, device, mapping[device.SerialNumber], seen)
		if row.SiteID != "" {
			mapped++
		}
		deviceRows = append(deviceRows, row)
	}

	if err := s.store.UpsertSites(ctx, siteRows); err != nil {
		return err
	}
	if err := s.store.UpsertDevices(ctx, deviceRows); err != nil {
		return err
	}
	if _, err := s.store.PruneSites(ctx, tenant.ID, seen); err != nil {
		return err
	}
	if _, err := s.store.PruneDevices(ctx, tenant.ID, seen); err != nil {
		return err
	}

	run.Sites = len(siteRows)
	run.Devices = len(deviceRows)
	run.Mapped = mapped
	return nil
}

func (s *Syncer) publish(eventType string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.BroadcastEvent(eventType, data)
}

func toInventorySite(tenantID int64, site dnac.Site, seen time.Time) database.InventorySite {
	return database.InventorySite{
		TenantID:      tenantID,
		SiteID:        site.ID,
		Name:          site.Name,
		NameHierarchy: site.SiteNameHierarchy,
		ParentID:      site.ParentID,
		SiteType:      site.Type(),
		LastSeen:      seen,
	}
}

func toInventoryDevice(tenantID int64, device dnac.Device, siteID string, seen time.Time) database.InventoryDevice {
	return database.InventoryDevice{
		TenantID:           tenantID,
		SerialNumber:       device.SerialNumber,
		DeviceID:           device.ID,
		Hostname:           device.Hostname,
		ManagementIP:       device.ManagementIPAddress,
		PlatformID:         device.PlatformID,
		Family:             device.Family,
		Role:               device.Role,
		SoftwareVersion:    device.SoftwareVersion,
		MacAddress:         device.MacAddress,
		ReachabilityStatus: device.ReachabilityStatus,
		SiteID:             siteID,
		LastSeen:           seen,
	}
}
