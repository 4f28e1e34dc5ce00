package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const upsertSiteSuffix = `ON CONFLICT (tenant_id, site_id) DO UPDATE SET
    name = excluded.name,
    name_hierarchy = excluded.name_hierarchy,
    parent_id = excluded.parent_id,
    site_type = excluded.site_type,
    last_seen = excluded.last_seen`

const upsertDeviceSuffix = `ON CONFLICT (tenant_id, serial_number) DO UPDATE SET
    device_id = excluded.device_id,
    hostname = excluded.hostname,
    management_ip = excluded.management_ip,
    platform_id = excluded.platform_id,
    family = excluded.family,
    role = excluded.role,
    software_version = excluded.software_version,
    mac_address = excluded.mac_address,
    reachability_status = excluded.reachability_status,
    site_id = excluded.site_id,
    last_seen = excluded.last_seen`

// UpsertSites writes the given sites for one tenant in a single transaction
func (db *DB) UpsertSites(ctx context.Context, sites []InventorySite) error {
	if len(sites) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, site := range sites {
		query, args, err := db.builder.Insert("inventory_sites").
			Columns("tenant_id", "site_id", "name", "name_hierarchy", "parent_id", "site_type", "last_seen").
			Values(site.TenantID, site.SiteID, site.Name, site.NameHierarchy, site.ParentID, site.SiteType, site.LastSeen.UTC()).
			Suffix(upsertSiteSuffix).
			ToSql()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to build site upsert: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert site %s: %w", site.SiteID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sites: %w", err)
	}

	return nil
}

// UpsertDevices writes the given devices for one tenant in a single transaction
func (db *DB) UpsertDevices(ctx context.Context, devices []InventoryDevice) error {
	if len(devices) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, d := range devices {
		query, args, err := db.builder.Insert("inventory_devices").
			Columns("tenant_id", "serial_number", "device_id", "hostname", "management_ip", "platform_id",
				"family", "role", "software_version", "mac_address", "reachability_status", "site_id", "last_seen").
			Values(d.TenantID, d.SerialNumber, d.DeviceID, d.Hostname, d.ManagementIP, d.PlatformID,
				d.Family, d.Role, d.SoftwareVersion, d.MacAddress, d.ReachabilityStatus, d.SiteID, d.LastSeen.UTC()).
			Suffix(upsertDeviceSuffix).
			ToSql()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to build device upsert: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert device %s: %w", d.SerialNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit devices: %w", err)
	}

	return nil
}

// ListSites returns the stored sites of a tenant ordered by hierarchy
func (db *DB) ListSites(ctx context.Context, tenantID int64) ([]InventorySite, error) {
	query, args, err := db.builder.Select("*").
		From("inventory_sites").
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("name_hierarchy", "site_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build site query: %w", err)
	}

	sites := []InventorySite{}
	if err := db.conn.SelectContext(ctx, &sites, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	return sites, nil
}

// ListDevices returns the stored devices of a tenant
func (db *DB) ListDevices(ctx context.Context, tenantID int64, filter DeviceFilter) ([]InventoryDevice, error) {
	q := db.builder.Select("*").
		From("inventory_devices").
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("serial_number")

	if filter.SiteID != "" {
		q = q.Where(sq.Eq{"site_id": filter.SiteID})
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build device query: %w", err)
	}

	devices := []InventoryDevice{}
	if err := db.conn.SelectContext(ctx, &devices, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	return devices, nil
}

// PruneSites removes sites of a tenant that were not seen since the given time
func (db *DB) PruneSites(ctx context.Context, tenantID int64, before time.Time) (int64, error) {
	return db.prune(ctx, "inventory_sites", tenantID, before)
}

// PruneDevices removes devices of a tenant that were not seen since the given time
func (db *DB) PruneDevices(ctx context.Context, tenantID int64, before time.Time) (int64, error) {
	return db.prune(ctx, "inventory_devices", tenantID, before)
}

func (db *DB) prune(ctx context.Context, table string, tenantID int64, before time.Time) (int64, error) {
	query, args, err := db.builder.Delete(table).
		Where(sq.Eq{"tenant_id": tenantID}).
		Where(sq.Lt{"last_seen": before.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build prune of %s: %w", table, err)
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", table, err)
	}

	return result.RowsAffected()
}

// InventoryCounts returns the number of stored sites and devices of a tenant
func (db *DB) InventoryCounts(ctx context.Context, tenantID int64) (sites int, devices int, err error) {
	for table, dest := range map[string]*int{"inventory_sites": &sites, "inventory_devices": &devices} {
		query, args, buildErr := db.builder.Select("COUNT(*)").
			From(table).
			Where(sq.Eq{"tenant_id": tenantID}).
			ToSql()
		if buildErr != nil {
			return 0, 0, fmt.Errorf("failed to build count of %s: %w", table, buildErr)
		}
		if err := db.conn.GetContext(ctx, dest, query, args...); err != nil {
			return 0, 0, fmt.Errorf("failed to count %s: %w", table, err)
		}
	}

	return sites, devices, nil
}
