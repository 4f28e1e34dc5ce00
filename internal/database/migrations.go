package database

import (
	"context"
	"fmt"
)

// migrate runs database migrations to create the required schema
func (db *DB) migrate(ctx context.Context) error {
	migrations := sqliteMigrations
	if db.driver == DriverPostgres {
		migrations = postgresMigrations
	}

	for i, migration := range migrations {
		if _, err := db.conn.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", i+1, err)
		}
	}

	return nil
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    hostname TEXT UNIQUE NOT NULL,
    username TEXT NOT NULL,
    password TEXT NOT NULL, -- Encrypted
    verify BOOLEAN NOT NULL DEFAULT TRUE,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS inventory_sites (
    tenant_id INTEGER NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
    site_id TEXT NOT NULL,
    name TEXT NOT NULL,
    name_hierarchy TEXT NOT NULL DEFAULT '',
    parent_id TEXT NOT NULL DEFAULT '',
    site_type TEXT NOT NULL DEFAULT '',
    last_seen TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, site_id)
);`,
	`CREATE TABLE IF NOT EXISTS inventory_devices (
    tenant_id INTEGER NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
    serial_number TEXT NOT NULL,
    device_id TEXT NOT NULL DEFAULT '',
    hostname TEXT NOT NULL DEFAULT '',
    management_ip TEXT NOT NULL DEFAULT '',
    platform_id TEXT NOT NULL DEFAULT '',
    family TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT '',
    software_version TEXT NOT NULL DEFAULT '',
    mac_address TEXT NOT NULL DEFAULT '',
    reachability_status TEXT NOT NULL DEFAULT '',
    site_id TEXT NOT NULL DEFAULT '',
    last_seen TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, serial_number)
);`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id INTEGER NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NULL,
    status TEXT NOT NULL CHECK (status IN ('running', 'success', 'failed')),
    sites INTEGER NOT NULL DEFAULT 0,
    devices INTEGER NOT NULL DEFAULT 0,
    mapped INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_devices_site ON inventory_devices(tenant_id, site_id);`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_tenant ON sync_runs(tenant_id, started_at);`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
    id BIGSERIAL PRIMARY KEY,
    hostname TEXT UNIQUE NOT NULL,
    username TEXT NOT NULL,
    password TEXT NOT NULL,
    verify BOOLEAN NOT NULL DEFAULT TRUE,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS inventory_sites (
    tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
    site_id TEXT NOT NULL,
    name TEXT NOT NULL,
    name_hierarchy TEXT NOT NULL DEFAULT '',
    parent_id TEXT NOT NULL DEFAULT '',
    site_type TEXT NOT NULL DEFAULT '',
    last_seen TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (tenant_id, site_id)
);`,
	`CREATE TABLE IF NOT EXISTS inventory_devices (
    tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
    serial_number TEXT NOT NULL,
    device_id TEXT NOT NULL DEFAULT '',
    hostname TEXT NOT NULL DEFAULT '',
    management_ip TEXT NOT NULL DEFAULT '',
    platform_id TEXT NOT NULL DEFAULT '',
    family TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT '',
    software_version TEXT NOT NULL DEFAULT '',
    mac_address TEXT NOT NULL DEFAULT '',
    reachability_status TEXT NOT NULL DEFAULT '',
    site_id TEXT NOT NULL DEFAULT '',
    last_seen TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (tenant_id, serial_number)
);`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
    id BIGSERIAL PRIMARY KEY,
    tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NULL,
    status TEXT NOT NULL CHECK (status IN ('running', 'success', 'failed')),
    sites INTEGER NOT NULL DEFAULT 0,
    devices INTEGER NOT NULL DEFAULT 0,
    mapped INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_devices_site ON inventory_devices(tenant_id, site_id);`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_tenant ON sync_runs(tenant_id, started_at);`,
}
