package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrTenantExists is returned when a tenant hostname is already configured
	ErrTenantExists = errors.New("tenant hostname already exists")
	// ErrInvalidTenant wraps tenant validation failures
	ErrInvalidTenant = errors.New("invalid tenant")
)

var tenantColumns = []string{
	"id", "hostname", "username", "password", "verify", "enabled", "created_at", "updated_at",
}

// CreateTenant stores a new tenant, encrypting its password
func (db *DB) CreateTenant(ctx context.Context, tenant *Tenant) (*Tenant, error) {
	if err := validateTenant(tenant.Hostname, tenant.Username, tenant.Password); err != nil {
		return nil, err
	}

	encrypted, err := db.Encrypt([]byte(tenant.Password))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt tenant password: %w", err)
	}

	now := time.Now().UTC()
	query, args, err := db.builder.Insert("tenants").
		Columns("hostname", "username", "password", "verify", "enabled", "created_at", "updated_at").
		Values(strings.TrimSpace(tenant.Hostname), tenant.Username, encrypted, tenant.Verify, tenant.Enabled, now, now).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build tenant insert: %w", err)
	}

	var id int64
	if err := db.conn.GetContext(ctx, &id, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrTenantExists
		}
		return nil, fmt.Errorf("failed to insert tenant: %w", err)
	}

	return db.GetTenant(ctx, id)
}

// GetTenant retrieves a tenant by primary key
func (db *DB) GetTenant(ctx context.Context, id int64) (*Tenant, error) {
	query, args, err := db.builder.Select(tenantColumns...).
		From("tenants").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build tenant query: %w", err)
	}

	var row tenantRow
	if err := db.conn.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant %d: %w", id, err)
	}

	return db.decodeTenant(row)
}

// ListTenants returns every configured tenant ordered by id
func (db *DB) ListTenants(ctx context.Context) ([]*Tenant, error) {
	return db.listTenants(ctx, nil)
}

// ListEnabledTenants returns the tenants with the enabled flag set
func (db *DB) ListEnabledTenants(ctx context.Context) ([]*Tenant, error) {
	return db.listTenants(ctx, sq.Eq{"enabled": true})
}

func (db *DB) listTenants(ctx context.Context, where sq.Sqlizer) ([]*Tenant, error) {
	q := db.builder.Select(tenantColumns...).From("tenants").OrderBy("id")
	if where != nil {
		q = q.Where(where)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build tenant query: %w", err)
	}

	var rows []tenantRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	tenants := make([]*Tenant, 0, len(rows))
	for _, row := range rows {
		tenant, err := db.decodeTenant(row)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}

	return tenants, nil
}

// UpdateTenant applies a partial update to a tenant
func (db *DB) UpdateTenant(ctx context.Context, id int64, update TenantUpdate) (*Tenant, error) {
	current, err := db.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}

	q := db.builder.Update("tenants").
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id})

	hostname, username, password := current.Hostname, current.Username, current.Password
	if update.Hostname != nil {
		hostname = strings.TrimSpace(*update.Hostname)
		q = q.Set("hostname", hostname)
	}
	if update.Username != nil {
		username = *update.Username
		q = q.Set("username", username)
	}
	if update.Password != nil {
		password = *update.Password
		encrypted, err := db.Encrypt([]byte(password))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt tenant password: %w", err)
		}
		q = q.Set("password", encrypted)
	}
	if update.Verify != nil {
		q = q.Set("verify", *update.Verify)
	}
	if update.Enabled != nil {
		q = q.Set("enabled", *update.Enabled)
	}

	if err := validateTenant(hostname, username, password); err != nil {
		return nil, err
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build tenant update: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrTenantExists
		}
		return nil, fmt.Errorf("failed to update tenant %d: %w", id, err)
	}

	return db.GetTenant(ctx, id)
}

// SetTenantEnabled toggles the enabled flag of a tenant
func (db *DB) SetTenantEnabled(ctx context.Context, id int64, enabled bool) (*Tenant, error) {
	return db.UpdateTenant(ctx, id, TenantUpdate{Enabled: &enabled})
}

// DeleteTenant removes a tenant and, through cascades, its inventory
func (db *DB) DeleteTenant(ctx context.Context, id int64) error {
	query, args, err := db.builder.Delete("tenants").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build tenant delete: %w", err)
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete tenant %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTenantNotFound
	}

	return nil
}

func (db *DB) decodeTenant(row tenantRow) (*Tenant, error) {
	password, err := db.Decrypt(row.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt password for tenant %s: %w", row.Hostname, err)
	}

	return &Tenant{
		ID:        row.ID,
		Hostname:  row.Hostname,
		Username:  row.Username,
		Password:  string(password),
		Verify:    row.Verify,
		Enabled:   row.Enabled,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func validateTenant(hostname, username, password string) error {
	if strings.TrimSpace(hostname) == "" {
		return fmt.Errorf("%w: hostname is required", ErrInvalidTenant)
	}
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidTenant)
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidTenant)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}
