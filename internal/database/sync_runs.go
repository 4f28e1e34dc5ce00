package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// StartSyncRun records the start of a sync for a tenant
func (db *DB) StartSyncRun(ctx context.Context, tenantID int64, startedAt time.Time) (*SyncRun, error) {
	query, args, err := db.builder.Insert("sync_runs").
		Columns("tenant_id", "started_at", "status").
		Values(tenantID, startedAt.UTC(), SyncStatusRunning).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sync run insert: %w", err)
	}

	var id int64
	if err := db.conn.GetContext(ctx, &id, query, args...); err != nil {
		return nil, fmt.Errorf("failed to start sync run: %w", err)
	}

	return db.GetSyncRun(ctx, id)
}

// FinishSyncRun stores the outcome of a sync run
func (db *DB) FinishSyncRun(ctx context.Context, run *SyncRun) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}

	query, args, err := db.builder.Update("sync_runs").
		Set("finished_at", finished).
		Set("status", run.Status).
		Set("sites", run.Sites).
		Set("devices", run.Devices).
		Set("mapped", run.Mapped).
		Set("error", run.Error).
		Where(sq.Eq{"id": run.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sync run update: %w", err)
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to finish sync run %d: %w", run.ID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrSyncRunNotFound
	}

	run.FinishedAt = &finished
	return nil
}

// GetSyncRun retrieves one sync run
func (db *DB) GetSyncRun(ctx context.Context, id int64) (*SyncRun, error) {
	query, args, err := db.builder.Select("*").
		From("sync_runs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sync run query: %w", err)
	}

	var run SyncRun
	if err := db.conn.GetContext(ctx, &run, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSyncRunNotFound
		}
		return nil, fmt.Errorf("failed to get sync run %d: %w", id, err)
	}

	return &run, nil
}

// ListSyncRuns returns the most recent sync runs, newest first. A tenantID of
// zero lists runs of every tenant.
func (db *DB) ListSyncRuns(ctx context.Context, tenantID int64, limit uint64) ([]SyncRun, error) {
	q := db.builder.Select("*").
		From("sync_runs").
		OrderBy("started_at DESC", "id DESC")

	if tenantID > 0 {
		q = q.Where(sq.Eq{"tenant_id": tenantID})
	}
	if limit == 0 {
		limit = 50
	}
	q = q.Limit(limit)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sync run query: %w", err)
	}

	runs := []SyncRun{}
	if err := db.conn.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}

	return runs, nil
}
