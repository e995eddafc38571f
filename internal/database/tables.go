package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tablebook/internal/model"
)

const tableColumns = `id, label, capacity, section, is_active, is_reservable, sort_order, created_at, updated_at`

func scanTable(row interface{ Scan(...any) error }) (model.Table, error) {
	var t model.Table
	var section string
	err := row.Scan(&t.ID, &t.Label, &t.Capacity, &section, &t.IsActive, &t.IsReservable,
		&t.SortOrder, &t.CreatedAt, &t.UpdatedAt)
	t.Section = model.Section(section)
	return t, err
}

// ListTables returns the whole catalog in catalog order: ascending id, compared
// byte-wise, so "A10" sorts before "A2".
func (db *DB) ListTables(ctx context.Context) ([]model.Table, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+tableColumns+` FROM venue_tables ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []model.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// GetTable returns a table by id.
func (db *DB) GetTable(ctx context.Context, id string) (*model.Table, error) {
	t, err := scanTable(db.QueryRowContext(ctx, `SELECT `+tableColumns+` FROM venue_tables WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTable inserts a staff-managed table. A duplicate id yields ErrConflict.
func (db *DB) CreateTable(ctx context.Context, t *model.Table) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO venue_tables (id, label, capacity, section, is_active, is_reservable, sort_order, from_config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		t.ID, t.Label, t.Capacity, string(t.Section), t.IsActive, t.IsReservable, t.SortOrder, now, now,
	)
	if isConstraintErr(err) {
		return fmt.Errorf("table %s: %w", t.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert table %s: %w", t.ID, err)
	}
	t.CreatedAt, t.UpdatedAt = now, now
	return nil
}

// DeactivateTable retires a table for good. Bookings keep referencing it and a
// later config sync does not bring it back.
func (db *DB) DeactivateTable(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE venue_tables SET is_active = 0, is_reservable = 0, retired = 1, updated_at = ? WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SyncTables applies the configured catalog. It upserts every table and marks
// config-managed tables that disappeared from the config inactive. Tables created
// through the API are left alone, and retired tables stay inactive.
func (db *DB) SyncTables(ctx context.Context, tables []model.Table) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	seen := make(map[string]struct{}, len(tables))

	for _, t := range tables {
		// Preserve created_at if the table already exists.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO venue_tables (id, label, capacity, section, is_active, is_reservable, sort_order, from_config, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1, COALESCE((SELECT created_at FROM venue_tables WHERE id = ?), ?), ?)
			ON CONFLICT(id) DO UPDATE SET
				label = excluded.label,
				capacity = excluded.capacity,
				section = excluded.section,
				is_active = excluded.is_active AND NOT venue_tables.retired,
				is_reservable = excluded.is_reservable AND NOT venue_tables.retired,
				sort_order = excluded.sort_order,
				from_config = 1,
				updated_at = excluded.updated_at`,
			t.ID, t.Label, t.Capacity, string(t.Section), t.IsActive, t.IsReservable, t.SortOrder, t.ID, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync table %s: %w", t.ID, err)
		}
		seen[t.ID] = struct{}{}
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM venue_tables WHERE from_config = 1 AND is_active = 1`)
	if err != nil {
		return err
	}
	var missing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, id := range missing {
		if _, err := tx.ExecContext(ctx, `UPDATE venue_tables SET is_active = 0, is_reservable = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("deactivate table %s: %w", id, err)
		}
		db.logger.Info().Str("table_id", id).Msg("table removed from config, deactivated")
	}

	return tx.Commit()
}
