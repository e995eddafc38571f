package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tablebook/internal/model"
)

// ValidateFunc re-checks a pending write against the bookings that overlap it,
// read inside the write transaction. Returning an error aborts the write.
type ValidateFunc func(overlapping []model.Booking) error

const bookingColumns = `id, customer_name, customer_email, customer_phone, account_id,
	party_size, booking_date, start_unix, end_unix, duration_minutes, status, source,
	special_requests, notes, created_by, version, created_at, updated_at`

const dateKeyLayout = "2006-01-02"

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
	var (
		b              model.Booking
		date           string
		start, end     int64
		status, source string
	)
	err := row.Scan(&b.ID, &b.Customer.Name, &b.Customer.Email, &b.Customer.Phone, &b.Customer.AccountID,
		&b.PartySize, &date, &start, &end, &b.DurationMinutes, &status, &source,
		&b.SpecialRequests, &b.Notes, &b.CreatedBy, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, err
	}
	b.Date, err = time.Parse(dateKeyLayout, date)
	if err != nil {
		return b, fmt.Errorf("booking %s: bad date %q: %w", b.ID, date, err)
	}
	b.Start = time.Unix(start, 0).UTC()
	b.End = time.Unix(end, 0).UTC()
	b.Status = model.BookingStatus(status)
	b.Source = model.BookingSource(source)
	return b, nil
}

func (db *DB) queryBookings(ctx context.Context, q querier, query string, args ...any) ([]model.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := db.attachTables(ctx, q, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// attachTables fills TableIDs in assignment order.
func (db *DB) attachTables(ctx context.Context, q querier, bookings []model.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	ids := make([]any, len(bookings))
	index := make(map[string]int, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
		index[b.ID] = i
	}

	rows, err := q.QueryContext(ctx, `
		SELECT booking_id, table_id FROM booking_tables
		WHERE booking_id IN (`+placeholders(len(ids))+`)
		ORDER BY booking_id, position`, ids...)
	if err != nil {
		return fmt.Errorf("load booking tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bookingID, tableID string
		if err := rows.Scan(&bookingID, &tableID); err != nil {
			return err
		}
		i := index[bookingID]
		bookings[i].TableIDs = append(bookings[i].TableIDs, tableID)
	}
	return rows.Err()
}

func activeStatusArgs() []any {
	out := make([]any, len(model.ActiveStatuses))
	for i, s := range model.ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

func (db *DB) overlapping(ctx context.Context, q querier, start, end time.Time, excludeID string) ([]model.Booking, error) {
	args := []any{end.Unix(), start.Unix(), excludeID}
	args = append(args, activeStatusArgs()...)
	return db.queryBookings(ctx, q, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE start_unix < ? AND end_unix > ? AND id != ?
		  AND status IN (`+placeholders(len(model.ActiveStatuses))+`)
		ORDER BY start_unix, id`, args...)
}

// BookingsBetween returns table-holding bookings whose interval intersects [start, end).
// Selection is by interval, so bookings from a neighbouring date that run into the
// window are included.
func (db *DB) BookingsBetween(ctx context.Context, start, end time.Time) ([]model.Booking, error) {
	return db.overlapping(ctx, db.DB, start, end, "")
}

// BookingsOnDate returns every booking of a venue-local date, in any status.
func (db *DB) BookingsOnDate(ctx context.Context, date time.Time) ([]model.Booking, error) {
	return db.queryBookings(ctx, db.DB, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE booking_date = ?
		ORDER BY start_unix, id`, date.Format(dateKeyLayout))
}

// BookingsInRange returns every booking dated from..to inclusive.
func (db *DB) BookingsInRange(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	return db.queryBookings(ctx, db.DB, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE booking_date >= ? AND booking_date <= ?
		ORDER BY booking_date, start_unix, id`, from.Format(dateKeyLayout), to.Format(dateKeyLayout))
}

// FutureBookingsOnTable returns table-holding bookings on tableID that end after from.
func (db *DB) FutureBookingsOnTable(ctx context.Context, tableID string, from time.Time) ([]model.Booking, error) {
	args := []any{tableID, from.Unix()}
	args = append(args, activeStatusArgs()...)
	return db.queryBookings(ctx, db.DB, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE id IN (SELECT booking_id FROM booking_tables WHERE table_id = ?)
		  AND end_unix > ?
		  AND status IN (`+placeholders(len(model.ActiveStatuses))+`)
		ORDER BY start_unix, id`, args...)
}

// GetBooking returns a booking by id.
func (db *DB) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	bookings, err := db.queryBookings(ctx, db.DB, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, ErrNotFound
	}
	return &bookings[0], nil
}

// CommitBooking inserts b if validate accepts the bookings overlapping it.
// The overlap read, validation and insert share one immediate transaction, so two
// commits contending for a table are serialized by the store.
func (db *DB) CommitBooking(ctx context.Context, b *model.Booking, validate ValidateFunc) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := db.overlapping(ctx, tx, b.Start, b.End, "")
	if err != nil {
		return fmt.Errorf("load overlapping: %w", err)
	}
	if err := checkWrite(b, existing, validate); err != nil {
		return err
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		b.ID, b.Customer.Name, b.Customer.Email, b.Customer.Phone, b.Customer.AccountID,
		b.PartySize, b.Date.Format(dateKeyLayout), b.Start.Unix(), b.End.Unix(), b.DurationMinutes,
		string(b.Status), string(b.Source), b.SpecialRequests, b.Notes, b.CreatedBy, now, now,
	)
	if isConstraintErr(err) {
		return fmt.Errorf("booking %s: %w", b.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	if err := insertBookingTables(ctx, tx, b); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	b.Version = 1
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

// MoveBooking rewrites the time, party and tables of b, guarded by b.Version.
// b itself is excluded from the overlap read.
func (db *DB) MoveBooking(ctx context.Context, b *model.Booking, validate ValidateFunc) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM bookings WHERE id = ?`, b.ID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if version != b.Version {
		return ErrConcurrentModification
	}

	existing, err := db.overlapping(ctx, tx, b.Start, b.End, b.ID)
	if err != nil {
		return fmt.Errorf("load overlapping: %w", err)
	}
	if err := checkWrite(b, existing, validate); err != nil {
		return err
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET party_size = ?, booking_date = ?, start_unix = ?, end_unix = ?, duration_minutes = ?,
		    notes = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		b.PartySize, b.Date.Format(dateKeyLayout), b.Start.Unix(), b.End.Unix(), b.DurationMinutes,
		b.Notes, now, b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrConcurrentModification
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_tables WHERE booking_id = ?`, b.ID); err != nil {
		return fmt.Errorf("clear booking tables: %w", err)
	}
	if err := insertBookingTables(ctx, tx, b); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	b.Version++
	b.UpdatedAt = now
	return nil
}

// UpdateBookingStatus sets the status if the stored version still matches.
func (db *DB) UpdateBookingStatus(ctx context.Context, id string, version int64, status model.BookingStatus) error {
	result, err := db.ExecContext(ctx, `
		UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(status), time.Now(), id, version,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConcurrentModification
}

// checkWrite runs the caller's validation, then refuses any table overlap outright.
func checkWrite(b *model.Booking, existing []model.Booking, validate ValidateFunc) error {
	if validate != nil {
		if err := validate(existing); err != nil {
			return err
		}
	}
	for i := range existing {
		if existing[i].SharesTable(b) {
			return fmt.Errorf("booking %s holds a requested table: %w", existing[i].ID, ErrConflict)
		}
	}
	return nil
}

func insertBookingTables(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	for pos, tableID := range b.TableIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO booking_tables (booking_id, table_id, position) VALUES (?, ?, ?)`,
			b.ID, tableID, pos,
		); err != nil {
			if isConstraintErr(err) {
				return fmt.Errorf("assign table %s: %w", tableID, ErrNotFound)
			}
			return fmt.Errorf("assign table %s: %w", tableID, err)
		}
	}
	return nil
}
