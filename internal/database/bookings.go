package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"fleethire/internal/domain"
	"fleethire/internal/models"
)

const bookingColumns = `id, customer_name, customer_phone, customer_email, branch_id, hire_type_id,
	distance_km, use_highway, is_holiday, is_weekend, estimated_cost, discount_percent, discount_amount,
	total_cost, price_overridden, deposit_amount, paid_amount, note, status, last_assigned_at,
	created_at, updated_at, version`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var hireTypeID int64
	var status string
	var lastAssigned sql.NullTime
	err := row.Scan(
		&b.ID, &b.Customer.FullName, &b.Customer.Phone, &b.Customer.Email, &b.BranchID, &hireTypeID,
		&b.DistanceKm, &b.UseHighway, &b.IsHoliday, &b.IsWeekend, &b.EstimatedCost, &b.DiscountPercent, &b.DiscountAmount,
		&b.TotalCost, &b.PriceOverridden, &b.DepositAmount, &b.PaidAmount, &b.Note, &status, &lastAssigned,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.HireType, err = models.HireTypeByID(hireTypeID)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	if lastAssigned.Valid {
		t := lastAssigned.Time
		b.LastAssignedAt = &t
	}
	return &b, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("booking %d", id))
	}
	if err := db.loadDetails(ctx, db.DB, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (db *DB) loadDetails(ctx context.Context, q querier, b *models.Booking) error {
	rows, err := q.QueryContext(ctx, `SELECT id, booking_id, start_location, end_location, start_time, end_time,
		distance_km, driver_id, vehicle_id FROM trips WHERE booking_id = ? ORDER BY start_time, id`, b.ID)
	if err != nil {
		return fmt.Errorf("failed to get trips: %w", err)
	}
	defer rows.Close()

	b.Trips = nil
	for rows.Next() {
		var t models.Trip
		var driverID, vehicleID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.BookingID, &t.StartLocation, &t.EndLocation, &t.StartTime, &t.EndTime,
			&t.DistanceKm, &driverID, &vehicleID); err != nil {
			return fmt.Errorf("failed to scan trip: %w", err)
		}
		if driverID.Valid {
			id := driverID.Int64
			t.DriverID = &id
		}
		if vehicleID.Valid {
			id := vehicleID.Int64
			t.VehicleID = &id
		}
		b.Trips = append(b.Trips, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	vrows, err := q.QueryContext(ctx, `SELECT category_id, quantity FROM booking_vehicles WHERE booking_id = ? ORDER BY rowid`, b.ID)
	if err != nil {
		return fmt.Errorf("failed to get booking vehicles: %w", err)
	}
	defer vrows.Close()

	b.Vehicles = nil
	for vrows.Next() {
		var s models.VehicleSelection
		if err := vrows.Scan(&s.CategoryID, &s.Quantity); err != nil {
			return fmt.Errorf("failed to scan booking vehicle: %w", err)
		}
		b.Vehicles = append(b.Vehicles, s)
	}
	return vrows.Err()
}

// CreateBooking inserts the booking with its trips and vehicles. check runs first inside the same transaction.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking, check domain.CapacityCheck) error {
	now := time.Now().UTC()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if check != nil {
			if err := check(ctx, fleetQueries{q: tx}); err != nil {
				return err
			}
		}

		result, err := tx.ExecContext(ctx, `INSERT INTO bookings (
				customer_name, customer_phone, customer_email, branch_id, hire_type_id, distance_km,
				use_highway, is_holiday, is_weekend, estimated_cost, discount_percent, discount_amount,
				total_cost, price_overridden, deposit_amount, paid_amount, note, status, last_assigned_at,
				created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			booking.Customer.FullName, booking.Customer.Phone, booking.Customer.Email, booking.BranchID,
			booking.HireType.ID(), booking.DistanceKm, booking.UseHighway, booking.IsHoliday, booking.IsWeekend,
			booking.EstimatedCost, booking.DiscountPercent, booking.DiscountAmount, booking.TotalCost,
			booking.PriceOverridden, booking.DepositAmount, booking.PaidAmount, booking.Note, string(booking.Status),
			nullTime(booking.LastAssignedAt), now, now, 1,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		booking.ID = id

		return writeDetails(ctx, tx, booking)
	})
	if err != nil {
		booking.ID = 0
		return err
	}

	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

// UpdateBooking rewrites the booking row, trips and vehicles if the stored version still matches booking.Version.
func (db *DB) UpdateBooking(ctx context.Context, booking *models.Booking, check domain.CapacityCheck) error {
	now := time.Now().UTC()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if check != nil {
			if err := check(ctx, fleetQueries{q: tx}); err != nil {
				return err
			}
		}

		result, err := tx.ExecContext(ctx, `UPDATE bookings SET
				customer_name = ?, customer_phone = ?, customer_email = ?, hire_type_id = ?, distance_km = ?,
				use_highway = ?, is_holiday = ?, is_weekend = ?, estimated_cost = ?, discount_percent = ?,
				discount_amount = ?, total_cost = ?, price_overridden = ?, deposit_amount = ?, paid_amount = ?,
				note = ?, status = ?, last_assigned_at = ?, updated_at = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			booking.Customer.FullName, booking.Customer.Phone, booking.Customer.Email, booking.HireType.ID(),
			booking.DistanceKm, booking.UseHighway, booking.IsHoliday, booking.IsWeekend, booking.EstimatedCost,
			booking.DiscountPercent, booking.DiscountAmount, booking.TotalCost, booking.PriceOverridden,
			booking.DepositAmount, booking.PaidAmount, booking.Note, string(booking.Status),
			nullTime(booking.LastAssignedAt), now, booking.ID, booking.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return ErrConcurrentModification
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM trips WHERE booking_id = ?`, booking.ID); err != nil {
			return fmt.Errorf("failed to clear trips: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM booking_vehicles WHERE booking_id = ?`, booking.ID); err != nil {
			return fmt.Errorf("failed to clear booking vehicles: %w", err)
		}
		return writeDetails(ctx, tx, booking)
	})
	if err != nil {
		return err
	}

	booking.UpdatedAt = now
	booking.Version++
	return nil
}

func writeDetails(ctx context.Context, tx *sql.Tx, booking *models.Booking) error {
	for i := range booking.Trips {
		t := &booking.Trips[i]
		result, err := tx.ExecContext(ctx, `INSERT INTO trips (
				booking_id, start_location, end_location, start_time, end_time, distance_km, driver_id, vehicle_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			booking.ID, t.StartLocation, t.EndLocation, t.StartTime.UTC(), t.EndTime.UTC(), t.DistanceKm, t.DriverID, t.VehicleID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert trip: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get trip id: %w", err)
		}
		t.ID = id
		t.BookingID = booking.ID
	}

	for _, s := range booking.Vehicles {
		_, err := tx.ExecContext(ctx, `INSERT INTO booking_vehicles (booking_id, category_id, quantity) VALUES (?, ?, ?)`,
			booking.ID, s.CategoryID, s.Quantity)
		if err != nil {
			return fmt.Errorf("failed to insert booking vehicle: %w", err)
		}
	}
	return nil
}

func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status models.BookingStatus) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, string(status), time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) AddPayment(ctx context.Context, id, fromVersion, amount int64) error {
	query := `UPDATE bookings SET paid_amount = paid_amount + ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, amount, time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to add payment: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// AssignTrips sets driver and/or vehicle on the given trips and stamps the booking's assignment time.
// A nil driverID or vehicleID leaves that column unchanged.
func (db *DB) AssignTrips(ctx context.Context, id, fromVersion int64, tripIDs []int64, driverID, vehicleID *int64, status models.BookingStatus, at time.Time) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE bookings SET status = ?, last_assigned_at = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`, string(status), at.UTC(), time.Now().UTC(), id, fromVersion)
		if err != nil {
			return fmt.Errorf("failed to update booking assignment: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return ErrConcurrentModification
		}

		for _, tripID := range tripIDs {
			res, err := tx.ExecContext(ctx, `UPDATE trips SET driver_id = COALESCE(?, driver_id), vehicle_id = COALESCE(?, vehicle_id)
				WHERE id = ? AND booking_id = ?`, driverID, vehicleID, tripID, id)
			if err != nil {
				return fmt.Errorf("failed to assign trip %d: %w", tripID, err)
			}
			if rows, _ := res.RowsAffected(); rows == 0 {
				return fmt.Errorf("trip %d of booking %d: %w", tripID, id, ErrNotFound)
			}
		}
		return nil
	})
}

func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error) {
	var where []string
	var args []interface{}

	if filter.BranchID != 0 {
		where = append(where, "b.branch_id = ?")
		args = append(args, filter.BranchID)
	}
	if filter.Status != "" {
		where = append(where, "b.status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.From.IsZero() {
		where = append(where, "(SELECT MIN(start_time) FROM trips WHERE booking_id = b.id) >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, "(SELECT MIN(start_time) FROM trips WHERE booking_id = b.id) < ?")
		args = append(args, filter.To.UTC())
	}
	if kw := filter.NormalizedKeyword(); kw != "" {
		like := "%" + kw + "%"
		where = append(where, "(LOWER(b.customer_name) LIKE ? OR b.customer_phone LIKE ? OR LOWER(b.customer_email) LIKE ? OR CAST(b.id AS TEXT) = ?)")
		args = append(args, like, like, like, kw)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	page := &models.BookingPage{Page: filter.Page, PageSize: filter.PageSize, Items: []models.Booking{}}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings b`+clause, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}

	offset := (filter.Page - 1) * filter.PageSize
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + prefixColumns("b", bookingColumns) + ` FROM bookings b` + clause +
		` ORDER BY b.created_at DESC, b.id DESC LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, append(args, filter.PageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// release the single connection before loading details
	rows.Close()

	for _, b := range bookings {
		if err := db.loadDetails(ctx, db.DB, b); err != nil {
			return nil, err
		}
		page.Items = append(page.Items, *b)
	}
	return page, nil
}

func (db *DB) GetCustomerByPhone(ctx context.Context, phone string) (*models.CustomerProfile, error) {
	var p models.CustomerProfile
	err := db.QueryRowContext(ctx, `SELECT id, customer_name, customer_phone, customer_email, branch_id, created_at
		FROM bookings WHERE customer_phone = ? ORDER BY created_at DESC, id DESC LIMIT 1`, phone).
		Scan(&p.LastBookingID, &p.FullName, &p.Phone, &p.Email, &p.LastBranchID, &p.LastBookedAt)
	if err != nil {
		return nil, notFoundOr(err, "customer")
	}
	return &p, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
