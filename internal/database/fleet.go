package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fleethire/internal/config"
	"fleethire/internal/models"
)

// SyncFleet upserts the configured directory records and refreshes the category cache.
func (db *DB) SyncFleet(ctx context.Context, fleet config.FleetConfig) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, b := range fleet.Branches {
			_, err := tx.ExecContext(ctx, `INSERT INTO branches (id, name, address, is_active) VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name, address = excluded.address, is_active = excluded.is_active`,
				b.ID, b.Name, b.Address, b.IsActive)
			if err != nil {
				return fmt.Errorf("failed to upsert branch %d: %w", b.ID, err)
			}
		}
		for _, c := range fleet.Categories {
			_, err := tx.ExecContext(ctx, `INSERT INTO vehicle_categories (
					id, name, seats, base_fee, price_per_km, same_day_fixed_price, highway_fee, is_active, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name, seats = excluded.seats, base_fee = excluded.base_fee,
					price_per_km = excluded.price_per_km, same_day_fixed_price = excluded.same_day_fixed_price,
					highway_fee = excluded.highway_fee, is_active = excluded.is_active, updated_at = excluded.updated_at`,
				c.ID, c.Name, c.Seats, c.BaseFee, c.PricePerKm, c.SameDayFixedPrice, c.HighwayFee, c.IsActive, now, now)
			if err != nil {
				return fmt.Errorf("failed to upsert category %d: %w", c.ID, err)
			}
		}
		for _, v := range fleet.Vehicles {
			status := v.Status
			if status == "" {
				status = models.VehicleAvailable
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO vehicles (id, branch_id, category_id, license_plate, status) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET branch_id = excluded.branch_id, category_id = excluded.category_id,
					license_plate = excluded.license_plate, status = excluded.status`,
				v.ID, v.BranchID, v.CategoryID, v.LicensePlate, string(status))
			if err != nil {
				return fmt.Errorf("failed to upsert vehicle %d: %w", v.ID, err)
			}
		}
		for _, d := range fleet.Drivers {
			_, err := tx.ExecContext(ctx, `INSERT INTO drivers (id, branch_id, full_name, phone, is_active) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET branch_id = excluded.branch_id, full_name = excluded.full_name,
					phone = excluded.phone, is_active = excluded.is_active`,
				d.ID, d.BranchID, d.FullName, d.Phone, d.IsActive)
			if err != nil {
				return fmt.Errorf("failed to upsert driver %d: %w", d.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.InvalidateCategories()
	db.logger.Info().
		Int("branches", len(fleet.Branches)).
		Int("categories", len(fleet.Categories)).
		Int("vehicles", len(fleet.Vehicles)).
		Int("drivers", len(fleet.Drivers)).
		Msg("Fleet directory synchronized")
	return nil
}

func (db *DB) InvalidateCategories() {
	db.mu.Lock()
	db.categoriesCache = make(map[int64]*models.VehicleCategory)
	db.mu.Unlock()
}

func (db *DB) GetBranch(ctx context.Context, id int64) (*models.Branch, error) {
	var b models.Branch
	err := db.QueryRowContext(ctx, `SELECT id, name, address, is_active FROM branches WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &b.Address, &b.IsActive)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("branch %d", id))
	}
	return &b, nil
}

// GetCategoryByID returns a category whether active or not; callers decide what inactive means.
func (db *DB) GetCategoryByID(ctx context.Context, id int64) (*models.VehicleCategory, error) {
	db.mu.RLock()
	cached, ok := db.categoriesCache[id]
	db.mu.RUnlock()
	if ok {
		c := *cached
		return &c, nil
	}

	c, err := scanCategory(db.QueryRowContext(ctx, categorySelect+` WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("category %d", id))
	}

	db.mu.Lock()
	db.categoriesCache[id] = c
	db.mu.Unlock()

	out := *c
	return &out, nil
}

func (db *DB) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	var v models.Vehicle
	var status string
	err := db.QueryRowContext(ctx, `SELECT id, branch_id, category_id, license_plate, status FROM vehicles WHERE id = ?`, id).
		Scan(&v.ID, &v.BranchID, &v.CategoryID, &v.LicensePlate, &status)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("vehicle %d", id))
	}
	v.Status = models.VehicleStatus(status)
	return &v, nil
}

func (db *DB) GetDriver(ctx context.Context, id int64) (*models.Driver, error) {
	var d models.Driver
	err := db.QueryRowContext(ctx, `SELECT id, branch_id, full_name, phone, is_active FROM drivers WHERE id = ?`, id).
		Scan(&d.ID, &d.BranchID, &d.FullName, &d.Phone, &d.IsActive)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("driver %d", id))
	}
	return &d, nil
}

func (db *DB) GetActiveCategories(ctx context.Context) ([]*models.VehicleCategory, error) {
	return fleetQueries{q: db.DB}.GetActiveCategories(ctx)
}

func (db *DB) GetCandidateVehicles(ctx context.Context, branchID, categoryID int64) ([]*models.Vehicle, error) {
	return fleetQueries{q: db.DB}.GetCandidateVehicles(ctx, branchID, categoryID)
}

func (db *DB) GetVehicleOccupancy(ctx context.Context, branchID int64, from, to time.Time, excludeBookingID int64) ([]models.VehicleOccupancy, error) {
	return fleetQueries{q: db.DB}.GetVehicleOccupancy(ctx, branchID, from, to, excludeBookingID)
}

func (db *DB) GetReservations(ctx context.Context, branchID int64, from, to time.Time, excludeBookingID int64) ([]models.Reservation, error) {
	return fleetQueries{q: db.DB}.GetReservations(ctx, branchID, from, to, excludeBookingID)
}

const categorySelect = `SELECT id, name, seats, base_fee, price_per_km, same_day_fixed_price, highway_fee,
	is_active, created_at, updated_at FROM vehicle_categories`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCategory(row rowScanner) (*models.VehicleCategory, error) {
	var c models.VehicleCategory
	err := row.Scan(&c.ID, &c.Name, &c.Seats, &c.BaseFee, &c.PricePerKm, &c.SameDayFixedPrice,
		&c.HighwayFee, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// fleetQueries implements domain.FleetReader over a connection or a transaction.
type fleetQueries struct {
	q querier
}

func (f fleetQueries) GetActiveCategories(ctx context.Context) ([]*models.VehicleCategory, error) {
	rows, err := f.q.QueryContext(ctx, categorySelect+` WHERE is_active = 1 ORDER BY seats, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get active categories: %w", err)
	}
	defer rows.Close()

	var out []*models.VehicleCategory
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (f fleetQueries) GetCandidateVehicles(ctx context.Context, branchID, categoryID int64) ([]*models.Vehicle, error) {
	rows, err := f.q.QueryContext(ctx, `SELECT id, branch_id, category_id, license_plate, status
		FROM vehicles WHERE branch_id = ? AND category_id = ? AND status = ? ORDER BY id`,
		branchID, categoryID, string(models.VehicleAvailable))
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate vehicles: %w", err)
	}
	defer rows.Close()

	var out []*models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		var status string
		if err := rows.Scan(&v.ID, &v.BranchID, &v.CategoryID, &v.LicensePlate, &status); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		v.Status = models.VehicleStatus(status)
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (f fleetQueries) GetVehicleOccupancy(ctx context.Context, branchID int64, from, to time.Time, excludeBookingID int64) ([]models.VehicleOccupancy, error) {
	statuses := capacityStatuses()
	query := `SELECT t.vehicle_id, t.booking_id, t.start_time, t.end_time
		FROM trips t JOIN bookings b ON b.id = t.booking_id
		WHERE b.branch_id = ? AND t.vehicle_id IS NOT NULL AND b.id != ?
		AND t.start_time < ? AND t.end_time > ?
		AND b.status IN (` + placeholders(len(statuses)) + `)
		ORDER BY t.start_time`
	args := append([]interface{}{branchID, excludeBookingID, to.UTC(), from.UTC()}, statuses...)

	rows, err := f.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle occupancy: %w", err)
	}
	defer rows.Close()

	var out []models.VehicleOccupancy
	for rows.Next() {
		var o models.VehicleOccupancy
		if err := rows.Scan(&o.VehicleID, &o.BookingID, &o.Start, &o.End); err != nil {
			return nil, fmt.Errorf("failed to scan occupancy: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetReservations returns, per booking and category, the selected quantity not yet covered by an assigned vehicle.
func (f fleetQueries) GetReservations(ctx context.Context, branchID int64, from, to time.Time, excludeBookingID int64) ([]models.Reservation, error) {
	statuses := capacityStatuses()
	query := `SELECT b.id, bv.category_id, bv.quantity, t.start_time, t.end_time
		FROM bookings b
		JOIN booking_vehicles bv ON bv.booking_id = b.id
		JOIN trips t ON t.booking_id = b.id
		WHERE b.branch_id = ? AND b.id != ?
		AND b.status IN (` + placeholders(len(statuses)) + `)`
	args := append([]interface{}{branchID, excludeBookingID}, statuses...)

	rows, err := f.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservations: %w", err)
	}
	defer rows.Close()

	type key struct{ booking, category int64 }
	byKey := make(map[key]*models.Reservation)
	var order []key
	for rows.Next() {
		var k key
		var qty int
		var start, end time.Time
		if err := rows.Scan(&k.booking, &k.category, &qty, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		r, ok := byKey[k]
		if !ok {
			r = &models.Reservation{BookingID: k.booking, CategoryID: k.category, Quantity: qty, Start: start, End: end}
			byKey[k] = r
			order = append(order, k)
			continue
		}
		if start.Before(r.Start) {
			r.Start = start
		}
		if end.After(r.End) {
			r.End = end
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	assigned, err := f.assignedVehicleCounts(ctx, branchID, excludeBookingID)
	if err != nil {
		return nil, err
	}

	var out []models.Reservation
	for _, k := range order {
		r := byKey[k]
		r.Quantity -= assigned[[2]int64{k.booking, k.category}]
		if r.Quantity <= 0 || !models.Overlaps(from, to, r.Start, r.End) {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

// assignedVehicleCounts counts distinct assigned vehicles per booking and category.
func (f fleetQueries) assignedVehicleCounts(ctx context.Context, branchID, excludeBookingID int64) (map[[2]int64]int, error) {
	rows, err := f.q.QueryContext(ctx, `SELECT t.booking_id, v.category_id, COUNT(DISTINCT t.vehicle_id)
		FROM trips t
		JOIN vehicles v ON v.id = t.vehicle_id
		JOIN bookings b ON b.id = t.booking_id
		WHERE b.branch_id = ? AND b.id != ?
		GROUP BY t.booking_id, v.category_id`, branchID, excludeBookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to count assigned vehicles: %w", err)
	}
	defer rows.Close()

	out := make(map[[2]int64]int)
	for rows.Next() {
		var bookingID, categoryID int64
		var n int
		if err := rows.Scan(&bookingID, &categoryID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan assigned count: %w", err)
		}
		out[[2]int64{bookingID, categoryID}] = n
	}
	return out, rows.Err()
}
