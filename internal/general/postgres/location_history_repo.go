package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"fleet-realtime/internal/domain/geo"
	"fleet-realtime/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LocationHistoryRepo persists location history rows using pgx and plain SQL.
type LocationHistoryRepo struct {
	pool *pgxpool.Pool
}

// NewLocationHistoryRepo constructs a new LocationHistoryRepo.
func NewLocationHistoryRepo(pool *pgxpool.Pool) ports.LocationHistoryRepository {
	return &LocationHistoryRepo{pool: pool}
}

// Archive inserts a single location_history record.
func (repo *LocationHistoryRepo) Archive(ctx context.Context, record *geo.HistoryRecord) error {
	// validate domain invariants
	if err := record.Validate(); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	// insert a new entry
	_, err := querier(ctx, repo.pool).Exec(ctx, `
		INSERT INTO location_history (
			id, driver_id, vehicle_id, latitude, longitude,
			speed_kmh, heading, accuracy_m, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		record.ID,
		record.DriverID,
		record.VehicleID,
		record.Latitude,
		record.Longitude,
		record.Speed,
		record.Heading,
		record.Accuracy,
		record.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert location history: %w", err)
	}
	return nil
}

// ListForDriver returns the newest limit rows recorded at or after since, oldest first.
func (repo *LocationHistoryRepo) ListForDriver(ctx context.Context, driverID string, since time.Time, limit int) ([]*geo.HistoryRecord, error) {
	rows, err := querier(ctx, repo.pool).Query(ctx, `
		SELECT id, driver_id, vehicle_id, latitude, longitude, speed_kmh, heading, accuracy_m, recorded_at
		FROM location_history
		WHERE driver_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at DESC
		LIMIT NULLIF($3, 0)
	`, driverID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query location history: %w", err)
	}
	defer rows.Close()

	var out []*geo.HistoryRecord
	for rows.Next() {
		var rec geo.HistoryRecord
		if err := rows.Scan(&rec.ID, &rec.DriverID, &rec.VehicleID, &rec.Latitude, &rec.Longitude,
			&rec.Speed, &rec.Heading, &rec.Accuracy, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan location history: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func (repo *LocationHistoryRepo) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := querier(ctx, repo.pool).Exec(ctx, `DELETE FROM location_history WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired locations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
