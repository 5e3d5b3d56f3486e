package geo

import (
	"strings"
	"time"
)

// HistoryRecord is the domain entity corresponding to the `location_history` table.
// Rows expire after the configured retention window.
type HistoryRecord struct {
	ID         string
	DriverID   string
	VehicleID  string
	Latitude   float64
	Longitude  float64
	Speed      float64
	Heading    float64
	Accuracy   *float64
	RecordedAt time.Time
}

// NewHistoryRecord archives a cached Location.
func NewHistoryRecord(loc Location) (*HistoryRecord, error) {
	record := &HistoryRecord{
		DriverID:   strings.TrimSpace(loc.DriverID),
		VehicleID:  strings.TrimSpace(loc.VehicleID),
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Speed:      loc.Speed,
		Heading:    loc.Heading,
		Accuracy:   copyFloat(loc.Accuracy),
		RecordedAt: loc.Timestamp,
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// Validate checks invariants of the HistoryRecord entity.
func (record HistoryRecord) Validate() error {
	lat, lon := record.Latitude, record.Longitude
	return Reading{
		DriverID:  record.DriverID,
		Latitude:  &lat,
		Longitude: &lon,
		Accuracy:  record.Accuracy,
	}.Validate(0)
}

// Expired reports whether the record was taken before cutoff.
func (record HistoryRecord) Expired(cutoff time.Time) bool {
	return record.RecordedAt.Before(cutoff)
}
