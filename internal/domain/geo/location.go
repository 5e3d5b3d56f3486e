package geo

import (
	"math"
	"strings"
	"time"

	"fleet-realtime/internal/general/apperr"
)

var (
	ErrMissingDriverID     = apperr.Validation("driverId is required")
	ErrMissingLatitude     = apperr.Validation("latitude is required")
	ErrMissingLongitude    = apperr.Validation("longitude is required")
	ErrLatitudeNotFinite   = apperr.Validation("latitude must be a finite number")
	ErrLongitudeNotFinite  = apperr.Validation("longitude must be a finite number")
	ErrLatitudeOutOfRange  = apperr.Validation("latitude must be between -90 and 90")
	ErrLongitudeOutOfRange = apperr.Validation("longitude must be between -180 and 180")
	ErrAccuracyTooLow      = apperr.Validation("accuracy exceeds the configured threshold")
	ErrNegativeAccuracy    = apperr.Validation("accuracy cannot be negative")
	ErrNegativeSpeed       = apperr.Validation("speed cannot be negative")
	ErrInvalidHeading      = apperr.Validation("heading must be between 0 and 360")
	ErrNegativeMileage     = apperr.Validation("mileage cannot be negative")
	ErrLocationNotFound    = apperr.NotFound("no current location for driver")
)

// Reading is a raw GPS sample as reported by a driver device.
// Optional metrics are nil when the device did not send them.
type Reading struct {
	DriverID  string
	VehicleID string
	Latitude  *float64
	Longitude *float64
	Speed     *float64
	Heading   *float64
	Accuracy  *float64
	Mileage   *float64
	At        time.Time
}

// Location is the normalized position held in the cache for a driver.
type Location struct {
	DriverID  string
	VehicleID string
	Latitude  float64
	Longitude float64
	Speed     float64
	Heading   float64
	Accuracy  *float64
	Mileage   *float64
	Timestamp time.Time
}

// Validate checks coordinates and optional metrics against the accuracy threshold (meters).
// A threshold <= 0 disables the accuracy filter.
func (reading Reading) Validate(accuracyThreshold float64) error {
	if strings.TrimSpace(reading.DriverID) == "" {
		return ErrMissingDriverID
	}
	if reading.Latitude == nil {
		return ErrMissingLatitude
	}
	if reading.Longitude == nil {
		return ErrMissingLongitude
	}

	lat, lon := *reading.Latitude, *reading.Longitude
	if !finite(lat) {
		return ErrLatitudeNotFinite
	}
	if !finite(lon) {
		return ErrLongitudeNotFinite
	}
	if math.Abs(lat) > 90 {
		return ErrLatitudeOutOfRange
	}
	if math.Abs(lon) > 180 {
		return ErrLongitudeOutOfRange
	}

	if reading.Accuracy != nil {
		acc := *reading.Accuracy
		if !finite(acc) || acc < 0 {
			return ErrNegativeAccuracy
		}
		if accuracyThreshold > 0 && acc > accuracyThreshold {
			return ErrAccuracyTooLow
		}
	}
	if reading.Speed != nil {
		if !finite(*reading.Speed) || *reading.Speed < 0 {
			return ErrNegativeSpeed
		}
	}
	if reading.Heading != nil {
		// 360 is accepted; some SDKs report it instead of 0
		if h := *reading.Heading; !finite(h) || h < 0 || h > 360 {
			return ErrInvalidHeading
		}
	}
	if reading.Mileage != nil {
		if !finite(*reading.Mileage) || *reading.Mileage < 0 {
			return ErrNegativeMileage
		}
	}
	return nil
}

// Normalize builds the cached Location. Call only after Validate succeeded.
func (reading Reading) Normalize() Location {
	loc := Location{
		DriverID:  strings.TrimSpace(reading.DriverID),
		VehicleID: strings.TrimSpace(reading.VehicleID),
		Latitude:  *reading.Latitude,
		Longitude: *reading.Longitude,
		Accuracy:  copyFloat(reading.Accuracy),
		Mileage:   copyFloat(reading.Mileage),
		Timestamp: reading.At.UTC(),
	}
	if reading.Speed != nil {
		loc.Speed = *reading.Speed
	}
	if reading.Heading != nil {
		loc.Heading = math.Mod(*reading.Heading, 360)
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now().UTC()
	}
	return loc
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Clone returns a copy that shares no pointers with loc.
func (loc Location) Clone() Location {
	loc.Accuracy = copyFloat(loc.Accuracy)
	loc.Mileage = copyFloat(loc.Mileage)
	return loc
}
