package contracts

import "fleet-realtime/internal/domain/geo"

type TrackingRequest struct {
	DriverID  string `json:"driverId"`
	VehicleID string `json:"vehicleId,omitempty"`
}

// LocationUpdateRequest uses pointers so a missing field can be told apart from zero.
type LocationUpdateRequest struct {
	DriverID  string   `json:"driverId"`
	VehicleID string   `json:"vehicleId,omitempty"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Mileage   *float64 `json:"mileage,omitempty"`
}

// Reading converts the wire request into a domain reading.
func (r LocationUpdateRequest) Reading() geo.Reading {
	return geo.Reading{
		DriverID:  r.DriverID,
		VehicleID: r.VehicleID,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Speed:     r.Speed,
		Heading:   r.Heading,
		Accuracy:  r.Accuracy,
		Mileage:   r.Mileage,
	}
}

type RequestLocation struct {
	DriverID string `json:"driverId"`
}

// LocationBroadcast is the routine payload sent to dispatch and vehicle groups.
type LocationBroadcast struct {
	DriverID  string  `json:"driverId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
	Timestamp string  `json:"timestamp"`
}

func NewLocationBroadcast(loc geo.Location) LocationBroadcast {
	return LocationBroadcast{
		DriverID:  loc.DriverID,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Speed:     loc.Speed,
		Heading:   loc.Heading,
		Timestamp: FormatTime(loc.Timestamp),
	}
}

// LocationRecord is the full cached record returned to map queries and REST.
type LocationRecord struct {
	DriverID  string   `json:"driverId"`
	VehicleID string   `json:"vehicleId,omitempty"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Speed     float64  `json:"speed"`
	Heading   float64  `json:"heading"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Mileage   *float64 `json:"mileage,omitempty"`
	Timestamp string   `json:"timestamp"`
}

func NewLocationRecord(loc geo.Location) LocationRecord {
	return LocationRecord{
		DriverID:  loc.DriverID,
		VehicleID: loc.VehicleID,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Speed:     loc.Speed,
		Heading:   loc.Heading,
		Accuracy:  loc.Accuracy,
		Mileage:   loc.Mileage,
		Timestamp: FormatTime(loc.Timestamp),
	}
}

func NewLocationRecords(locs []geo.Location) []LocationRecord {
	out := make([]LocationRecord, 0, len(locs))
	for _, loc := range locs {
		out = append(out, NewLocationRecord(loc))
	}
	return out
}

type SpeedAlert struct {
	DriverID  string  `json:"driverId"`
	Speed     float64 `json:"speed"`
	Limit     float64 `json:"limit"`
	Message   string  `json:"message"`
	Timestamp string  `json:"timestamp"`
}

// TrailPoint is one persisted history row.
type TrailPoint struct {
	ID         string   `json:"id"`
	DriverID   string   `json:"driverId"`
	VehicleID  string   `json:"vehicleId,omitempty"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Speed      float64  `json:"speed"`
	Heading    float64  `json:"heading"`
	Accuracy   *float64 `json:"accuracy,omitempty"`
	RecordedAt string   `json:"recordedAt"`
}

func NewTrail(records []*geo.HistoryRecord) []TrailPoint {
	out := make([]TrailPoint, 0, len(records))
	for _, r := range records {
		out = append(out, TrailPoint{
			ID:         r.ID,
			DriverID:   r.DriverID,
			VehicleID:  r.VehicleID,
			Latitude:   r.Latitude,
			Longitude:  r.Longitude,
			Speed:      r.Speed,
			Heading:    r.Heading,
			Accuracy:   r.Accuracy,
			RecordedAt: FormatTime(r.RecordedAt),
		})
	}
	return out
}
