package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"fleet-realtime/internal/domain/geo"
	"fleet-realtime/internal/domain/notification"
	"fleet-realtime/internal/domain/room"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/ports"
)

const (
	defaultTrailLimit = 500
	maxTrailLimit     = 5000
)

func (service *realtimeService) JoinTracking(ctx context.Context, s ports.Session, driverID, vehicleID string) error {
	driverID, vehicleID = strings.TrimSpace(driverID), strings.TrimSpace(vehicleID)
	if driverID == "" {
		return geo.ErrMissingDriverID
	}

	// 1. join per-driver and per-vehicle groups
	if err := service.join(ctx, s, room.PerDriver(driverID)); err != nil {
		return err
	}
	if vehicleID != "" {
		if err := service.join(ctx, s, room.PerVehicle(vehicleID)); err != nil {
			return err
		}
	}

	// 2. a connection tracks one pair at a time, so drop groups of a previous pair
	service.leaveStaleTracking(s.ConnID, driverID, vehicleID)

	// 3. remember what this connection tracks so updates can fall back to its vehicle
	service.setTracking(s.ConnID, &trackingState{driverID: driverID, vehicleID: vehicleID})

	// 4. let dispatch know
	service.dispatchNotice(ctx, notification.TypeTrackingStarted,
		"Tracking Started",
		"Driver "+driverID+" started sharing location",
		driverID, map[string]any{"driverId": driverID, "vehicleId": vehicleID})

	service.logger.Info(ctx, "tracking_started", "Driver started tracking", map[string]any{
		"driver_id": driverID, "vehicle_id": vehicleID,
	})
	return nil
}

// UpdateLocation validates and caches a reading, then fans it out. Dispatch and the
// vehicle group get the routine frame before any speed alert.
func (service *realtimeService) UpdateLocation(ctx context.Context, s ports.Session, reading geo.Reading) (geo.Location, error) {
	if strings.TrimSpace(reading.VehicleID) == "" {
		if ts := service.trackingOf(s.ConnID); ts != nil && ts.driverID == strings.TrimSpace(reading.DriverID) {
			reading.VehicleID = ts.vehicleID
		}
	}

	// 1. validate and replace the cached position
	loc, err := service.cache.Update(reading)
	if err != nil {
		service.logger.Warn(ctx, "location_rejected", err.Error(), map[string]any{"driver_id": reading.DriverID})
		return geo.Location{}, err
	}

	// 2. routine broadcasts share one payload
	payload := contracts.NewLocationBroadcast(loc)
	service.broadcast(ctx, room.Dispatch(), contracts.EventLocationUpdate, payload)
	if loc.VehicleID != "" {
		service.broadcast(ctx, room.PerVehicle(loc.VehicleID), contracts.EventLocationUpdate, payload)
	}

	// 3. speed policy
	if limit := service.opts.SpeedLimitKmh; limit > 0 && loc.Speed > limit {
		service.broadcast(ctx, room.Dispatch(), contracts.EventSpeedAlert, contracts.SpeedAlert{
			DriverID:  loc.DriverID,
			Speed:     loc.Speed,
			Limit:     limit,
			Message:   "Driver " + loc.DriverID + " exceeding speed limit: " + formatNumber(loc.Speed) + " km/h",
			Timestamp: payload.Timestamp,
		})
		service.logger.Warn(ctx, "speed_alert", "Driver exceeded speed limit", map[string]any{
			"driver_id": loc.DriverID, "speed": loc.Speed, "limit": limit,
		})
	}

	// 4. archive for the trail
	if service.opts.PersistHistory {
		record, err := geo.NewHistoryRecord(loc)
		if err == nil {
			service.persist(ctx, "location_archive", map[string]any{"driver_id": loc.DriverID}, func(ctx context.Context) error {
				return service.store.Locations.Archive(ctx, record)
			})
		}
	}

	return loc, nil
}

func (service *realtimeService) StopTracking(ctx context.Context, s ports.Session, driverID, vehicleID string) error {
	driverID, vehicleID = strings.TrimSpace(driverID), strings.TrimSpace(vehicleID)
	ts := service.trackingOf(s.ConnID)
	if driverID == "" && ts != nil {
		driverID = ts.driverID
	}
	if vehicleID == "" && ts != nil && ts.driverID == driverID {
		vehicleID = ts.vehicleID
	}
	if driverID == "" {
		return geo.ErrMissingDriverID
	}

	// 1. leave tracking groups
	if s.ConnID != "" {
		service.router.Leave(s.ConnID, room.PerDriver(driverID))
		if vehicleID != "" {
			service.router.Leave(s.ConnID, room.PerVehicle(vehicleID))
		}
		service.setTracking(s.ConnID, nil)
	}

	// 2. drop the live position, history stays
	removed := service.cache.Remove(driverID)

	// 3. let dispatch know
	service.dispatchNotice(ctx, notification.TypeTrackingStopped,
		"Tracking Stopped",
		"Driver "+driverID+" stopped sharing location",
		driverID, map[string]any{"driverId": driverID, "vehicleId": vehicleID})

	service.logger.Info(ctx, "tracking_stopped", "Driver stopped tracking", map[string]any{
		"driver_id": driverID, "vehicle_id": vehicleID, "had_position": removed,
	})
	return nil
}

func (service *realtimeService) leaveStaleTracking(connID, driverID, vehicleID string) {
	if connID == "" {
		return
	}
	for _, g := range service.router.GroupsOf(connID) {
		switch {
		case g.Kind == room.KindDriver && g.ID != driverID,
			g.Kind == room.KindVehicle && g.ID != vehicleID:
			service.router.Leave(connID, g)
		}
	}
}

func (service *realtimeService) CurrentLocation(_ context.Context, driverID string) (geo.Location, error) {
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return geo.Location{}, geo.ErrMissingDriverID
	}
	loc, ok := service.cache.Current(driverID)
	if !ok {
		return geo.Location{}, geo.ErrLocationNotFound
	}
	return loc, nil
}

func (service *realtimeService) AllLocations(_ context.Context) []geo.Location {
	return service.cache.Sorted()
}

func (service *realtimeService) LocationHistory(_ context.Context, driverID string) []geo.Location {
	return service.cache.History(strings.TrimSpace(driverID))
}

func (service *realtimeService) LocationTrail(ctx context.Context, driverID string, since time.Time, limit int) ([]*geo.HistoryRecord, error) {
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return nil, geo.ErrMissingDriverID
	}
	if limit <= 0 {
		limit = defaultTrailLimit
	}
	limit = min(limit, maxTrailLimit)

	records, err := service.store.Locations.ListForDriver(ctx, driverID, since, limit)
	if err != nil {
		service.logger.Error(ctx, "location_trail_failed", "Failed to read location history", err, map[string]any{"driver_id": driverID})
		return nil, err
	}
	return records, nil
}

func (service *realtimeService) ActiveDrivers(_ context.Context) int {
	return service.cache.ActiveCount()
}

func (service *realtimeService) setTracking(connID string, ts *trackingState) {
	if connID == "" {
		return
	}
	service.mu.Lock()
	defer service.mu.Unlock()
	if sess, ok := service.sessions[connID]; ok {
		sess.tracking = ts
	}
}

func (service *realtimeService) trackingOf(connID string) *trackingState {
	if connID == "" {
		return nil
	}
	service.mu.RLock()
	defer service.mu.RUnlock()
	if sess, ok := service.sessions[connID]; ok && sess.tracking != nil {
		ts := *sess.tracking
		return &ts
	}
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
