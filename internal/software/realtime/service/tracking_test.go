package service

import (
	"context"
	"testing"
	"time"

	"fleet-realtime/internal/domain/geo"
	"fleet-realtime/internal/domain/room"
	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/contracts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateLocationFansOutBeforeSpeedAlert(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)

	dispatch, ds := h.connect(t, "c-dispatch", "m1", user.RoleManager)
	require.NoError(t, h.svc.JoinDispatch(ctx, ds))
	driver, drs := h.connect(t, "c-driver", "D1", user.RoleDriver)
	require.NoError(t, h.svc.JoinTracking(ctx, drs, "D1", "V1"))

	assert.Equal(t, []string{contracts.EventNotification}, dispatch.events())
	assert.Equal(t, "tracking_started", dispatch.payload(t, contracts.EventNotification, 0)["type"])
	dispatch.reset()

	loc, err := h.svc.UpdateLocation(ctx, drs, geo.Reading{
		DriverID:  "D1",
		Latitude:  ptr(40.0),
		Longitude: ptr(-74.0),
		Speed:     ptr(130),
		Accuracy:  ptr(10),
	})
	require.NoError(t, err)
	assert.Equal(t, "V1", loc.VehicleID, "vehicle falls back to the tracked one")

	assert.Equal(t, []string{contracts.EventLocationUpdate, contracts.EventSpeedAlert}, dispatch.events())
	assert.Equal(t, []string{contracts.EventLocationUpdate}, driver.events())

	update := dispatch.payload(t, contracts.EventLocationUpdate, 0)
	assert.Equal(t, update, driver.payload(t, contracts.EventLocationUpdate, 0), "both groups get the same payload")
	assert.Equal(t, 40.0, update["latitude"])
	assert.Equal(t, 130.0, update["speed"])

	alert := dispatch.payload(t, contracts.EventSpeedAlert, 0)
	assert.Equal(t, 120.0, alert["limit"])
	assert.Equal(t, "Driver D1 exceeding speed limit: 130 km/h", alert["message"])

	h.drain(t)
	trail, err := h.svc.LocationTrail(ctx, "D1", time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, trail, 1)
}

func TestUpdateLocationRejectsWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)

	dispatch, ds := h.connect(t, "c-dispatch", "m1", user.RoleDispatcher)
	require.NoError(t, h.svc.JoinDispatch(ctx, ds))
	_, drs := h.connect(t, "c-driver", "D1", user.RoleDriver)

	tests := []struct {
		name    string
		reading geo.Reading
		want    error
	}{
		{"latitude above range", geo.Reading{DriverID: "D1", Latitude: ptr(90.5), Longitude: ptr(0)}, geo.ErrLatitudeOutOfRange},
		{"longitude below range", geo.Reading{DriverID: "D1", Latitude: ptr(0), Longitude: ptr(-181)}, geo.ErrLongitudeOutOfRange},
		{"poor accuracy", geo.Reading{DriverID: "D1", Latitude: ptr(1), Longitude: ptr(1), Accuracy: ptr(51)}, geo.ErrAccuracyTooLow},
		{"missing driver", geo.Reading{Latitude: ptr(1), Longitude: ptr(1)}, geo.ErrMissingDriverID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.UpdateLocation(ctx, drs, tt.reading)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Empty(t, dispatch.events())
	_, err := h.svc.CurrentLocation(ctx, "D1")
	assert.ErrorIs(t, err, geo.ErrLocationNotFound)
	assert.Zero(t, h.svc.ActiveDrivers(ctx))
}

func TestSlowSpeedSendsNoAlert(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)

	dispatch, ds := h.connect(t, "c-dispatch", "a1", user.RoleAdmin)
	require.NoError(t, h.svc.JoinDispatch(ctx, ds))
	_, drs := h.connect(t, "c-driver", "D1", user.RoleDriver)

	_, err := h.svc.UpdateLocation(ctx, drs, geo.Reading{DriverID: "D1", Latitude: ptr(1), Longitude: ptr(1), Speed: ptr(120)})
	require.NoError(t, err)
	assert.Equal(t, []string{contracts.EventLocationUpdate}, dispatch.events())
}

func TestStopTrackingLeavesGroupsAndDropsPosition(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)

	dispatch, ds := h.connect(t, "c-dispatch", "m1", user.RoleManager)
	require.NoError(t, h.svc.JoinDispatch(ctx, ds))
	_, drs := h.connect(t, "c-driver", "D1", user.RoleDriver)
	require.NoError(t, h.svc.JoinTracking(ctx, drs, "D1", "V1"))

	_, err := h.svc.UpdateLocation(ctx, drs, geo.Reading{DriverID: "D1", Latitude: ptr(1), Longitude: ptr(2)})
	require.NoError(t, err)
	assert.Equal(t, 1, h.svc.ActiveDrivers(ctx))
	dispatch.reset()

	require.NoError(t, h.svc.StopTracking(ctx, drs, "", ""))

	assert.False(t, h.router.IsMember("c-driver", room.PerDriver("D1")))
	assert.False(t, h.router.IsMember("c-driver", room.PerVehicle("V1")))
	assert.Zero(t, h.svc.ActiveDrivers(ctx))
	assert.Len(t, h.svc.LocationHistory(ctx, "D1"), 1, "history survives stop")

	note := dispatch.payload(t, contracts.EventNotification, 0)
	assert.Equal(t, "tracking_stopped", note["type"])
	assert.Equal(t, "Driver D1 stopped sharing location", note["message"])
}

func TestAllLocationsSortedByDriver(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)
	_, s := h.connect(t, "c1", "x", user.RoleDriver)

	for _, id := range []string{"D3", "D1", "D2"} {
		_, err := h.svc.UpdateLocation(ctx, s, geo.Reading{DriverID: id, Latitude: ptr(1), Longitude: ptr(1)})
		require.NoError(t, err)
	}

	var ids []string
	for _, loc := range h.svc.AllLocations(ctx) {
		ids = append(ids, loc.DriverID)
	}
	assert.Equal(t, []string{"D1", "D2", "D3"}, ids)
}

func TestJoinTrackingAgainSwitchesGroups(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)

	_, drs := h.connect(t, "c-driver", "D1", user.RoleDriver)
	require.NoError(t, h.svc.JoinNotifications(ctx, drs, ""))
	require.NoError(t, h.svc.JoinTracking(ctx, drs, "D1", "V1"))
	require.NoError(t, h.svc.JoinTracking(ctx, drs, "D1", "V2"))

	assert.False(t, h.router.IsMember("c-driver", room.PerVehicle("V1")), "previous vehicle group is left")
	assert.True(t, h.router.IsMember("c-driver", room.PerVehicle("V2")))
	assert.True(t, h.router.IsMember("c-driver", room.PerDriver("D1")))
	assert.True(t, h.router.IsMember("c-driver", room.NotificationsByUser("D1")), "other groups are untouched")

	require.NoError(t, h.svc.JoinTracking(ctx, drs, "D2", ""))
	assert.False(t, h.router.IsMember("c-driver", room.PerDriver("D1")))
	assert.False(t, h.router.IsMember("c-driver", room.PerVehicle("V2")))
	assert.True(t, h.router.IsMember("c-driver", room.PerDriver("D2")))
}
