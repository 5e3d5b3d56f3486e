package handler

import (
	"net/http"
	"strings"
	"time"

	"fleet-realtime/internal/general/apperr"
	"fleet-realtime/internal/general/contracts"
)

var errBadSince = apperr.Validation("since must be an RFC3339 timestamp")

// ----- Handler: GET /api/locations -----

func (handler *RealtimeHTTPHandler) handleAllLocations(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"locations": contracts.NewLocationRecords(handler.svc.AllLocations(ctx)),
	})
}

// ----- Handler: GET /api/locations/{driverId} -----

func (handler *RealtimeHTTPHandler) handleCurrentLocation(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	loc, err := handler.svc.CurrentLocation(ctx, strings.TrimSpace(r.PathValue("driverId")))
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, contracts.NewLocationRecord(loc))
}

// ----- Handler: GET /api/locations/{driverId}/history -----

func (handler *RealtimeHTTPHandler) handleLocationHistory(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	driverID := strings.TrimSpace(r.PathValue("driverId"))

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"driverId": driverID,
		"history":  contracts.NewLocationRecords(handler.svc.LocationHistory(ctx, driverID)),
	})
}

// ----- Handler: GET /api/locations/{driverId}/trail?since=&limit= -----

func (handler *RealtimeHTTPHandler) handleLocationTrail(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	driverID := strings.TrimSpace(r.PathValue("driverId"))

	// parse the window
	var since time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			handler.serviceError(ctx, w, errBadSince)
			return
		}
		since = t
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	callCtx, cancel := handler.call(ctx)
	defer cancel()

	records, err := handler.svc.LocationTrail(callCtx, driverID, since, limit)
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"driverId": driverID,
		"trail":    contracts.NewTrail(records),
	})
}
