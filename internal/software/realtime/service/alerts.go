package service

import (
	"context"
	"strings"

	"fleet-realtime/internal/domain/notification"
	"fleet-realtime/internal/domain/room"
	"fleet-realtime/internal/general/apperr"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/ports"
)

var (
	errAssignmentDispatchOnly = apperr.Forbidden("only admin, manager or dispatcher may create assignments")
	errMissingAssignmentID    = apperr.Validation("assignmentId is required")
	errMissingAssignee        = apperr.Validation("driverId is required")
	errMissingStatus          = apperr.Validation("status is required")
	errMissingVehicleID       = apperr.Validation("vehicleId is required")
	errMissingMaintenanceType = apperr.Validation("maintenanceType is required")
	errMissingFuelLevel       = apperr.Validation("fuelLevel is required")
	errFuelLevelRange         = apperr.Validation("fuelLevel must be between 0 and 100")
)

func (service *realtimeService) AssignmentCreated(ctx context.Context, s ports.Session, req contracts.AssignmentCreatedRequest) error {
	if !s.User.Role.IsDispatch() {
		return errAssignmentDispatchOnly
	}
	assignmentID, driverID := strings.TrimSpace(req.AssignmentID), strings.TrimSpace(req.DriverID)
	if assignmentID == "" {
		return errMissingAssignmentID
	}
	if driverID == "" {
		return errMissingAssignee
	}

	extra := map[string]any{"assignmentId": assignmentID}
	if req.VehicleID != "" {
		extra["vehicleId"] = req.VehicleID
	}
	if req.EstimatedTime != nil {
		extra["estimatedTime"] = req.EstimatedTime
	}

	_, err := service.notify(ctx, notification.Target{UserID: driverID}, notification.TypeAssignmentCreated,
		"New Assignment",
		"You have been assigned to deliver: "+req.Route,
		assignmentID, extra)
	return err
}

func (service *realtimeService) AssignmentStatusUpdate(ctx context.Context, s ports.Session, req contracts.AssignmentStatusRequest) error {
	assignmentID, driverID, status := strings.TrimSpace(req.AssignmentID), strings.TrimSpace(req.DriverID), strings.TrimSpace(req.Status)
	switch {
	case assignmentID == "":
		return errMissingAssignmentID
	case driverID == "":
		return errMissingAssignee
	case status == "":
		return errMissingStatus
	}

	// 1. dispatch board
	service.broadcast(ctx, room.Dispatch(), contracts.EventAssignmentStatus, contracts.AssignmentStatus{
		AssignmentID: assignmentID,
		DriverID:     driverID,
		Status:       status,
		Timestamp:    contracts.Now(),
	})

	// 2. the assigned driver
	_, err := service.notify(ctx, notification.Target{UserID: driverID}, notification.TypeAssignmentStatusChanged,
		"Assignment Status Updated",
		"Assignment status changed to: "+status,
		assignmentID, map[string]any{"status": status, "updatedBy": s.User.ID})
	return err
}

func (service *realtimeService) MaintenanceAlert(ctx context.Context, _ ports.Session, req contracts.MaintenanceAlertRequest) error {
	vehicleID, kind := strings.TrimSpace(req.VehicleID), strings.TrimSpace(req.MaintenanceType)
	if vehicleID == "" {
		return errMissingVehicleID
	}
	if kind == "" {
		return errMissingMaintenanceType
	}

	extra := map[string]any{"vehicleId": vehicleID, "maintenanceType": kind}
	if u := strings.TrimSpace(req.Urgency); u != "" {
		extra["urgency"] = u
	}
	service.dispatchNotice(ctx, notification.TypeMaintenanceAlert,
		"Vehicle Maintenance Required",
		"Vehicle "+vehicleID+" requires "+kind+" maintenance",
		vehicleID, extra)

	service.logger.Info(ctx, "maintenance_alert", "Maintenance alert sent to dispatch", map[string]any{
		"vehicle_id": vehicleID, "maintenance_type": kind,
	})
	return nil
}

func (service *realtimeService) FuelAlert(ctx context.Context, _ ports.Session, req contracts.FuelAlertRequest) error {
	driverID, vehicleID := strings.TrimSpace(req.DriverID), strings.TrimSpace(req.VehicleID)
	switch {
	case driverID == "":
		return errMissingAssignee
	case vehicleID == "":
		return errMissingVehicleID
	case req.FuelLevel == nil:
		return errMissingFuelLevel
	case *req.FuelLevel < 0 || *req.FuelLevel > 100:
		return errFuelLevelRange
	}
	level := *req.FuelLevel

	_, err := service.notify(ctx, notification.Target{UserID: driverID}, notification.TypeFuelAlert,
		"Low Fuel Warning",
		"Vehicle "+vehicleID+" fuel level: "+formatNumber(level)+"%",
		vehicleID, map[string]any{"fuelLevel": level, "vehicleId": vehicleID})
	return err
}
