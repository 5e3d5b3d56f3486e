package contracts

import (
	"encoding/json"
	"maps"

	"fleet-realtime/internal/domain/notification"
)

type JoinNotificationsRequest struct {
	Role string `json:"role,omitempty"`
}

type SendNotificationRequest struct {
	TargetUserID string `json:"targetUserId,omitempty"`
	TargetRole   string `json:"targetRole,omitempty"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	RelatedID    string `json:"relatedId,omitempty"`
}

// NotificationPayload is the notification:new payload. Extra keys are
// flattened next to the fixed fields.
type NotificationPayload struct {
	ID        string
	Type      string
	Title     string
	Message   string
	RelatedID string
	Timestamp string
	Read      bool
	Extra     map[string]any
}

func NewNotificationPayload(n *notification.Notification) NotificationPayload {
	return NotificationPayload{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		RelatedID: n.RelatedID,
		Timestamp: FormatTime(n.CreatedAt),
		Read:      n.Read,
		Extra:     n.Extra,
	}
}

func NewNotificationPayloads(ns []*notification.Notification) []NotificationPayload {
	out := make([]NotificationPayload, 0, len(ns))
	for _, n := range ns {
		out = append(out, NewNotificationPayload(n))
	}
	return out
}

func (p NotificationPayload) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Extra)+7)
	maps.Copy(m, p.Extra)
	if p.ID != "" {
		m["_id"] = p.ID
	}
	m["type"] = p.Type
	m["title"] = p.Title
	m["message"] = p.Message
	if p.RelatedID != "" {
		m["relatedId"] = p.RelatedID
	}
	m["timestamp"] = p.Timestamp
	m["read"] = p.Read
	return json.Marshal(m)
}

type AssignmentCreatedRequest struct {
	AssignmentID  string `json:"assignmentId"`
	DriverID      string `json:"driverId"`
	VehicleID     string `json:"vehicleId,omitempty"`
	Route         string `json:"route,omitempty"`
	EstimatedTime any    `json:"estimatedTime,omitempty"`
}

type AssignmentStatusRequest struct {
	AssignmentID string `json:"assignmentId"`
	DriverID     string `json:"driverId"`
	Status       string `json:"status"`
}

type AssignmentStatus struct {
	AssignmentID string `json:"assignmentId"`
	DriverID     string `json:"driverId"`
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
}

type MaintenanceAlertRequest struct {
	VehicleID       string `json:"vehicleId"`
	MaintenanceType string `json:"maintenanceType"`
	Urgency         string `json:"urgency,omitempty"`
}

type FuelAlertRequest struct {
	DriverID  string   `json:"driverId"`
	VehicleID string   `json:"vehicleId"`
	FuelLevel *float64 `json:"fuelLevel"`
}
