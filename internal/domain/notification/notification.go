package notification

import (
	"maps"
	"strings"
	"time"

	"fleet-realtime/internal/domain/room"
	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/apperr"
)

// Type enumerates notification kinds.
type Type string

const (
	TypeAssignmentCreated       Type = "assignment_created"
	TypeAssignmentStatusChanged Type = "assignment_status_changed"
	TypeDeliveryStarted         Type = "delivery_started"
	TypeDeliveryCompleted       Type = "delivery_completed"
	TypeVehicleAlert            Type = "vehicle_alert"
	TypeMaintenanceDue          Type = "maintenance_due"
	TypeMaintenanceAlert        Type = "maintenance_alert"
	TypeTrackingStarted         Type = "tracking_started"
	TypeTrackingStopped         Type = "tracking_stopped"
	TypeSpeedAlert              Type = "speed_alert"
	TypeFuelAlert               Type = "fuel_alert"
	TypeSystem                  Type = "system"
)

var knownTypes = map[Type]struct{}{
	TypeAssignmentCreated:       {},
	TypeAssignmentStatusChanged: {},
	TypeDeliveryStarted:         {},
	TypeDeliveryCompleted:       {},
	TypeVehicleAlert:            {},
	TypeMaintenanceDue:          {},
	TypeMaintenanceAlert:        {},
	TypeTrackingStarted:         {},
	TypeTrackingStopped:         {},
	TypeSpeedAlert:              {},
	TypeFuelAlert:               {},
	TypeSystem:                  {},
}

func (t Type) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

var (
	ErrMissingTarget = apperr.Validation("targetUserId or targetRole is required")
	ErrUnknownType   = apperr.Validation("unknown notification type")
	ErrMissingTitle  = apperr.Validation("title is required")
	ErrNotFound      = apperr.NotFound("notification not found")
)

// Target addresses either one user or every member of a role.
// UserID wins when both are set.
type Target struct {
	UserID string
	Role   user.Role
}

// ResolveTarget picks the target from raw wire fields.
func ResolveTarget(userID, role string) (Target, error) {
	if id := strings.TrimSpace(userID); id != "" {
		return Target{UserID: id}, nil
	}
	if strings.TrimSpace(role) == "" {
		return Target{}, ErrMissingTarget
	}
	r, err := user.ParseRole(role)
	if err != nil {
		return Target{}, err
	}
	return Target{Role: r}, nil
}

// Group returns the broadcast group addressed by the target.
func (t Target) Group() room.Group {
	if t.UserID != "" {
		return room.NotificationsByUser(t.UserID)
	}
	return room.NotificationsByRole(t.Role)
}

// Notification is one log entry; Extra carries event specific fields
// (driverId, assignmentId, fuelLevel, ...) that are broadcast but not indexed.
type Notification struct {
	ID        string
	Target    Target
	Type      Type
	Title     string
	Message   string
	RelatedID string
	Extra     map[string]any
	Read      bool
	CreatedAt time.Time
}

// New validates and builds a notification.
func New(id string, target Target, typ Type, title, message, relatedID string) (*Notification, error) {
	n := &Notification{
		ID:        id,
		Target:    target,
		Type:      typ,
		Title:     strings.TrimSpace(title),
		Message:   strings.TrimSpace(message),
		RelatedID: strings.TrimSpace(relatedID),
		CreatedAt: time.Now().UTC(),
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Notification) Validate() error {
	if n.Target.UserID == "" && n.Target.Role == "" {
		return ErrMissingTarget
	}
	if n.Target.UserID == "" && !n.Target.Role.Valid() {
		return user.ErrInvalidRole
	}
	if !n.Type.Valid() {
		return ErrUnknownType
	}
	if n.Title == "" {
		return ErrMissingTitle
	}
	return nil
}

// Expired reports whether the log entry was created before cutoff.
func (n *Notification) Expired(cutoff time.Time) bool {
	return n.CreatedAt.Before(cutoff)
}

// VisibleTo reports whether the entry is addressed to userID or to role.
func (n *Notification) VisibleTo(userID string, role user.Role) bool {
	if n.Target.UserID != "" {
		return n.Target.UserID == userID
	}
	return n.Target.Role == role
}

// Clone returns a deep copy.
func (n *Notification) Clone() *Notification {
	out := *n
	out.Extra = maps.Clone(n.Extra)
	return &out
}
