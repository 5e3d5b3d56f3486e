package room

import (
	"strings"

	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/apperr"
)

// Kind enumerates the broadcast group families.
type Kind string

const (
	KindDriver              Kind = "driver"
	KindVehicle             Kind = "vehicle"
	KindDispatch            Kind = "dispatch"
	KindDrivers             Kind = "drivers"
	KindNotificationsByRole Kind = "notifications_role"
	KindNotificationsByUser Kind = "notifications_user"
	KindChat                Kind = "chat"
)

var (
	ErrMissingGroupID = apperr.Validation("group identifier is required")
	ErrUnknownGroup   = apperr.Validation("unknown group")
)

// Group is a typed broadcast target. The zero value is not a valid group.
type Group struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id,omitempty"`
}

func PerDriver(driverID string) Group   { return Group{Kind: KindDriver, ID: strings.TrimSpace(driverID)} }
func PerVehicle(vehicleID string) Group { return Group{Kind: KindVehicle, ID: strings.TrimSpace(vehicleID)} }
func Dispatch() Group                   { return Group{Kind: KindDispatch} }
func Drivers() Group                    { return Group{Kind: KindDrivers} }
func Chat(conversationID string) Group  { return Group{Kind: KindChat, ID: strings.TrimSpace(conversationID)} }

func NotificationsByRole(role user.Role) Group {
	return Group{Kind: KindNotificationsByRole, ID: role.String()}
}

func NotificationsByUser(userID string) Group {
	return Group{Kind: KindNotificationsByUser, ID: strings.TrimSpace(userID)}
}

// Validate checks the kind is known and that keyed kinds carry an identifier.
func (g Group) Validate() error {
	switch g.Kind {
	case KindDispatch, KindDrivers:
		return nil
	case KindDriver, KindVehicle, KindNotificationsByUser, KindChat:
		if g.ID == "" {
			return ErrMissingGroupID
		}
		return nil
	case KindNotificationsByRole:
		if !user.Role(g.ID).Valid() {
			return user.ErrInvalidRole
		}
		return nil
	default:
		return ErrUnknownGroup
	}
}

// String returns the wire-level group name, e.g. "vehicle:V1" or "dispatch".
func (g Group) String() string {
	switch g.Kind {
	case KindDispatch:
		return "dispatch"
	case KindDrivers:
		return "drivers"
	case KindNotificationsByRole, KindNotificationsByUser:
		return "notifications:" + g.ID
	default:
		return string(g.Kind) + ":" + g.ID
	}
}

// Parse reads a wire-level group name. A notifications suffix that names a
// valid role resolves to the role group; anything else is a user group.
func Parse(name string) (Group, error) {
	name = strings.TrimSpace(name)
	switch name {
	case "dispatch":
		return Dispatch(), nil
	case "drivers":
		return Drivers(), nil
	}

	prefix, id, ok := strings.Cut(name, ":")
	if !ok {
		return Group{}, ErrUnknownGroup
	}

	var g Group
	switch prefix {
	case "driver":
		g = PerDriver(id)
	case "vehicle":
		g = PerVehicle(id)
	case "chat":
		g = Chat(id)
	case "notifications":
		if role, err := user.ParseRole(id); err == nil && string(role) == id {
			g = NotificationsByRole(role)
		} else {
			g = NotificationsByUser(id)
		}
	default:
		return Group{}, ErrUnknownGroup
	}

	if err := g.Validate(); err != nil {
		return Group{}, err
	}
	return g, nil
}
