package room

import (
	"errors"
	"testing"

	"fleet-realtime/internal/domain/user"
)

func TestGroupString(t *testing.T) {
	tests := []struct {
		group Group
		want  string
	}{
		{PerDriver("D1"), "driver:D1"},
		{PerVehicle("V1"), "vehicle:V1"},
		{Dispatch(), "dispatch"},
		{Drivers(), "drivers"},
		{NotificationsByRole(user.RoleDriver), "notifications:driver"},
		{NotificationsByUser("u42"), "notifications:u42"},
		{Chat("a_b"), "chat:a_b"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.group.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			parsed, err := Parse(tt.want)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.want, err)
			}
			if parsed != tt.group {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.want, parsed, tt.group)
			}
		})
	}
}

func TestGroupValidate(t *testing.T) {
	tests := []struct {
		name  string
		group Group
		want  error
	}{
		{"empty vehicle", PerVehicle("  "), ErrMissingGroupID},
		{"empty chat", Chat(""), ErrMissingGroupID},
		{"bad role", Group{Kind: KindNotificationsByRole, ID: "root"}, user.ErrInvalidRole},
		{"zero value", Group{}, ErrUnknownGroup},
		{"dispatch", Dispatch(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.group.Validate()
			if !errors.Is(err, tt.want) && !(tt.want == nil && err == nil) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, name := range []string{"", "rooms:1", "vehicle:", "lobby"} {
		if _, err := Parse(name); err == nil {
			t.Errorf("Parse(%q) expected error", name)
		}
	}
}
