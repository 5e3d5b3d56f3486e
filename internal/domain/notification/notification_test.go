package notification

import (
	"errors"
	"testing"
	"time"

	"fleet-realtime/internal/domain/room"
	"fleet-realtime/internal/domain/user"
)

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name      string
		userID    string
		role      string
		wantGroup string
		wantErr   error
	}{
		{"user wins", "u1", "driver", "notifications:u1", nil},
		{"role only", "", "Driver", "notifications:driver", nil},
		{"none", " ", "", "", ErrMissingTarget},
		{"bad role", "", "pilot", "", user.ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := ResolveTarget(tt.userID, tt.role)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveTarget() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveTarget() error = %v", err)
			}
			if got := target.Group().String(); got != tt.wantGroup {
				t.Errorf("Group() = %q, want %q", got, tt.wantGroup)
			}
		})
	}
}

func TestRoleAndUserGroupsDiffer(t *testing.T) {
	byRole := Target{Role: user.RoleDriver}.Group()
	byUser := Target{UserID: "driver-7"}.Group()
	if byRole.Kind != room.KindNotificationsByRole || byUser.Kind != room.KindNotificationsByUser {
		t.Errorf("kinds = %q, %q", byRole.Kind, byUser.Kind)
	}
}

func TestNewValidates(t *testing.T) {
	target := Target{UserID: "u1"}
	if _, err := New("n1", target, "party", "t", "m", ""); !errors.Is(err, ErrUnknownType) {
		t.Errorf("unknown type error = %v", err)
	}
	if _, err := New("n1", target, TypeSystem, "  ", "m", ""); !errors.Is(err, ErrMissingTitle) {
		t.Errorf("missing title error = %v", err)
	}
	n, err := New("n1", target, TypeFuelAlert, "Low Fuel Warning", "Vehicle V1 fuel level: 8%", "V1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if n.Read || n.RelatedID != "V1" {
		t.Errorf("New() = %+v", n)
	}
}

func TestExpired(t *testing.T) {
	n := &Notification{CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	window := 30 * 24 * time.Hour
	if n.Expired(n.CreatedAt.Add(29*24*time.Hour).Add(-window)) {
		t.Error("29 days old should not be expired")
	}
	if !n.Expired(n.CreatedAt.Add(31*24*time.Hour).Add(-window)) {
		t.Error("31 days old should be expired")
	}
}
